package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ict-report/backend/internal/models"
	"github.com/ict-report/backend/internal/parser"
	"github.com/ict-report/backend/internal/storage"
	"go.uber.org/zap"
)

// MaxSessions limits how many import sessions are kept in memory
const MaxSessions = 100

// SessionMaxAge is how long to keep finished sessions before cleanup
const SessionMaxAge = 30 * time.Minute

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// FileStatusSetter records the import status of an uploaded file.
type FileStatusSetter interface {
	SetStatus(id string, status string) error
}

// Manager runs import sessions: each converts one uploaded file in the
// background and submits its reports to the sink.
type Manager struct {
	sessions map[string]*sessionState
	mu       sync.RWMutex
	registry *parser.Registry
	sink     parser.Submitter
	files    FileStatusSetter
	logger   *zap.Logger
}

type sessionState struct {
	session    *models.ImportSession
	done       chan struct{}
	finishedAt time.Time
}

// NewManager creates a new session manager.
func NewManager(registry *parser.Registry, sink parser.Submitter, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*sessionState),
		registry: registry,
		sink:     sink,
		logger:   logger,
	}
}

// TrackFiles makes the manager update file status as imports progress.
func (m *Manager) TrackFiles(files FileStatusSetter) {
	m.files = files
}

// StartImport begins converting a file in the background.
func (m *Manager) StartImport(fileID, fileName, filePath string) (*models.ImportSession, error) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("file not accessible: %w", err)
	}

	m.cleanupOldSessionsIfNeeded()

	sessionID := uuid.New().String()
	sess := models.NewImportSession(sessionID, fileID)
	sess.FileName = fileName
	sess.StartTime = time.Now().UnixMilli()

	state := &sessionState{session: sess, done: make(chan struct{})}

	m.mu.Lock()
	m.sessions[sessionID] = state
	snapshot := sess.Clone()
	m.mu.Unlock()

	m.setFileStatus(fileID, storage.StatusImporting)

	// Run conversion in a background goroutine
	go m.runImport(state, filePath)

	return snapshot, nil
}

func (m *Manager) runImport(state *sessionState, filePath string) {
	sess := state.session
	log := m.logger.With(zap.String("session", sess.ID[:8]), zap.String("file", sess.FileName))

	defer close(state.done)
	// Recover from panics to prevent backend crash
	defer func() {
		if r := recover(); r != nil {
			log.Error("import panicked", zap.Any("panic", r))
			m.fail(state, models.ParseError{Reason: fmt.Sprintf("import panicked: %v", r)})
		}
	}()

	start := time.Now()

	c, err := m.registry.FindConverter(filePath)
	if err != nil {
		log.Warn("no converter for file", zap.Error(err))
		m.fail(state, models.ParseError{Reason: err.Error()})
		return
	}

	var totalBytes int64
	if info, err := os.Stat(filePath); err == nil {
		totalBytes = info.Size()
	}

	file, err := os.Open(filePath)
	if err != nil {
		m.fail(state, models.ParseError{Reason: fmt.Sprintf("open file: %v", err)})
		return
	}
	defer file.Close()

	m.mu.Lock()
	sess.Status = models.SessionStatusParsing
	sess.ConverterName = c.Name()
	m.mu.Unlock()

	log.Info("import started", zap.String("converter", c.Name()), zap.Int64("bytes", totalBytes))

	sink := parser.WithSourceFile(sess.FileName, parser.SubmitterFunc(func(report *models.UUTReport) {
		if m.sink != nil {
			m.sink.Submit(report)
		}
		m.mu.Lock()
		sess.ReportIDs = append(sess.ReportIDs, report.ID)
		m.mu.Unlock()
	}))

	progressCb := func(lines int, bytesRead, totalBytes int64) {
		progress := 0.0
		if totalBytes > 0 {
			progress = float64(bytesRead) * 99.0 / float64(totalBytes)
		}
		if progress > 99 {
			progress = 99
		}
		m.mu.Lock()
		sess.Progress = progress
		sess.LineCount = lines
		m.mu.Unlock()
	}

	result, err := c.ConvertWithProgress(file, totalBytes, sink, progressCb)

	m.mu.Lock()
	sess.ProcessingTimeMs = time.Since(start).Milliseconds()
	if result != nil {
		sess.LineCount = result.Lines
		sess.SkippedLines = result.SkippedLines
	}
	m.mu.Unlock()

	if err != nil {
		var lineErr *parser.LineError
		pe := models.ParseError{Reason: err.Error()}
		if errors.As(err, &lineErr) {
			pe = lineErr.ParseError()
		}
		log.Warn("import failed", zap.Error(err))
		m.fail(state, pe)
		return
	}

	m.mu.Lock()
	sess.Status = models.SessionStatusComplete
	sess.Progress = 100
	sess.EndTime = time.Now().UnixMilli()
	if result.Incomplete {
		sess.Errors = append(sess.Errors, models.ParseError{
			Line:   result.Lines,
			Reason: "input ended inside a test run; last report discarded",
		})
	}
	state.finishedAt = time.Now()
	reports := len(sess.ReportIDs)
	m.mu.Unlock()

	m.setFileStatus(sess.FileID, storage.StatusImported)
	log.Info("import complete",
		zap.Int("lines", result.Lines),
		zap.Int("reports", reports),
		zap.Duration("elapsed", time.Since(start)))
}

func (m *Manager) fail(state *sessionState, pe models.ParseError) {
	m.mu.Lock()
	state.session.Status = models.SessionStatusError
	state.session.EndTime = time.Now().UnixMilli()
	state.session.Errors = append(state.session.Errors, pe)
	state.finishedAt = time.Now()
	fileID := state.session.FileID
	m.mu.Unlock()

	m.setFileStatus(fileID, storage.StatusError)
}

func (m *Manager) setFileStatus(fileID, status string) {
	if m.files == nil || fileID == "" {
		return
	}
	if err := m.files.SetStatus(fileID, status); err != nil {
		m.logger.Debug("file status not updated", zap.String("fileId", fileID), zap.Error(err))
	}
}

// GetSession returns a snapshot of a session by ID.
func (m *Manager) GetSession(id string) (*models.ImportSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return state.session.Clone(), true
}

// ListSessions returns snapshots of all sessions, newest first.
func (m *Manager) ListSessions() []*models.ImportSession {
	m.mu.RLock()
	list := make([]*models.ImportSession, 0, len(m.sessions))
	for _, state := range m.sessions {
		list = append(list, state.session.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].StartTime > list[j].StartTime
	})
	return list
}

// Wait blocks until the session finishes or ctx is done and returns its final snapshot.
func (m *Manager) Wait(ctx context.Context, id string) (*models.ImportSession, error) {
	m.mu.RLock()
	state, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	select {
	case <-state.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return state.session.Clone(), nil
}

func finished(state *sessionState) bool {
	return state.session.Status == models.SessionStatusComplete ||
		state.session.Status == models.SessionStatusError
}

// cleanupOldSessionsIfNeeded removes the oldest finished sessions if at capacity
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < MaxSessions {
		return
	}

	var candidates []*sessionState
	for _, state := range m.sessions {
		if finished(state) {
			candidates = append(candidates, state)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].finishedAt.Before(candidates[j].finishedAt)
	})

	toFree := len(m.sessions) - MaxSessions + 1
	for i := 0; i < toFree && i < len(candidates); i++ {
		delete(m.sessions, candidates[i].session.ID)
	}
}

// CleanupOldSessions removes finished sessions older than maxAge (SessionMaxAge
// when zero) and returns how many were removed.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = SessionMaxAge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, state := range m.sessions {
		if !finished(state) || state.finishedAt.After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	if removed > 0 {
		m.logger.Debug("cleaned up import sessions", zap.Int("removed", removed))
	}
	return removed
}
