// Package watch imports tester logs dropped into a directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ict-report/backend/internal/models"
	"github.com/ict-report/backend/internal/parser"
	"go.uber.org/zap"
)

const (
	DoneDir  = "done"
	ErrorDir = "error"
)

// Stats counts processed files.
type Stats struct {
	Imported int
	Failed   int
	Reports  int
}

// Watcher converts every file that appears in a directory and moves it to
// done/ or error/ afterwards. Files are picked up once they have not been
// written to for the settle duration.
type Watcher struct {
	dir      string
	registry *parser.Registry
	sink     parser.Submitter
	logger   *zap.Logger
	settle   time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	stats   Stats
}

// New creates a watcher for dir.
func New(dir string, registry *parser.Registry, sink parser.Submitter, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:      dir,
		registry: registry,
		sink:     sink,
		logger:   logger,
		settle:   500 * time.Millisecond,
		pending:  make(map[string]time.Time),
	}
}

// SetSettle changes how long a file must be quiet before it is imported.
func (w *Watcher) SetSettle(d time.Duration) {
	w.settle = d
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run watches until ctx is cancelled. Files already present when Run starts
// are imported too.
func (w *Watcher) Run(ctx context.Context) error {
	for _, sub := range []string{"", DoneDir, ErrorDir} {
		if err := os.MkdirAll(filepath.Join(w.dir, sub), 0755); err != nil {
			return fmt.Errorf("creating watch directory: %w", err)
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching directory", zap.String("dir", w.dir))

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.dir, err)
	}
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && w.candidate(path) {
			w.touch(path)
		}
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && w.candidate(event.Name) {
				w.touch(event.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			for _, path := range w.due() {
				if ctx.Err() != nil {
					return nil
				}
				w.ProcessFile(path)
			}
		}
	}
}

func (w *Watcher) candidate(path string) bool {
	if filepath.Dir(path) != filepath.Clean(w.dir) {
		return false
	}
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, ".tmp")
}

func (w *Watcher) touch(path string) {
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// due returns the pending files that have settled.
func (w *Watcher) due() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	cutoff := time.Now().Add(-w.settle)
	for path, last := range w.pending {
		if last.Before(cutoff) {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

// ProcessFile converts one file and moves it to done/ or error/. It returns
// the number of reports submitted.
func (w *Watcher) ProcessFile(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		// Already moved or removed.
		return 0, err
	}

	name := filepath.Base(path)
	log := w.logger.With(zap.String("file", name))

	reports, convErr := w.convert(path)

	dest := DoneDir
	if convErr != nil {
		dest = ErrorDir
		log.Warn("import failed", zap.Error(convErr))
	} else {
		log.Info("imported", zap.Int("reports", reports))
	}

	if err := moveInto(path, filepath.Join(w.dir, dest)); err != nil {
		log.Error("failed to move processed file", zap.Error(err))
		if convErr == nil {
			convErr = err
		}
	}

	w.mu.Lock()
	w.stats.Reports += reports
	if convErr != nil {
		w.stats.Failed++
	} else {
		w.stats.Imported++
	}
	w.mu.Unlock()

	return reports, convErr
}

func (w *Watcher) convert(path string) (int, error) {
	c, err := w.registry.FindConverter(path)
	if err != nil {
		return 0, err
	}

	count := 0
	result, err := c.ConvertFile(path, parser.SubmitterFunc(func(report *models.UUTReport) {
		count++
		if w.sink != nil {
			w.sink.Submit(report)
		}
	}))
	if err != nil {
		return count, err
	}
	if result.Incomplete {
		return count, errors.New("input ended inside a test run")
	}
	return count, nil
}

// moveInto renames path into dir, adding a timestamp when the name is taken.
func moveInto(path, dir string) error {
	target := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(target)
		target = fmt.Sprintf("%s_%s%s", strings.TrimSuffix(target, ext), time.Now().Format("20060102T150405.000"), ext)
	}
	return os.Rename(path, target)
}
