package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ict-report/backend/internal/models"
	"github.com/ict-report/backend/internal/parser"
	"github.com/ict-report/backend/internal/report"
	"github.com/ict-report/backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const twoRuns = `START;P1;SEQ;1.0;;OP1;01/15/2024;09:00:00
ANL;1;R12;0;0;Check1;0;PASS;0;0;0;0;0
ANL;2;U3;0;0;Check2;0;FAIL;12.5;10;15;V;0;0
SN;SN12345
END;FAIL;01/15/2024;09:00:05
START;P1;SEQ;1.0;;OP1;01/15/2024;09:01:00
ANL;1;R12;0;0;Check1;0;PASS;0;0;0;0;0
SN;SN12346
END;PASS;01/15/2024;09:01:02
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "board.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestManager(sink parser.Submitter) *Manager {
	return NewManager(parser.NewRegistry(parser.DefaultArguments()), sink, nil)
}

func waitFor(t *testing.T, m *Manager, id string) *models.ImportSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := m.Wait(ctx, id)
	require.NoError(t, err)
	return sess
}

func TestManager_ImportCompletes(t *testing.T) {
	defer goleak.VerifyNone(t)

	collector := report.NewCollector()
	m := newTestManager(collector)

	sess, err := m.StartImport("file-1", "board.log", writeLog(t, twoRuns))
	require.NoError(t, err)
	assert.Equal(t, "file-1", sess.FileID)

	final := waitFor(t, m, sess.ID)
	assert.Equal(t, models.SessionStatusComplete, final.Status)
	assert.Equal(t, float64(100), final.Progress)
	assert.Equal(t, 9, final.LineCount)
	assert.Equal(t, "spea_ict3030", final.ConverterName)
	assert.Empty(t, final.Errors)

	reports := collector.Reports()
	require.Len(t, reports, 2)
	assert.Equal(t, []string{reports[0].ID, reports[1].ID}, final.ReportIDs)
	assert.Equal(t, "SN12345", reports[0].SerialNumber)
	assert.Equal(t, "board.log", reports[0].SourceFile)
	assert.Equal(t, models.UUTStatusPassed, reports[1].Status)
}

func TestManager_ImportFailsOnMalformedField(t *testing.T) {
	defer goleak.VerifyNone(t)

	collector := report.NewCollector()
	m := newTestManager(collector)

	content := twoRuns + "START;P1;SEQ;1.0;;OP1;13/45/2024;09:02:00\n"
	sess, err := m.StartImport("file-1", "board.log", writeLog(t, content))
	require.NoError(t, err)

	final := waitFor(t, m, sess.ID)
	assert.Equal(t, models.SessionStatusError, final.Status)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, 10, final.Errors[0].Line)
	assert.Contains(t, final.Errors[0].Reason, "StartDate")
	// Runs finished before the bad line are kept.
	assert.Equal(t, 2, collector.Len())
	assert.Len(t, final.ReportIDs, 2)
}

func TestManager_IncompleteRunIsReported(t *testing.T) {
	defer goleak.VerifyNone(t)

	collector := report.NewCollector()
	m := newTestManager(collector)

	content := "START;P1;SEQ;1.0;;OP1;01/15/2024;09:00:00\nANL;1;R12;0;0;Check1;0;PASS;0;0;0;0;0\n"
	sess, err := m.StartImport("file-1", "board.log", writeLog(t, content))
	require.NoError(t, err)

	final := waitFor(t, m, sess.ID)
	assert.Equal(t, models.SessionStatusComplete, final.Status)
	assert.Zero(t, collector.Len())
	require.Len(t, final.Errors, 1)
	assert.Contains(t, final.Errors[0].Reason, "discarded")
}

func TestManager_UnknownFormat(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestManager(nil)
	sess, err := m.StartImport("file-1", "notes.txt", writeLog(t, "hello\nworld\n"))
	require.NoError(t, err)

	final := waitFor(t, m, sess.ID)
	assert.Equal(t, models.SessionStatusError, final.Status)
	assert.Contains(t, final.Errors[0].Reason, "no suitable converter")
}

func TestManager_MissingFile(t *testing.T) {
	m := newTestManager(nil)
	_, err := m.StartImport("file-1", "gone.log", filepath.Join(t.TempDir(), "gone.log"))
	assert.Error(t, err)
	assert.Empty(t, m.ListSessions())
}

func TestManager_TracksFileStatus(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	info, err := store.Save("board.log", strings.NewReader(twoRuns))
	require.NoError(t, err)
	path, err := store.GetFilePath(info.ID)
	require.NoError(t, err)

	m := newTestManager(nil)
	m.TrackFiles(store)

	sess, err := m.StartImport(info.ID, info.Name, path)
	require.NoError(t, err)
	waitFor(t, m, sess.ID)

	got, err := store.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusImported, got.Status)
}

func TestManager_WaitUnknownSession(t *testing.T) {
	m := newTestManager(nil)
	_, err := m.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_CleanupOldSessions(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestManager(nil)
	sess, err := m.StartImport("file-1", "board.log", writeLog(t, twoRuns))
	require.NoError(t, err)
	waitFor(t, m, sess.ID)

	assert.Zero(t, m.CleanupOldSessions(time.Hour))
	// Zero falls back to SessionMaxAge.
	assert.Zero(t, m.CleanupOldSessions(0))
	assert.Len(t, m.ListSessions(), 1)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, m.CleanupOldSessions(time.Millisecond))
	_, ok := m.GetSession(sess.ID)
	assert.False(t, ok)
}
