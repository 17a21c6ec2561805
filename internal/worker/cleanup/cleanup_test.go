package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockPruner struct {
	mu      sync.Mutex
	calls   int
	before  time.Time
	deleted int64
	err     error
}

func (m *mockPruner) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.before = before
	return m.deleted, m.err
}

func (m *mockPruner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewCleanupJob_DefaultRetention(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{}, newTestLogger(&buf))

	if job.RetentionDays != DefaultRetentionDays {
		t.Errorf("RetentionDays = %d, want %d", job.RetentionDays, DefaultRetentionDays)
	}
}

func TestCleanupJob_Run_PassesCutoff(t *testing.T) {
	var buf bytes.Buffer
	pruner := &mockPruner{deleted: 12}
	job := NewCleanupJob(pruner, newTestLogger(&buf))
	job.RetentionDays = 30
	now := time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	deleted, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if deleted != 12 {
		t.Errorf("deleted = %d, want 12", deleted)
	}
	if want := now.AddDate(0, 0, -30); !pruner.before.Equal(want) {
		t.Errorf("before = %v, want %v", pruner.before, want)
	}
}

func TestCleanupJob_Run_LogsResult(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{deleted: 3}, newTestLogger(&buf))

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["msg"] != "client storage cleanup completed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["deleted_count"] != float64(3) {
		t.Errorf("deleted_count = %v, want 3", entry["deleted_count"])
	}
	if entry["retention_days"] != float64(DefaultRetentionDays) {
		t.Errorf("retention_days = %v", entry["retention_days"])
	}
}

func TestCleanupJob_Run_PropagatesError(t *testing.T) {
	var buf bytes.Buffer
	storageErr := errors.New("connection reset")
	job := NewCleanupJob(&mockPruner{err: storageErr}, newTestLogger(&buf))

	_, err := job.Run(context.Background())
	if !errors.Is(err, storageErr) {
		t.Fatalf("err = %v, want wrapped %v", err, storageErr)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("expected an ERROR log, got %s", buf.String())
	}
}

func TestCleanupJob_Run_RejectsNonPositiveRetention(t *testing.T) {
	var buf bytes.Buffer
	pruner := &mockPruner{}
	job := NewCleanupJob(pruner, newTestLogger(&buf))
	job.RetentionDays = 0

	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error for zero retention")
	}
	if pruner.callCount() != 0 {
		t.Error("storage should not be touched")
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStops(t *testing.T) {
	var buf bytes.Buffer
	pruner := &mockPruner{}
	job := NewCleanupJob(pruner, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pruner.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if pruner.callCount() != 1 {
		t.Errorf("calls = %d, want 1", pruner.callCount())
	}
}
