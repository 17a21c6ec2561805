package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/ksiportal/internal/backend"
	"github.com/hitoshi/ksiportal/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingCollector はストアの失敗回数だけを数えるメトリクスモック。
type countingCollector struct {
	mu         sync.Mutex
	rejections map[string]int
}

func (c *countingCollector) RecordBackendCall(string, int, time.Duration) {}
func (c *countingCollector) RecordBackendTransportError(string)           {}
func (c *countingCollector) RecordLogin(bool)                             {}
func (c *countingCollector) RecordStoreRejection(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejections == nil {
		c.rejections = map[string]int{}
	}
	c.rejections[resource]++
}
func (c *countingCollector) RecordProgramRegistration(bool) {}
func (c *countingCollector) RecordPaymentInitiation(bool)   {}
func (c *countingCollector) SetActiveWorkspaces(int)        {}

// mockProgramAPI はテスト用のProgramAPIモック。
type mockProgramAPI struct {
	programsFn func(ctx context.Context) ([]model.ExecutiveProgram, error)
	typesFn    func(ctx context.Context) ([]model.ProgramType, error)
}

func (m *mockProgramAPI) GetExecutivePrograms(ctx context.Context) ([]model.ExecutiveProgram, error) {
	return m.programsFn(ctx)
}

func (m *mockProgramAPI) GetProgramTypes(ctx context.Context) ([]model.ProgramType, error) {
	return m.typesFn(ctx)
}

func TestResource_FetchLifecycle(t *testing.T) {
	r := NewResource[[]string]("things", "Failed to fetch things", nil, discardLogger())

	if snap := r.Snapshot(); snap.Status != StatusIdle || snap.Loading {
		t.Fatalf("initial snapshot = %+v", snap)
	}

	observed := make(chan Snapshot[[]string], 1)
	err := r.Fetch(context.Background(), func(ctx context.Context) ([]string, error) {
		observed <- r.Snapshot()
		return []string{"a", "b"}, nil
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	pending := <-observed
	if pending.Status != StatusPending || !pending.Loading || pending.Error != "" {
		t.Errorf("pending snapshot = %+v", pending)
	}

	done := r.Snapshot()
	if done.Status != StatusFulfilled || done.Loading || !done.Loaded {
		t.Errorf("fulfilled snapshot = %+v", done)
	}
	if !reflect.DeepEqual(done.Data, []string{"a", "b"}) {
		t.Errorf("data = %v", done.Data)
	}
}

func TestProgramStore_RejectedKeepsPriorDataAndUsesFallback(t *testing.T) {
	prior := []model.ExecutiveProgram{{ID: 1, ProgramsName: "Korean Level 1A"}}
	fail := false
	api := &mockProgramAPI{
		programsFn: func(ctx context.Context) ([]model.ExecutiveProgram, error) {
			if fail {
				return nil, &backend.Error{Endpoint: "/ExecutiveProgram/executive-programs", StatusCode: 500}
			}
			return prior, nil
		},
	}
	collector := &countingCollector{}
	s := NewProgramStore(api, collector, discardLogger())

	if err := s.FetchPrograms(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	fail = true
	err := s.FetchPrograms(context.Background())

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected *RejectedError, got %v", err)
	}
	snap := s.Programs.Snapshot()
	if snap.Error != "Failed to fetch executive programs" {
		t.Errorf("error = %q, want fallback", snap.Error)
	}
	if !reflect.DeepEqual(snap.Data, prior) {
		t.Errorf("prior data must be kept, got %+v", snap.Data)
	}
	if snap.Loading || snap.Status != StatusRejected {
		t.Errorf("snapshot = %+v", snap)
	}
	if collector.rejections["programs"] != 1 {
		t.Errorf("rejections = %v", collector.rejections)
	}
}

func TestResource_RejectedPrefersServerMessage(t *testing.T) {
	r := NewResource[int]("n", "Failed", nil, discardLogger())

	err := r.Fetch(context.Background(), func(ctx context.Context) (int, error) {
		return 0, &backend.Error{StatusCode: 400, Message: "Session expired"}
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if got := r.Snapshot().Error; got != "Session expired" {
		t.Errorf("error = %q, want server message", got)
	}
	if !errors.As(err, new(*backend.Error)) {
		t.Error("RejectedError should unwrap to the backend error")
	}
}

func TestResource_LatestDispatchWins(t *testing.T) {
	r := NewResource[string]("s", "Failed", nil, discardLogger())

	releaseFirst := make(chan struct{})
	firstStarted := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.Fetch(context.Background(), func(ctx context.Context) (string, error) {
			close(firstStarted)
			<-releaseFirst
			return "stale", nil
		})
	}()

	<-firstStarted
	if err := r.Fetch(context.Background(), func(ctx context.Context) (string, error) {
		return "fresh", nil
	}); err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	close(releaseFirst)
	wg.Wait()

	if got := r.Snapshot().Data; got != "fresh" {
		t.Errorf("data = %q, want %q (stale response must be dropped)", got, "fresh")
	}
}

func TestResource_MutationDuringFetchIsReplayed(t *testing.T) {
	r := NewResource[[]string]("s", "Failed", nil, discardLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- r.Fetch(context.Background(), func(ctx context.Context) ([]string, error) {
			close(started)
			<-release
			return []string{"fetched"}, nil
		})
	}()

	<-started
	err := r.Mutate(context.Background(), "Failed to save", func(ctx context.Context) (func([]string) []string, error) {
		return func(prev []string) []string {
			return append(append([]string(nil), prev...), "saved")
		}, nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if !r.Snapshot().Loading {
		t.Error("Loading should stay true while the fetch is in flight")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	snap := r.Snapshot()
	if !snap.Loaded {
		t.Error("Loaded = false, want true after the fetch completes")
	}
	if snap.Loading {
		t.Error("Loading = true after all requests completed")
	}
	if want := []string{"fetched", "saved"}; !reflect.DeepEqual(snap.Data, want) {
		t.Errorf("Data = %v, want %v", snap.Data, want)
	}
}

func TestResource_LatestMutationWins(t *testing.T) {
	r := NewResource[string]("s", "Failed", nil, discardLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- r.Mutate(context.Background(), "Failed", func(ctx context.Context) (func(string) string, error) {
			close(started)
			<-release
			return func(string) string { return "first" }, nil
		})
	}()

	<-started
	if err := r.Mutate(context.Background(), "Failed", func(ctx context.Context) (func(string) string, error) {
		return func(string) string { return "second" }, nil
	}); err != nil {
		t.Fatalf("second Mutate: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Mutate: %v", err)
	}

	if got := r.Snapshot().Data; got != "second" {
		t.Errorf("Data = %q, want %q", got, "second")
	}
}

func TestResource_ResetDropsInFlightResponse(t *testing.T) {
	r := NewResource[string]("s", "Failed", nil, discardLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- r.Fetch(context.Background(), func(ctx context.Context) (string, error) {
			close(started)
			<-release
			return "late", nil
		})
	}()

	<-started
	r.Reset()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	snap := r.Snapshot()
	if snap.Data != "" || snap.Loaded || snap.Status != StatusIdle {
		t.Errorf("snapshot after reset = %+v", snap)
	}
}

func TestResource_ClearError(t *testing.T) {
	r := NewResource[int]("n", "Failed", nil, discardLogger())
	_ = r.Fetch(context.Background(), func(ctx context.Context) (int, error) { return 0, errors.New("boom") })

	r.ClearError()

	if got := r.Snapshot().Error; got != "" {
		t.Errorf("error = %q, want empty", got)
	}
}

func TestProgramStore_FindProgram(t *testing.T) {
	api := &mockProgramAPI{
		programsFn: func(ctx context.Context) ([]model.ExecutiveProgram, error) {
			return []model.ExecutiveProgram{{ID: 3}, {ID: 5}}, nil
		},
	}
	s := NewProgramStore(api, nil, discardLogger())
	_ = s.FetchPrograms(context.Background())

	if _, ok := s.FindProgram(5); !ok {
		t.Error("FindProgram(5) should succeed")
	}
	if _, ok := s.FindProgram(9); ok {
		t.Error("FindProgram(9) should fail")
	}
}
