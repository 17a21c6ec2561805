package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/ksiportal/internal/backend"
	"github.com/hitoshi/ksiportal/internal/session"
)

const testClientID = "6f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f"

// memRepo はテスト用のインメモリClientStorageRepository。
type memRepo struct {
	mu     sync.Mutex
	values map[string]map[string]string
}

func newMemRepo() *memRepo {
	return &memRepo{values: map[string]map[string]string{}}
}

func (m *memRepo) Get(ctx context.Context, clientID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[clientID][key]
	return v, ok, nil
}

func (m *memRepo) Set(ctx context.Context, clientID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[clientID] == nil {
		m.values[clientID] = map[string]string{}
	}
	m.values[clientID][key] = value
	return nil
}

func (m *memRepo) Delete(ctx context.Context, clientID string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values[clientID], k)
	}
	return nil
}

func (m *memRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *memRepo) has(clientID, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[clientID][key]
	return ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDeps(t *testing.T, h http.Handler, repo *memRepo) Deps {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return Deps{
		Backend: backend.NewClient(ts.URL, 5*time.Second, nil, discardLogger()),
		Storage: repo,
		Logger:  discardLogger(),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestRegistry_GetRejectsInvalidClientID(t *testing.T) {
	r := NewRegistry(newTestDeps(t, http.NotFoundHandler(), newMemRepo()), time.Minute)

	if _, err := r.Get(context.Background(), "not-a-uuid"); !errors.Is(err, ErrInvalidClientID) {
		t.Errorf("error = %v, want ErrInvalidClientID", err)
	}
	if r.Len() != 0 {
		t.Error("no workspace should be created")
	}
}

func TestRegistry_GetReusesWorkspace(t *testing.T) {
	r := NewRegistry(newTestDeps(t, http.NotFoundHandler(), newMemRepo()), time.Minute)

	first, err := r.Get(context.Background(), testClientID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := r.Get(context.Background(), testClientID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first != second {
		t.Error("same client id should return the same workspace")
	}
	if first.Session.Status().State != session.StateUnauthenticated {
		t.Errorf("state = %q, want unauthenticated for empty storage", first.Session.Status().State)
	}
}

// TestWorkspace_RestoredTokenIsSentAndClearedOn401 は復元したトークンがバックエンド呼び出しに付与され、
// 401で破棄されることを検証する。
func TestWorkspace_RestoredTokenIsSentAndClearedOn401(t *testing.T) {
	var mu sync.Mutex
	var authHeaders []string
	mux := http.NewServeMux()
	mux.HandleFunc("/Profiles/profile", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		mu.Unlock()
		writeJSON(w, map[string]any{"personalInfo": map[string]any{"firstName": "Fresh"}})
	})
	mux.HandleFunc("/ExecutiveProgram/executive-programs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	repo := newMemRepo()
	repo.Set(context.Background(), testClientID, session.KeyAuthToken, "opaque-token")
	repo.Set(context.Background(), testClientID, session.KeyUser, `{"id":"5","firstName":"Cached"}`)

	r := NewRegistry(newTestDeps(t, mux, repo), time.Minute)
	ws, err := r.Get(context.Background(), testClientID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	ws.Session.Wait()

	if !ws.Session.Authenticated() {
		t.Fatal("session should be restored")
	}
	mu.Lock()
	if len(authHeaders) != 1 || authHeaders[0] != "Bearer opaque-token" {
		t.Errorf("Authorization headers = %v", authHeaders)
	}
	mu.Unlock()
	if user, _ := ws.Session.User(); user.FirstName != "Fresh" {
		t.Errorf("user after refresh = %+v", user)
	}

	if err := ws.Programs.FetchPrograms(context.Background()); err == nil {
		t.Fatal("expected rejected fetch")
	}
	if ws.Session.Authenticated() || ws.Session.Token() != "" {
		t.Error("401 should clear the session token")
	}
	if repo.has(testClientID, session.KeyAuthToken) {
		t.Error("401 should remove the stored token")
	}
	if !repo.has(testClientID, session.KeyUser) {
		t.Error("cached user should survive a 401")
	}
}

func TestRegistry_EvictIdle(t *testing.T) {
	r := NewRegistry(newTestDeps(t, http.NotFoundHandler(), newMemRepo()), 10*time.Minute)
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	const otherID = "0b9e8d7c-6b5a-4f3e-9d2c-1b0a9f8e7d6c"
	if _, err := r.Get(context.Background(), testClientID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	now = now.Add(8 * time.Minute)
	if _, err := r.Get(context.Background(), otherID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	now = now.Add(5 * time.Minute)
	if got := r.EvictIdle(); got != 1 {
		t.Errorf("EvictIdle() = %d, want 1", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	now = now.Add(time.Hour)
	if got := r.EvictIdle(); got != 1 {
		t.Errorf("EvictIdle() = %d, want 1", got)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_StartStopsOnCancel(t *testing.T) {
	r := NewRegistry(newTestDeps(t, http.NotFoundHandler(), newMemRepo()), time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Start(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestWorkspace_EducationEntriesReconcilesOncePerFetch(t *testing.T) {
	var calls int
	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc("/Profiles/profile", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		writeJSON(w, map[string]any{
			"academicInformations": []map[string]any{
				{"id": 11, "nameOfDegree": "hsc", "institution": "Notre Dame College", "result": "5.00"},
				{"id": 12, "nameOfDegree": "Diploma", "institution": "Polytechnic"},
			},
		})
	})

	ws := New(testClientID, newTestDeps(t, mux, newMemRepo()))

	entries, err := ws.EducationEntries(context.Background())
	if err != nil {
		t.Fatalf("EducationEntries: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want 4 canonical + 1 extra", len(entries))
	}
	if entries[1].ID != "11" || entries[1].Institution != "Notre Dame College" {
		t.Errorf("HSC slot = %+v", entries[1])
	}

	if err := ws.Education.UpdateEntry(entries[0].ID, "institution", "Ideal School"); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	again, err := ws.EducationEntries(context.Background())
	if err != nil {
		t.Fatalf("EducationEntries: %v", err)
	}
	if again[0].Institution != "Ideal School" {
		t.Error("edits must survive a read without a new fetch")
	}
	mu.Lock()
	if calls != 1 {
		t.Errorf("profile fetched %d times, want 1", calls)
	}
	mu.Unlock()
}

// TestWorkspace_LoginAfterTokenLossStartsFresh は401でトークンを失った後に別アカウントでログインしたとき、
// 前のユーザーのプロフィールと請求履歴が残らないことを検証する。
func TestWorkspace_LoginAfterTokenLossStartsFresh(t *testing.T) {
	accounts := map[string]string{"tok-alice": "alice", "tok-bob": "bob"}
	mux := http.NewServeMux()
	mux.HandleFunc("/Auth/authentication", func(w http.ResponseWriter, r *http.Request) {
		var req backend.AuthRequest
		json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, map[string]any{
			"token":            "tok-" + req.UserName,
			"isAuthSuccessful": true,
			"user":             map[string]any{"id": req.UserName, "firstName": req.UserName},
		})
	})
	mux.HandleFunc("/Profiles/profile", func(w http.ResponseWriter, r *http.Request) {
		name, ok := accounts[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"personalInfo": map[string]any{"firstName": name, "isIubian": name == "alice"}})
	})
	mux.HandleFunc("/Payment/billing-history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": true, "data": []map[string]any{{"id": 9, "regPayable": 500}}})
	})

	ws := New(testClientID, newTestDeps(t, mux, newMemRepo()))
	ctx := context.Background()

	if !ws.Login(ctx, "alice", "pw") {
		t.Fatalf("alice login failed: %s", ws.Session.Err())
	}
	if err := ws.Profile.EnsureLoaded(ctx); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	if err := ws.Billing.FetchHistory(ctx); err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if _, err := ws.EducationEntries(ctx); err != nil {
		t.Fatalf("EducationEntries: %v", err)
	}

	ws.Session.ClearToken()

	if !ws.Login(ctx, "bob", "pw") {
		t.Fatalf("bob login failed: %s", ws.Session.Err())
	}
	if ws.Profile.State.Loaded() || ws.Billing.History.Loaded() {
		t.Error("user scoped stores should be reset on login")
	}
	if err := ws.Profile.EnsureLoaded(ctx); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	info := ws.Profile.State.Snapshot().Data.PersonalInfo
	if info == nil || info.FirstName != "bob" {
		t.Errorf("bob sees personal info %+v", info)
	}
	if info != nil && info.IsIubian {
		t.Error("alice's IUB flag leaked into bob's profile")
	}
}

func TestWorkspace_FailedLoginKeepsState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Auth/authentication", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/Payment/billing-history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"success": true, "data": []map[string]any{}})
	})

	ws := New(testClientID, newTestDeps(t, mux, newMemRepo()))
	if err := ws.Billing.FetchHistory(context.Background()); err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}

	if ws.Login(context.Background(), "nobody", "pw") {
		t.Fatal("login should fail")
	}
	if !ws.Billing.History.Loaded() {
		t.Error("failed login must not reset stores")
	}
}
