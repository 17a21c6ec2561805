package middleware

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/ksiportal/internal/backend"
	"github.com/hitoshi/ksiportal/internal/session"
	"github.com/hitoshi/ksiportal/internal/workspace"
)

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

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRegistry は到達しないバックエンドを向いたRegistryを返す。
func newTestRegistry(t *testing.T, repo *memRepo) *workspace.Registry {
	t.Helper()
	return workspace.NewRegistry(workspace.Deps{
		Backend: backend.NewClient("http://127.0.0.1:1", time.Second, nil, discardLogger()),
		Storage: repo,
		Logger:  discardLogger(),
	}, time.Hour)
}

// authenticatedWorkspace はログイン済みとして復元されたWorkspaceを返す。
func authenticatedWorkspace(t *testing.T, clientID string) *workspace.Workspace {
	t.Helper()
	repo := newMemRepo()
	repo.Set(context.Background(), clientID, session.KeyAuthToken, "tok")
	repo.Set(context.Background(), clientID, session.KeyUser, `{"id":"77","email":"a@b.co"}`)

	ws, err := newTestRegistry(t, repo).Get(context.Background(), clientID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	ws.Session.Wait()
	if !ws.Session.Authenticated() {
		t.Fatal("workspace should be authenticated")
	}
	return ws
}
