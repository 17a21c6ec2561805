package workspace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ksiportal/internal/metrics"
)

// ErrInvalidClientID はクライアントIDがUUIDでない場合のエラー。
var ErrInvalidClientID = errors.New("invalid client id")

// Registry はクライアントIDごとのWorkspaceを保持する。
// Workspaceは初回アクセス時に生成・復元され、一定時間使われなければ破棄される。
type Registry struct {
	deps    Deps
	idleTTL time.Duration
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewRegistry はRegistryを生成する。
func NewRegistry(deps Deps, idleTTL time.Duration) *Registry {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Registry{
		deps:       deps,
		idleTTL:    idleTTL,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        time.Now,
		workspaces: make(map[string]*Workspace),
	}
}

// Get はクライアントのWorkspaceを返す。なければ生成してセッションを復元する。
func (r *Registry) Get(ctx context.Context, clientID string) (*Workspace, error) {
	id, err := uuid.Parse(clientID)
	if err != nil {
		return nil, ErrInvalidClientID
	}
	clientID = id.String()

	r.mu.Lock()
	ws, ok := r.workspaces[clientID]
	if !ok {
		ws = New(clientID, r.deps)
		r.workspaces[clientID] = ws
		r.metrics.SetActiveWorkspaces(len(r.workspaces))
	}
	ws.Touch(r.now())
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("workspace created", slog.String("client_id", clientID))
	}

	ws.Restore(ctx)
	return ws, nil
}

// Len は保持中のWorkspace数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// EvictIdle はidleTTLを超えて使われていないWorkspaceを破棄し、破棄した数を返す。
// 破棄はタブを閉じた状態に相当し、次回アクセス時はストレージから復元される。
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var evicted []*Workspace
	for id, ws := range r.workspaces {
		if ws.LastUsed().Before(cutoff) {
			evicted = append(evicted, ws)
			delete(r.workspaces, id)
		}
	}
	remaining := len(r.workspaces)
	r.mu.Unlock()

	for _, ws := range evicted {
		ws.Session.Wait()
	}
	if len(evicted) > 0 {
		r.metrics.SetActiveWorkspaces(remaining)
		r.logger.Info("idle workspaces evicted",
			slog.Int("evicted", len(evicted)),
			slog.Int("remaining", remaining),
		)
	}
	return len(evicted)
}

// Start はinterval間隔でEvictIdleを実行する。コンテキストがキャンセルされるまで続ける。
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("workspace eviction started",
		slog.Duration("interval", interval),
		slog.Duration("idle_ttl", r.idleTTL),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("workspace eviction stopped")
			return
		case <-ticker.C:
			r.EvictIdle()
		}
	}
}
