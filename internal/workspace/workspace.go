// Package workspace はブラウザ（クライアントID）ごとの状態を保持する。
// 1つのWorkspaceがセッション、各ストア、学歴エディタ、登録・支払い手続きを束ねる。
package workspace

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/ksiportal/internal/backend"
	"github.com/hitoshi/ksiportal/internal/billing"
	"github.com/hitoshi/ksiportal/internal/metrics"
	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/profile"
	"github.com/hitoshi/ksiportal/internal/repository"
	"github.com/hitoshi/ksiportal/internal/session"
	"github.com/hitoshi/ksiportal/internal/store"
)

const restoreTimeout = 10 * time.Second

// tokenRef はバックエンドクライアントにセッションのトークンを渡す。
// セッションストアはクライアントを使って生成されるため、生成後に store を設定する。
type tokenRef struct {
	store *session.Store
}

func (r *tokenRef) Token() string {
	if r.store == nil {
		return ""
	}
	return r.store.Token()
}

func (r *tokenRef) ClearToken() {
	if r.store != nil {
		r.store.ClearToken()
	}
}

// Workspace は1クライアント分の状態。
type Workspace struct {
	ClientID     string
	API          *backend.Client
	Session      *session.Store
	Circulars    *store.CircularStore
	Programs     *store.ProgramStore
	Billing      *store.BillingStore
	Profile      *store.ProfileStore
	Education    *profile.Editor
	Orchestrator *billing.Orchestrator

	restoreOnce sync.Once
	lastUsed    atomic.Int64
}

// Deps はWorkspace生成に必要な共有依存関係。
type Deps struct {
	Backend       *backend.Client
	Storage       repository.ClientStorageRepository
	Metrics       metrics.MetricsCollector
	Logger        *slog.Logger
	RegSuccessTTL time.Duration
}

// New はクライアントID用のWorkspaceを生成する。セッションの復元は行わない。
func New(clientID string, deps Deps) *Workspace {
	logger := deps.Logger.With(slog.String("client_id", clientID))

	ref := &tokenRef{}
	api := deps.Backend.WithTokens(ref)
	sess := session.NewStore(api, repository.NewScopedStorage(deps.Storage, clientID), deps.Metrics, logger)
	ref.store = sess

	profiles := store.NewProfileStore(api, deps.Metrics, logger)
	programs := store.NewProgramStore(api, deps.Metrics, logger)
	bills := store.NewBillingStore(api, deps.Metrics, logger)

	return &Workspace{
		ClientID:  clientID,
		API:       api,
		Session:   sess,
		Circulars: store.NewCircularStore(api, deps.Metrics, logger),
		Programs:  programs,
		Billing:   bills,
		Profile:   profiles,
		Education: profile.NewEditor(),
		Orchestrator: billing.NewOrchestrator(billing.Config{
			API:        api,
			Users:      sess,
			Profile:    profiles,
			Programs:   programs,
			Billing:    bills,
			Metrics:    deps.Metrics,
			Logger:     logger,
			SuccessTTL: deps.RegSuccessTTL,
		}),
	}
}

// Restore はコールドスタート時のセッション復元を1回だけ行う。
// 同時に呼ばれた場合は最初の呼び出しの完了を待つ。
func (w *Workspace) Restore(ctx context.Context) {
	w.restoreOnce.Do(func() {
		restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
		defer cancel()
		w.Session.Restore(restoreCtx)
	})
}

// Touch は最終利用時刻を更新する。
func (w *Workspace) Touch(now time.Time) {
	w.lastUsed.Store(now.UnixNano())
}

// LastUsed は最終利用時刻を返す。
func (w *Workspace) LastUsed() time.Time {
	return time.Unix(0, w.lastUsed.Load())
}

// EducationEntries はプロフィールを必要なら取得し、学歴エディタの一覧を返す。
// エディタは新しく取得したスナップショットのときだけ再整形される。
func (w *Workspace) EducationEntries(ctx context.Context) ([]model.AcademicInfo, error) {
	if err := w.Profile.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	snap := w.Profile.State.Snapshot()
	w.Education.Load(snap.Data.Generation, snap.Data.AcademicInformations)
	return w.Education.Entries(), nil
}

// Login は認証を行い、成功時はユーザーに紐づくストアの内容を初期化する。
// トークン失効後に別アカウントでログインしても、前のユーザーのデータは残らない。
func (w *Workspace) Login(ctx context.Context, identifier, password string) bool {
	if !w.Session.Login(ctx, identifier, password) {
		return false
	}
	w.resetUserState()
	return true
}

// Logout はセッションを破棄し、ユーザーに紐づくストアの内容を初期化する。
func (w *Workspace) Logout(ctx context.Context) {
	w.Session.Logout(ctx)
	w.resetUserState()
}

func (w *Workspace) resetUserState() {
	w.Profile.Reset()
	w.Programs.Programs.Reset()
	w.Billing.History.Reset()
	w.Education.Reset()
	w.Orchestrator.Reset()
}
