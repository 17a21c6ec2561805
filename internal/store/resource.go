// Package store はバックエンドデータの非同期状態コンテナを提供する。
//
// 各リソースは pending（loading=true、エラー消去）→ fulfilled（データを丸ごと置換）
// → rejected（エラーを設定、データは保持）のライフサイクルをたどる。
// 同時に複数の取得が走った場合は、最後に発行した取得の結果だけを反映する。
// 取得中に成功した更新は、取得結果の上に再適用される。
package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/ksiportal/internal/backend"
	"github.com/hitoshi/ksiportal/internal/metrics"
)

// Status はリソースのライフサイクル状態。
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
	StatusRejected  Status = "rejected"
)

// Snapshot はリソースのある時点の状態。
type Snapshot[T any] struct {
	Data    T      `json:"data"`
	Status  Status `json:"status"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	Loaded  bool   `json:"loaded"`
}

// RejectedError はリクエストが失敗した場合に返るエラー。
// Message はストアに設定された正規化済みメッセージ。
type RejectedError struct {
	Resource string
	Message  string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *RejectedError) Error() string {
	return e.Resource + ": " + e.Message
}

// Unwrap は元のエラーを返す。
func (e *RejectedError) Unwrap() error {
	return e.Err
}

// Resource は型Tのデータを保持する非同期状態コンテナ。
type Resource[T any] struct {
	name     string
	fallback string
	metrics  metrics.MetricsCollector
	logger   *slog.Logger

	mu      sync.RWMutex
	data    T
	status  Status
	loading bool
	errMsg  string
	loaded  bool

	latestFetch  uint64 // 最後に発行した取得のチケット番号
	latestMutate uint64 // 最後に発行した更新のチケット番号
	epoch        uint64 // Resetごとに進む
	inflight     int
	fetching     bool
	replay       []func(T) T // 取得中に適用した更新
}

// NewResource はResourceを生成する。fallback はサーバーメッセージがない場合のエラー文言。
func NewResource[T any](name, fallback string, collector metrics.MetricsCollector, logger *slog.Logger) *Resource[T] {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resource[T]{
		name:     name,
		fallback: fallback,
		metrics:  collector,
		logger:   logger,
		status:   StatusIdle,
	}
}

// Snapshot は現在の状態を返す。
func (r *Resource[T]) Snapshot() Snapshot[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Snapshot[T]{
		Data:    r.data,
		Status:  r.status,
		Loading: r.loading,
		Error:   r.errMsg,
		Loaded:  r.loaded,
	}
}

// Loaded は一度でも取得に成功したかを返す。
func (r *Resource[T]) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Fetch は fn の結果でデータを丸ごと置き換える。
func (r *Resource[T]) Fetch(ctx context.Context, fn func(ctx context.Context) (T, error)) error {
	return r.run(ctx, r.fallback, true, func(ctx context.Context) (func(T) T, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return func(T) T { return v }, nil
	})
}

// Mutate は fn が返す更新関数を現在のデータに適用する。
// 失敗時のメッセージは fallback を使い、取得済みフラグは変更しない。
func (r *Resource[T]) Mutate(ctx context.Context, fallback string, fn func(ctx context.Context) (func(T) T, error)) error {
	return r.run(ctx, fallback, false, fn)
}

// Reset はデータとエラーを初期化する。実行中のリクエストの結果は破棄される。
func (r *Resource[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	r.epoch++
	r.inflight = 0
	r.fetching = false
	r.replay = nil
	r.data = zero
	r.status = StatusIdle
	r.loading = false
	r.errMsg = ""
	r.loaded = false
}

// ClearError はエラーだけを消去する。
func (r *Resource[T]) ClearError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errMsg = ""
}

func (r *Resource[T]) run(ctx context.Context, fallback string, isFetch bool, fn func(ctx context.Context) (func(T) T, error)) error {
	ticket, epoch := r.begin(isFetch)

	update, err := fn(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if epoch != r.epoch {
		r.logger.Debug("dropping response issued before reset", slog.String("resource", r.name))
		return nil
	}
	r.inflight--
	r.loading = r.inflight > 0

	latest := r.latestMutate
	if isFetch {
		latest = r.latestFetch
	}
	if ticket != latest {
		r.logger.Debug("dropping superseded response",
			slog.String("resource", r.name),
			slog.Bool("fetch", isFetch),
			slog.Uint64("ticket", ticket),
			slog.Uint64("latest", latest),
		)
		return nil
	}

	if err != nil {
		if isFetch {
			r.fetching = false
			r.replay = nil
		}
		r.status = StatusRejected
		r.errMsg = backend.MessageOf(err, fallback)
		r.metrics.RecordStoreRejection(r.name)
		return &RejectedError{Resource: r.name, Message: r.errMsg, Err: err}
	}

	r.data = update(r.data)
	switch {
	case isFetch:
		for _, u := range r.replay {
			r.data = u(r.data)
		}
		r.replay = nil
		r.fetching = false
		r.loaded = true
	case r.fetching:
		r.replay = append(r.replay, update)
	}
	r.status = StatusFulfilled
	return nil
}

func (r *Resource[T]) begin(isFetch bool) (uint64, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ticket uint64
	if isFetch {
		r.latestFetch++
		ticket = r.latestFetch
		r.fetching = true
		r.replay = nil
	} else {
		r.latestMutate++
		ticket = r.latestMutate
	}
	r.inflight++
	r.status = StatusPending
	r.loading = true
	r.errMsg = ""
	return ticket, r.epoch
}
