package store

import (
	"context"
	"log/slog"

	"github.com/hitoshi/ksiportal/internal/metrics"
	"github.com/hitoshi/ksiportal/internal/model"
)

// エラー時のフォールバック文言
const (
	FallbackCirculars      = "Failed to fetch circulars"
	FallbackCircular       = "Failed to fetch circular"
	FallbackPrograms       = "Failed to fetch executive programs"
	FallbackProgramTypes   = "Failed to fetch program types"
	FallbackProfile        = "Failed to fetch profile"
	FallbackPersonalInfo   = "Failed to update personal information"
	FallbackEducationInfo  = "Failed to update education information"
	FallbackBillingHistory = "Failed to fetch billing history"
)

// CircularAPI はお知らせ取得に必要なバックエンド操作。
type CircularAPI interface {
	GetCirculars(ctx context.Context) ([]model.Circular, error)
	GetCircular(ctx context.Context, id string) (*model.Circular, error)
}

// CircularStore はお知らせ一覧と選択中のお知らせを保持する。
type CircularStore struct {
	api      CircularAPI
	List     *Resource[[]model.Circular]
	Selected *Resource[*model.Circular]
}

// NewCircularStore はCircularStoreを生成する。
func NewCircularStore(api CircularAPI, collector metrics.MetricsCollector, logger *slog.Logger) *CircularStore {
	return &CircularStore{
		api:      api,
		List:     NewResource[[]model.Circular]("circulars", FallbackCirculars, collector, logger),
		Selected: NewResource[*model.Circular]("circular", FallbackCircular, collector, logger),
	}
}

// FetchAll はお知らせ一覧を取得する。
func (s *CircularStore) FetchAll(ctx context.Context) error {
	return s.List.Fetch(ctx, s.api.GetCirculars)
}

// FetchOne は指定IDのお知らせを取得して選択状態にする。
func (s *CircularStore) FetchOne(ctx context.Context, id string) error {
	return s.Selected.Fetch(ctx, func(ctx context.Context) (*model.Circular, error) {
		return s.api.GetCircular(ctx, id)
	})
}

// ProgramAPI はプログラム取得に必要なバックエンド操作。
type ProgramAPI interface {
	GetExecutivePrograms(ctx context.Context) ([]model.ExecutiveProgram, error)
	GetProgramTypes(ctx context.Context) ([]model.ProgramType, error)
}

// ProgramStore はエグゼクティブプログラムとプログラム種別を保持する。
type ProgramStore struct {
	api      ProgramAPI
	Programs *Resource[[]model.ExecutiveProgram]
	Types    *Resource[[]model.ProgramType]
}

// NewProgramStore はProgramStoreを生成する。
func NewProgramStore(api ProgramAPI, collector metrics.MetricsCollector, logger *slog.Logger) *ProgramStore {
	return &ProgramStore{
		api:      api,
		Programs: NewResource[[]model.ExecutiveProgram]("programs", FallbackPrograms, collector, logger),
		Types:    NewResource[[]model.ProgramType]("program_types", FallbackProgramTypes, collector, logger),
	}
}

// FetchPrograms はプログラム一覧を取得する。
func (s *ProgramStore) FetchPrograms(ctx context.Context) error {
	return s.Programs.Fetch(ctx, s.api.GetExecutivePrograms)
}

// FetchTypes はプログラム種別を取得する。
func (s *ProgramStore) FetchTypes(ctx context.Context) error {
	return s.Types.Fetch(ctx, s.api.GetProgramTypes)
}

// FindProgram は取得済みの一覧からIDでプログラムを探す。
func (s *ProgramStore) FindProgram(id int) (model.ExecutiveProgram, bool) {
	for _, p := range s.Programs.Snapshot().Data {
		if p.ID == id {
			return p, true
		}
	}
	return model.ExecutiveProgram{}, false
}

// BillingAPI は請求履歴取得に必要なバックエンド操作。
type BillingAPI interface {
	GetBillingHistory(ctx context.Context) ([]model.BillingHistoryItem, error)
}

// BillingStore は請求履歴を保持する。
type BillingStore struct {
	api     BillingAPI
	History *Resource[[]model.BillingHistoryItem]
}

// NewBillingStore はBillingStoreを生成する。
func NewBillingStore(api BillingAPI, collector metrics.MetricsCollector, logger *slog.Logger) *BillingStore {
	return &BillingStore{
		api:     api,
		History: NewResource[[]model.BillingHistoryItem]("billing_history", FallbackBillingHistory, collector, logger),
	}
}

// FetchHistory は請求履歴を取得する。
func (s *BillingStore) FetchHistory(ctx context.Context) error {
	return s.History.Fetch(ctx, s.api.GetBillingHistory)
}

// FindBill は取得済みの履歴からIDで請求を探す。
func (s *BillingStore) FindBill(id int) (model.BillingHistoryItem, bool) {
	for _, item := range s.History.Snapshot().Data {
		if item.ID == id {
			return item, true
		}
	}
	return model.BillingHistoryItem{}, false
}
