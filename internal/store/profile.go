package store

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/hitoshi/ksiportal/internal/metrics"
	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/profile"
)

// ProfileAPI はプロフィール操作に必要なバックエンド操作。
type ProfileAPI interface {
	GetProfile(ctx context.Context) (*model.Profile, error)
	SubmitPersonalInfo(ctx context.Context, info model.PersonalInfo) error
	SubmitEducationInfo(ctx context.Context, entries []model.AcademicInfo) error
}

// ProfileState はプロフィールストアのデータ。
// Generation は取得に成功するたびに増え、学歴エディタの再整形判定に使う。
type ProfileState struct {
	PersonalInfo         *model.PersonalInfo    `json:"personalInfo"`
	AcademicInformations []model.AcademicRecord `json:"academicInformations"`
	Occupation           *model.Occupation      `json:"occupation"`
	Generation           uint64                 `json:"-"`
}

// ProfileStore はプロフィールを遅延取得して保持する。
type ProfileStore struct {
	api        ProfileAPI
	generation atomic.Uint64
	State      *Resource[ProfileState]
}

// NewProfileStore はProfileStoreを生成する。
func NewProfileStore(api ProfileAPI, collector metrics.MetricsCollector, logger *slog.Logger) *ProfileStore {
	return &ProfileStore{
		api:   api,
		State: NewResource[ProfileState]("profile", FallbackProfile, collector, logger),
	}
}

// EnsureLoaded は未取得の場合のみプロフィールを取得する。
func (s *ProfileStore) EnsureLoaded(ctx context.Context) error {
	if s.State.Loaded() {
		return nil
	}
	return s.Refresh(ctx)
}

// Refresh はプロフィールを再取得する。
func (s *ProfileStore) Refresh(ctx context.Context) error {
	return s.State.Fetch(ctx, func(ctx context.Context) (ProfileState, error) {
		p, err := s.api.GetProfile(ctx)
		if err != nil {
			return ProfileState{}, err
		}
		return ProfileState{
			PersonalInfo:         p.PersonalInfo,
			AcademicInformations: p.AcademicInformations,
			Occupation:           firstOccupation(p.Occupations),
			Generation:           s.generation.Add(1),
		}, nil
	})
}

// UpdatePersonalInfo は個人情報を保存し、成功時にストアへ反映する。
func (s *ProfileStore) UpdatePersonalInfo(ctx context.Context, info model.PersonalInfo) error {
	return s.State.Mutate(ctx, FallbackPersonalInfo, func(ctx context.Context) (func(ProfileState) ProfileState, error) {
		if err := s.api.SubmitPersonalInfo(ctx, info); err != nil {
			return nil, err
		}
		return func(prev ProfileState) ProfileState {
			prev.PersonalInfo = &info
			return prev
		}, nil
	})
}

// UpdateEducationInfo は学歴を保存し、成功時にストアへ反映する。
// 世代は変えないため、編集中の一覧が保存内容で再整形されることはない。
func (s *ProfileStore) UpdateEducationInfo(ctx context.Context, entries []model.AcademicInfo) error {
	return s.State.Mutate(ctx, FallbackEducationInfo, func(ctx context.Context) (func(ProfileState) ProfileState, error) {
		if err := s.api.SubmitEducationInfo(ctx, entries); err != nil {
			return nil, err
		}
		records := profile.ToRecords(entries)
		return func(prev ProfileState) ProfileState {
			prev.AcademicInformations = records
			return prev
		}, nil
	})
}

// Reset はプロフィールを破棄し、次回EnsureLoadedで再取得させる。
func (s *ProfileStore) Reset() {
	s.State.Reset()
}

// ClearError はエラーを消去する。
func (s *ProfileStore) ClearError() {
	s.State.ClearError()
}

// firstOccupation は職歴が1件以上あれば先頭を返す。
// 職歴は先頭1件だけを表示対象とする。
func firstOccupation(occupations []model.Occupation) *model.Occupation {
	if len(occupations) == 0 {
		return nil
	}
	o := occupations[0]
	return &o
}
