// Package cleanup はクライアントストレージの自動削除ジョブを提供する。
// 保持期間（デフォルト90日）更新されていないエントリを日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays はエントリの既定の保持日数。
const DefaultRetentionDays = 90

// StalePruner は古いエントリを削除するストレージ。
// repository.ClientStorageRepository が実装する。
type StalePruner interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したクライアントストレージの削除ジョブ。
// 削除対象がなくてもエラーにならないため、何度実行してもよい。
type CleanupJob struct {
	storage       StalePruner
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // エントリの保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(storage StalePruner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		storage:       storage,
		logger:        logger,
		now:           time.Now,
		RetentionDays: DefaultRetentionDays,
	}
}

// Cutoff は削除対象の境界時刻を返す。これより前に更新されたエントリが削除される。
func (j *CleanupJob) Cutoff() time.Time {
	return j.now().Add(-time.Duration(j.RetentionDays) * 24 * time.Hour)
}

// Run は保持期間を超過したエントリを削除し、削除件数を返す。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	if j.RetentionDays <= 0 {
		return 0, fmt.Errorf("invalid retention days: %d", j.RetentionDays)
	}

	start := time.Now()
	cutoff := j.Cutoff()

	deleted, err := j.storage.DeleteStale(ctx, cutoff)
	if err != nil {
		j.logger.Error("client storage cleanup failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return 0, fmt.Errorf("failed to clean up client storage: %w", err)
	}

	j.logger.Info("client storage cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start はinterval間隔でRunを繰り返す。起動直後に1回実行し、ctxがキャンセルされると戻る。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("cleanup run will be retried on the next tick", slog.Duration("interval", interval))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
