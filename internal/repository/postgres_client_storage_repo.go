package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresClientStorageRepo はPostgreSQLを使用したクライアントストレージリポジトリ。
type PostgresClientStorageRepo struct {
	db *sql.DB
}

// NewPostgresClientStorageRepo はPostgresClientStorageRepoを生成する。
func NewPostgresClientStorageRepo(db *sql.DB) *PostgresClientStorageRepo {
	return &PostgresClientStorageRepo{db: db}
}

// Get は値を取得する。キーが存在しない場合はfound=falseを返す。
func (r *PostgresClientStorageRepo) Get(ctx context.Context, clientID, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM client_storage WHERE client_id = $1 AND key = $2`,
		clientID, key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get client storage %q: %w", key, err)
	}

	return value, true, nil
}

// Set は値を保存する。(client_id, key) が存在する場合は上書きしupdated_atを更新する。
func (r *PostgresClientStorageRepo) Set(ctx context.Context, clientID, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO client_storage (client_id, key, value, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (client_id, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		clientID, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set client storage %q: %w", key, err)
	}
	return nil
}

// Delete は指定キーをまとめて削除する。
func (r *PostgresClientStorageRepo) Delete(ctx context.Context, clientID string, keys ...string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM client_storage WHERE client_id = $1 AND key = ANY($2)`,
		clientID, pq.Array(keys),
	)
	if err != nil {
		return fmt.Errorf("failed to delete client storage keys: %w", err)
	}
	return nil
}

// DeleteStale は before より前に更新されたエントリを削除する。
func (r *PostgresClientStorageRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM client_storage WHERE updated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale client storage: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted client storage rows: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ClientStorageRepository = (*PostgresClientStorageRepo)(nil)
