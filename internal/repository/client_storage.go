// Package repository はクライアントストレージの永続化を提供する。
package repository

import (
	"context"
	"time"
)

// ClientStorageRepository はブラウザごとのキーバリューストレージの永続化インターフェース。
// client_id はポータルクッキーで識別されるブラウザを表す。
type ClientStorageRepository interface {
	// Get は値を取得する。キーが存在しない場合はfound=falseを返す。
	Get(ctx context.Context, clientID, key string) (value string, found bool, err error)

	// Set は値を保存する。既存のキーは上書きされる。
	Set(ctx context.Context, clientID, key, value string) error

	// Delete は指定キーを削除する。存在しないキーの削除はエラーにしない。
	Delete(ctx context.Context, clientID string, keys ...string) error

	// DeleteStale は updated_at が before より古いエントリを削除し、削除件数を返す。
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// ScopedStorage は1つのクライアントIDに束縛されたストレージビュー。
// セッションストアからはブラウザのローカルストレージと同じように扱える。
type ScopedStorage struct {
	repo     ClientStorageRepository
	clientID string
}

// NewScopedStorage はScopedStorageを生成する。
func NewScopedStorage(repo ClientStorageRepository, clientID string) *ScopedStorage {
	return &ScopedStorage{repo: repo, clientID: clientID}
}

// ClientID は束縛されたクライアントIDを返す。
func (s *ScopedStorage) ClientID() string {
	return s.clientID
}

// Get は値を取得する。
func (s *ScopedStorage) Get(ctx context.Context, key string) (string, bool, error) {
	return s.repo.Get(ctx, s.clientID, key)
}

// Set は値を保存する。
func (s *ScopedStorage) Set(ctx context.Context, key, value string) error {
	return s.repo.Set(ctx, s.clientID, key, value)
}

// Remove は指定キーを削除する。
func (s *ScopedStorage) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.repo.Delete(ctx, s.clientID, keys...)
}
