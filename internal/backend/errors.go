package backend

import (
	"errors"
	"fmt"
)

// Error はバックエンドが2xx以外のステータスを返した場合のエラー。
// Messageはレスポンスボディの message フィールド（存在する場合）。
type Error struct {
	Endpoint   string
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %s returned status %d", e.Endpoint, e.StatusCode)
}

// IsUnauthorized はエラーが401レスポンスによるものかを返す。
func IsUnauthorized(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.StatusCode == 401
}

// MessageOf はユーザーに表示するエラーメッセージを正規化する。
// サーバーが message を返していればそれを、そうでなければ fallback を返す。
func MessageOf(err error, fallback string) string {
	var be *Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return fallback
}
