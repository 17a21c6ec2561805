package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ksiportal/internal/workspace"
)

var workspaceSlotKey = contextKey("workspace_slot")

// withWorkspaceSlot は後段で解決されたWorkspaceを受け取る領域をコンテキストに置く。
// ログ出力は内側のミドルウェアより後に行われるため、ポインタ経由で受け渡す。
func withWorkspaceSlot(ctx context.Context, slot **workspace.Workspace) context.Context {
	return context.WithValue(ctx, workspaceSlotKey, slot)
}

func fillWorkspaceSlot(ctx context.Context, ws *workspace.Workspace) {
	if slot, ok := ctx.Value(workspaceSlotKey).(**workspace.Workspace); ok {
		*slot = ws
	}
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// NewLoggingMiddleware はリクエストの構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms と、解決済みであれば client_id と user_id を含む。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			var ws *workspace.Workspace
			next.ServeHTTP(rec, r.WithContext(withWorkspaceSlot(r.Context(), &ws)))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}

			if ws != nil {
				attrs = append(attrs, slog.String("client_id", ws.ClientID))
				if user, ok := ws.Session.User(); ok && user.ID != "" {
					attrs = append(attrs, slog.String("user_id", user.ID.String()))
				}
			}

			// slogのログレベルをステータスコードに応じて変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			// slog.Attr をany スライスに変換
			args := make([]any, len(attrs))
			for i, attr := range attrs {
				args[i] = attr
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}
