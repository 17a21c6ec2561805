// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/workspace"
)

// ClientCookieName はブラウザを識別するCookieの名前。
const ClientCookieName = "portal_client"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var workspaceContextKey = contextKey("workspace")

// WorkspaceProvider はクライアントIDに対応するWorkspaceを返す。
// workspace.Registry が実装する。
type WorkspaceProvider interface {
	Get(ctx context.Context, clientID string) (*workspace.Workspace, error)
}

// ClientConfig はクライアントCookieの設定。
type ClientConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int
}

// NewClientMiddleware はクライアントCookieからWorkspaceを解決してコンテキストに注入する。
// Cookieがない、またはUUIDでない場合は新しいIDを発行する。
func NewClientMiddleware(provider WorkspaceProvider, config ClientConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if c, err := r.Cookie(ClientCookieName); err == nil {
				if id, err := uuid.Parse(c.Value); err == nil {
					clientID = id.String()
				}
			}
			if clientID == "" {
				clientID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    clientID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   config.MaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ws, err := provider.Get(r.Context(), clientID)
			if err != nil {
				slog.Error("failed to resolve workspace",
					slog.String("client_id", clientID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			fillWorkspaceSlot(r.Context(), ws)
			next.ServeHTTP(w, r.WithContext(ContextWithWorkspace(r.Context(), ws)))
		})
	}
}

// NewSessionGuard はログイン済みでないリクエストを401で拒否する。
// NewClientMiddlewareの後に配置する。
func NewSessionGuard() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ws, err := WorkspaceFromContext(r.Context())
			if err != nil || !ws.Session.Authenticated() {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WorkspaceFromContext はリクエストコンテキストからWorkspaceを取得する。
func WorkspaceFromContext(ctx context.Context) (*workspace.Workspace, error) {
	ws, ok := ctx.Value(workspaceContextKey).(*workspace.Workspace)
	if !ok || ws == nil {
		return nil, errors.New("workspace not found in context")
	}
	return ws, nil
}

// ContextWithWorkspace はコンテキストにWorkspaceを注入する。
func ContextWithWorkspace(ctx context.Context, ws *workspace.Workspace) context.Context {
	return context.WithValue(ctx, workspaceContextKey, ws)
}

// ClientIDFromContext はリクエストコンテキストからクライアントIDを取得する。
func ClientIDFromContext(ctx context.Context) string {
	ws, err := WorkspaceFromContext(ctx)
	if err != nil {
		return ""
	}
	return ws.ClientID
}
