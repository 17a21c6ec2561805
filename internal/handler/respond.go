// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ksiportal/internal/backend"
	"github.com/hitoshi/ksiportal/internal/middleware"
	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/store"
	"github.com/hitoshi/ksiportal/internal/workspace"
)

// maxRequestBody はJSONリクエストボディの上限。
const maxRequestBody = 1 << 20

// messageResponse は処理結果のメッセージだけを返すレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディを v に読み込む。失敗時は400を書き込んで false を返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("The request body could not be parsed."))
		return false
	}
	return true
}

// currentWorkspace はリクエストのWorkspaceを返す。未解決の場合は500を書き込む。
func currentWorkspace(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws, err := middleware.WorkspaceFromContext(r.Context())
	if err != nil {
		slog.Error("workspace missing from request context", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return ws, true
}

// intParam はURLパラメータを整数として読み取る。失敗時は400を書き込む。
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("Invalid "+name+"."))
		return 0, false
	}
	return v, true
}

// handleError はストアやバックエンドから返されたエラーをHTTPレスポンスに変換する。
func handleError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	if backend.IsUnauthorized(err) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var rejected *store.RejectedError
	if errors.As(err, &rejected) {
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewBackendError(rejected.Message))
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeProgramNotFound, model.ErrCodeBillNotFound,
		model.ErrCodeCircularNotFound, model.ErrCodeAttachmentNotFound:
		return http.StatusNotFound
	case model.ErrCodeAttachmentBlocked:
		return http.StatusForbidden
	case model.ErrCodeRegistrationBusy:
		return http.StatusConflict
	case model.ErrCodeBackendFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
