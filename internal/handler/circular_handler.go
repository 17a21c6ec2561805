package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ksiportal/internal/backend"
	"github.com/hitoshi/ksiportal/internal/circular"
	"github.com/hitoshi/ksiportal/internal/middleware"
	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/security"
)

// CircularLister は公開フィード用にお知らせ一覧を取得する。
// トークンを持たないバックエンドクライアントが実装する。
type CircularLister interface {
	GetCirculars(ctx context.Context) ([]model.Circular, error)
}

// AttachmentFetcher はお知らせの添付ファイルを取得する。
type AttachmentFetcher interface {
	Fetch(ctx context.Context, c model.Circular, index int) (*circular.File, error)
}

// CircularHandlerConfig はお知らせハンドラーの設定。
type CircularHandlerConfig struct {
	Presenter *circular.Presenter
	Fetcher   AttachmentFetcher
	Lister    CircularLister
	Channel   circular.Channel
	Now       func() time.Time
}

// CircularHandler はお知らせ関連のHTTPハンドラー。
type CircularHandler struct {
	presenter *circular.Presenter
	fetcher   AttachmentFetcher
	lister    CircularLister
	channel   circular.Channel
	now       func() time.Time
}

// NewCircularHandler はCircularHandlerを生成する。
func NewCircularHandler(cfg CircularHandlerConfig) *CircularHandler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &CircularHandler{
		presenter: cfg.Presenter,
		fetcher:   cfg.Fetcher,
		lister:    cfg.Lister,
		channel:   cfg.Channel,
		now:       now,
	}
}

// ListCirculars はお知らせ一覧を返す。説明文はサニタイズ済み。
// GET /api/circulars
func (h *CircularHandler) ListCirculars(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	if err := ws.Circulars.FetchAll(r.Context()); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter.Views(ws.Circulars.List.Snapshot().Data))
}

// GetCircular はお知らせ1件を取得し、選択状態にして返す。
// GET /api/circulars/{id}
func (h *CircularHandler) GetCircular(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCircular(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.presenter.View(*c))
}

// Attachment は添付ファイルをバックエンドから中継する。
// GET /api/circulars/{id}/attachments/{n}
func (h *CircularHandler) Attachment(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || index < 0 {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewAttachmentNotFoundError(index))
		return
	}

	c, ok := h.loadCircular(w, r)
	if !ok {
		return
	}

	file, err := h.fetcher.Fetch(r.Context(), *c, index)
	if err != nil {
		switch {
		case errors.Is(err, circular.ErrAttachmentNotFound):
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewAttachmentNotFoundError(index))
		case errors.Is(err, security.ErrBlockedURL):
			slog.Warn("attachment url blocked",
				slog.String("circular_id", c.ID.String()),
				slog.Int("index", index),
				slog.String("error", err.Error()),
			)
			middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewAttachmentBlockedError())
		case errors.Is(err, circular.ErrAttachmentTooLarge):
			middleware.WriteErrorResponse(w, http.StatusBadGateway,
				model.NewBackendError("The attachment is too large to download."))
		default:
			slog.Warn("attachment fetch failed",
				slog.String("circular_id", c.ID.String()),
				slog.Int("index", index),
				slog.String("error", err.Error()),
			)
			middleware.WriteErrorResponse(w, http.StatusBadGateway,
				model.NewBackendError("Failed to download the attachment."))
		}
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Body)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": file.Name}))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(file.Body)
}

// RSS は有効なお知らせをRSS 2.0で配信する。ログイン状態に依存しない。
// GET /feeds/circulars.rss
func (h *CircularHandler) RSS(w http.ResponseWriter, r *http.Request) {
	circulars, err := h.lister.GetCirculars(r.Context())
	if err != nil {
		slog.Warn("failed to fetch circulars for rss", slog.String("error", err.Error()))
		http.Error(w, "failed to fetch circulars", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if err := circular.WriteRSS(w, h.channel, h.presenter.Views(circulars), h.now()); err != nil {
		slog.Error("failed to write rss", slog.String("error", err.Error()))
	}
}

// loadCircular はURLのIDでお知らせを取得する。失敗時はレスポンスを書き込んで false を返す。
func (h *CircularHandler) loadCircular(w http.ResponseWriter, r *http.Request) (*model.Circular, bool) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return nil, false
	}
	id := chi.URLParam(r, "id")

	if err := ws.Circulars.FetchOne(r.Context(), id); err != nil {
		var be *backend.Error
		if errors.As(err, &be) && be.StatusCode == http.StatusNotFound {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewCircularNotFoundError(id))
			return nil, false
		}
		handleError(w, err)
		return nil, false
	}

	c := ws.Circulars.Selected.Snapshot().Data
	if c == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewCircularNotFoundError(id))
		return nil, false
	}
	return c, true
}
