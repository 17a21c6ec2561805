package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ksiportal/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Workspaces        middleware.WorkspaceProvider
	ClientConfig      middleware.ClientConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// お知らせ
	Circulars CircularHandlerConfig
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Client → CSRF → RateLimit(General) → SessionGuard
//
// /health、/metrics、/feeds/* はクライアントCookieを発行しない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler()
	profileHandler := NewProfileHandler()
	catalogHandler := NewCatalogHandler()
	billingHandler := NewBillingHandler()
	circularHandler := NewCircularHandler(deps.Circulars)

	// --- クライアント非依存のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Get("/feeds/circulars.rss", circularHandler.RSS)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewClientMiddleware(deps.Workspaces, deps.ClientConfig))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
		r.Get("/session", authHandler.Session)

		// 認証（ログイン不要）
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.AuthMiddleware())
				r.Post("/login", authHandler.Login)
				r.Post("/register", authHandler.Register)
				r.Post("/forgot-password", authHandler.ForgotPassword)
				r.Post("/reset-password", authHandler.ResetPassword)
			})
			r.Post("/validate-reset-token", authHandler.ValidateResetToken)
			r.Post("/logout", authHandler.Logout)
			r.With(middleware.NewSessionGuard()).Post("/change-password", authHandler.ChangePassword)
		})

		// お知らせ（ログイン不要）
		r.Route("/circulars", func(r chi.Router) {
			r.Get("/", circularHandler.ListCirculars)
			r.Get("/{id}", circularHandler.GetCircular)
			r.Get("/{id}/attachments/{n}", circularHandler.Attachment)
		})

		// --- ログインが必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionGuard())

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", profileHandler.GetProfile)
				r.Post("/reset", profileHandler.ResetProfile)
				r.Post("/personal-info", profileHandler.UpdatePersonalInfo)
				r.Get("/education", profileHandler.GetEducation)
				r.Post("/education", profileHandler.UpdateEducation)
			})

			r.Get("/programs", catalogHandler.ListPrograms)
			r.Get("/program-types", catalogHandler.ListProgramTypes)
			r.Post("/programs/{id}/register", catalogHandler.RegisterProgram)

			r.Get("/billing-history", billingHandler.BillingHistory)
			r.Post("/billing/{id}/pay", billingHandler.PayBill)
		})
	})

	return r
}
