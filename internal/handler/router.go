package handler

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/subauth/internal/metrics"
	"github.com/hitoshi/subauth/internal/middleware"
)

// RouterConfig はルーター構築に必要な依存をまとめる。
type RouterConfig struct {
	AuthHandler  *AuthHandler
	OAuthHandler *OAuthHandler
	AdminHandler *AdminHandler

	TokenVerifier middleware.TokenVerifier
	RoleFinder    middleware.RoleFinder
	RateLimiter   *middleware.RateLimiter
	Metrics       *metrics.Collector

	DB *sql.DB

	AllowedOrigin string
	Logger        *slog.Logger
}

// NewRouter はアプリケーション全体のルーターを構築する。
//
// ミドルウェアの順序: セキュリティヘッダー → CORS → メトリクス → ログ → リカバリー。
// リカバリーを最内にすることで、パニック発生時もログとメトリクスが記録される。
func NewRouter(config RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(config.AllowedOrigin))
	r.Use(config.Metrics.Middleware())
	r.Use(middleware.NewLoggingMiddleware(config.Logger))
	r.Use(middleware.NewRecoveryMiddleware())

	authRequired := middleware.NewAuthMiddleware(config.TokenVerifier)
	adminRequired := middleware.NewAdminMiddleware(config.RoleFinder)

	r.Get("/healthz", newHealthHandler(config.DB))
	r.Method(http.MethodGet, "/metrics", config.Metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		// 認証前の資格情報エンドポイントのみIP単位のレート制限をかける
		r.Group(func(r chi.Router) {
			r.Use(config.RateLimiter.CredentialMiddleware())
			r.Post("/register", config.AuthHandler.Register)
			r.Post("/login", config.AuthHandler.Login)
		})

		r.Get("/google", config.OAuthHandler.Start("google"))
		r.Get("/google/callback", config.OAuthHandler.Callback("google"))
		r.Get("/facebook", config.OAuthHandler.Start("facebook"))
		r.Get("/facebook/callback", config.OAuthHandler.Callback("facebook"))

		r.Post("/register/google", config.OAuthHandler.CompleteGoogle)
		r.Post("/register/facebook", config.OAuthHandler.CompleteFacebook)

		r.Group(func(r chi.Router) {
			r.Use(authRequired)
			r.Get("/me", config.AuthHandler.Me)
			r.Post("/logout", config.AuthHandler.Logout)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(authRequired)
		r.Use(adminRequired)

		r.Get("/users", config.AdminHandler.ListUsers)
		r.Post("/users", config.AdminHandler.CreateUser)
		r.Get("/users/{id}", config.AdminHandler.GetUser)
		r.Put("/users/{id}/role", config.AdminHandler.UpdateRole)
		r.Delete("/users/{id}", config.AdminHandler.DeleteUser)

		r.Get("/plans", config.AdminHandler.ListPlans)
		r.Post("/plans", config.AdminHandler.CreatePlan)
	})

	return r
}

// newHealthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("unhealthy"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
