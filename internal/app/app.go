// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/subauth/internal/admin"
	"github.com/hitoshi/subauth/internal/auth"
	"github.com/hitoshi/subauth/internal/config"
	"github.com/hitoshi/subauth/internal/database"
	"github.com/hitoshi/subauth/internal/handler"
	"github.com/hitoshi/subauth/internal/logger"
	"github.com/hitoshi/subauth/internal/mailer"
	"github.com/hitoshi/subauth/internal/metrics"
	"github.com/hitoshi/subauth/internal/middleware"
	"github.com/hitoshi/subauth/internal/registration"
	"github.com/hitoshi/subauth/internal/repository"
	"github.com/hitoshi/subauth/internal/security"
	"github.com/hitoshi/subauth/internal/token"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	planRepo := repository.NewPostgresPlanRepo(db)

	// 3. トークンとセキュリティサービスの初期化
	tokenManager := token.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	outboundGuard := security.NewOutboundGuard()
	oauthClient := outboundGuard.NewSafeClient(cfg.OAuthTimeout)

	// 4. OAuthプロバイダーの初期化
	googleProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Client:       oauthClient,
	})
	facebookProvider := auth.NewFacebookOAuthProvider(auth.FacebookOAuthConfig{
		AppID:       cfg.FacebookAppID,
		AppSecret:   cfg.FacebookAppSecret,
		RedirectURL: cfg.FacebookRedirectURL,
		Client:      oauthClient,
	})

	// 5. ドメインサービスの初期化
	mailService := mailer.New(cfg)

	authService := auth.NewService(accountRepo, tokenManager,
		auth.ServiceConfig{BcryptCost: cfg.BcryptCost})
	linkService := auth.NewLinkService(accountRepo)
	registrationService := registration.NewService(
		accountRepo, planRepo, tokenManager, mailService,
		registration.ServiceConfig{BcryptCost: cfg.BcryptCost},
	)
	adminService := admin.NewService(accountRepo, planRepo,
		admin.ServiceConfig{BcryptCost: cfg.BcryptCost})

	// 6. メトリクスとレート制限の初期化
	collector := metrics.NewCollector()

	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitCredential > 0 {
		// configのRateLimitCredentialはreq/min単位なのでreq/secに変換する
		rateLimiterCfg.CredentialRate = rate.Limit(float64(cfg.RateLimitCredential) / 60.0)
		rateLimiterCfg.CredentialBurst = cfg.RateLimitCredential
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 7. ハンドラーとルーターの構築
	cookieSecure := strings.HasPrefix(cfg.BaseURL, "https://")

	router := handler.NewRouter(handler.RouterConfig{
		AuthHandler: handler.NewAuthHandler(authService, collector),
		OAuthHandler: handler.NewOAuthHandler(
			[]auth.OAuthProvider{googleProvider, facebookProvider},
			linkService,
			registrationService,
			tokenManager,
			collector,
			handler.OAuthHandlerConfig{
				FrontendURL:  cfg.FrontendURL,
				CookieSecure: cookieSecure,
			},
		),
		AdminHandler: handler.NewAdminHandler(adminService, collector),

		TokenVerifier: tokenManager,
		RoleFinder:    accountRepo,
		RateLimiter:   rateLimiter,
		Metrics:       collector,

		DB: db,

		AllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:        slog.Default(),
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
