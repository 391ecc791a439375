// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// MailProvider はメール送信プロバイダーの種別を表す。
type MailProvider string

const (
	// MailProviderGmail はGmail SMTP経由の送信。
	MailProviderGmail MailProvider = "gmail"
	// MailProviderBrevo はBrevo SMTPリレー経由の送信。
	MailProviderBrevo MailProvider = "brevo"
	// MailProviderNone は送信を行わずログ出力のみ。
	MailProviderNone MailProvider = "none"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// グローバル変数としては公開せず、必要なサービスにコンストラクタで注入する。
type Config struct {
	// Database
	DatabaseURL string

	// Session token
	JWTSecret string
	TokenTTL  time.Duration

	// Password hashing
	BcryptCost int

	// OAuth
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURL   string
	FacebookAppID       string
	FacebookAppSecret   string
	FacebookRedirectURL string
	OAuthTimeout        time.Duration

	// Mail
	MailProvider MailProvider
	MailUser     string
	MailPassword string

	// Rate Limit（req/min単位）
	RateLimitCredential int

	// Server
	ServerPort  string
	BaseURL     string
	FrontendURL string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.FacebookAppID = os.Getenv("FACEBOOK_APP_ID")
	if cfg.FacebookAppID == "" {
		missing = append(missing, "FACEBOOK_APP_ID")
	}

	cfg.FacebookAppSecret = os.Getenv("FACEBOOK_APP_SECRET")
	if cfg.FacebookAppSecret == "" {
		missing = append(missing, "FACEBOOK_APP_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.FrontendURL = os.Getenv("FRONTEND_URL")
	if cfg.FrontendURL == "" {
		missing = append(missing, "FRONTEND_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 12)
	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", cfg.BaseURL+"/auth/google/callback")
	cfg.FacebookRedirectURL = getEnvString("FACEBOOK_REDIRECT_URL", cfg.BaseURL+"/auth/facebook/callback")
	cfg.OAuthTimeout = getEnvDuration("OAUTH_TIMEOUT", 10*time.Second)
	cfg.RateLimitCredential = getEnvInt("RATE_LIMIT_CREDENTIAL", 20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.FrontendURL)

	// Mail設定。プロバイダーを明示的に選択し、credentialsが揃わない場合は起動時にエラーとする。
	provider := MailProvider(getEnvString("MAIL_PROVIDER", string(MailProviderNone)))
	switch provider {
	case MailProviderGmail:
		cfg.MailUser = os.Getenv("GMAIL_EMAIL")
		cfg.MailPassword = os.Getenv("GMAIL_APP_PASSWORD")
		if cfg.MailUser == "" || cfg.MailPassword == "" {
			return nil, fmt.Errorf("MAIL_PROVIDER=gmail requires GMAIL_EMAIL and GMAIL_APP_PASSWORD")
		}
	case MailProviderBrevo:
		cfg.MailUser = os.Getenv("BREVO_EMAIL")
		cfg.MailPassword = os.Getenv("BREVO_API_KEY")
		if cfg.MailUser == "" || cfg.MailPassword == "" {
			return nil, fmt.Errorf("MAIL_PROVIDER=brevo requires BREVO_EMAIL and BREVO_API_KEY")
		}
	case MailProviderNone:
	default:
		return nil, fmt.Errorf("unsupported MAIL_PROVIDER: %s", provider)
	}
	cfg.MailProvider = provider

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
