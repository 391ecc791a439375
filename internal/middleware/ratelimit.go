package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/subauth/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	CredentialRate  rate.Limit    // 認証系エンドポイントのレート（req/sec）。20/60
	CredentialBurst int           // バーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 要件: /auth/login と /auth/register は 20 req/min/IP。
// ログインはbcrypt検証でCPUを消費するため、ブルートフォース対策を兼ねる。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		CredentialRate:  rate.Limit(20.0 / 60.0),
		CredentialBurst: 20,
		CleanupInterval: 5 * time.Minute,
	}
}

// ipLimiter はIPごとのレートリミッターとアクセス時刻を保持する。
type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はクライアントIPごとのレート制限を管理する。
// 認証前のエンドポイントにかけるため、ユーザーIDではなくIPをキーにする。
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.RWMutex
	limiters map[string]*ipLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]*ipLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// CredentialMiddleware は認証系エンドポイント用のレート制限ミドルウェアを返す。
func (rl *RateLimiter) CredentialMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			limiter := rl.getOrCreateLimiter(ip)

			if !limiter.Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
					Code:     "RATE_LIMITED",
					Message:  "Troppe richieste. Riprova tra qualche minuto.",
					Category: "auth",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) LimiterCount() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// getOrCreateLimiter はIPのリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateLimiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	l, exists := rl.limiters[ip]
	rl.mu.RUnlock()

	if exists {
		rl.mu.Lock()
		l.lastAccess = time.Now()
		rl.mu.Unlock()
		return l.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// RLock解放とLock取得の間に別ゴルーチンが作成していた場合
	if l, exists := rl.limiters[ip]; exists {
		l.lastAccess = time.Now()
		return l.limiter
	}

	l = &ipLimiter{
		limiter:    rate.NewLimiter(rl.config.CredentialRate, rl.config.CredentialBurst),
		lastAccess: time.Now(),
	}
	rl.limiters[ip] = l
	return l.limiter
}

// cleanupLoop は一定間隔でアクセスの無いエントリを破棄する。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.config.CleanupInterval)
			rl.mu.Lock()
			for ip, l := range rl.limiters {
				if l.lastAccess.Before(cutoff) {
					delete(rl.limiters, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// clientIP はリクエスト元のIPアドレスを取得する。
// リバースプロキシ配下を想定し、X-Forwarded-Forの先頭を優先する。
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
