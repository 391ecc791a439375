package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/subauth/internal/auth"
	"github.com/hitoshi/subauth/internal/metrics"
	"github.com/hitoshi/subauth/internal/middleware"
	"github.com/hitoshi/subauth/internal/model"
	"github.com/hitoshi/subauth/internal/token"
)

type stubVerifier struct {
	claims *token.Claims
}

func (s *stubVerifier) Verify(raw string) (*token.Claims, error) {
	if s.claims != nil && raw == "valid-token" {
		return s.claims, nil
	}
	return nil, model.NewInvalidTokenError()
}

type stubRoleFinder struct {
	role model.Role
}

func (s *stubRoleFinder) RoleByID(ctx context.Context, id string) (model.Role, error) {
	return s.role, nil
}

func newTestRouter(t *testing.T, verifier middleware.TokenVerifier, roles middleware.RoleFinder) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		CredentialRate:  rate.Limit(1000),
		CredentialBurst: 1000,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	collector := metrics.NewCollector()
	oauthHandler := NewOAuthHandler(
		[]auth.OAuthProvider{&stubProvider{name: "google"}, &stubProvider{name: "facebook"}},
		&mockLinkResolver{},
		&mockRegistrationCompleter{},
		&mockTokenIssuer{},
		collector,
		OAuthHandlerConfig{FrontendURL: "http://frontend.example.com"},
	)

	return NewRouter(RouterConfig{
		AuthHandler:   NewAuthHandler(&mockAuthService{}, collector),
		OAuthHandler:  oauthHandler,
		AdminHandler:  NewAdminHandler(&mockAdminService{}, collector),
		TokenVerifier: verifier,
		RoleFinder:    roles,
		RateLimiter:   rl,
		Metrics:       collector,
		AllowedOrigin: "http://frontend.example.com",
		Logger:        slog.Default(),
	})
}

func TestRouter_Healthz_Returns200(t *testing.T) {
	router := newTestRouter(t, &stubVerifier{}, &stubRoleFinder{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouter_Metrics_ExposesCounters(t *testing.T) {
	router := newTestRouter(t, &stubVerifier{}, &stubRoleFinder{})

	// 先に1リクエスト流してステータスカウンタを記録させる
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "subauth_http_status_total") {
		t.Error("metrics output should contain subauth_http_status_total")
	}
}

func TestRouter_AdminWithoutToken_Returns401(t *testing.T) {
	router := newTestRouter(t, &stubVerifier{}, &stubRoleFinder{role: model.RoleAdministrator})

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRouter_AdminWithNonAdminRole_Returns403(t *testing.T) {
	// トークンは有効だがDB上のロールがuserのまま
	verifier := &stubVerifier{claims: &token.Claims{UserID: "user-1", Role: model.RoleAdministrator}}
	router := newTestRouter(t, verifier, &stubRoleFinder{role: model.RoleUser})

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRouter_AdminWithAdminRole_Returns200(t *testing.T) {
	verifier := &stubVerifier{claims: &token.Claims{UserID: "admin-1", Role: model.RoleUser}}
	router := newTestRouter(t, verifier, &stubRoleFinder{role: model.RoleAdministrator})

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestRouter_MeWithoutToken_Returns401(t *testing.T) {
	router := newTestRouter(t, &stubVerifier{}, &stubRoleFinder{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRouter_CORSPreflight_Returns204(t *testing.T) {
	router := newTestRouter(t, &stubVerifier{}, &stubRoleFinder{})

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://frontend.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://frontend.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want allowed origin", got)
	}
}

func TestRouter_CredentialRateLimit_Returns429(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		CredentialRate:  rate.Limit(0.001),
		CredentialBurst: 1,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	collector := metrics.NewCollector()
	router := NewRouter(RouterConfig{
		AuthHandler: NewAuthHandler(&mockAuthService{}, collector),
		OAuthHandler: NewOAuthHandler(
			[]auth.OAuthProvider{&stubProvider{name: "google"}},
			&mockLinkResolver{}, &mockRegistrationCompleter{}, &mockTokenIssuer{},
			collector, OAuthHandlerConfig{FrontendURL: "http://frontend.example.com"},
		),
		AdminHandler:  NewAdminHandler(&mockAdminService{}, collector),
		TokenVerifier: &stubVerifier{},
		RoleFinder:    &stubRoleFinder{},
		RateLimiter:   rl,
		Metrics:       collector,
		AllowedOrigin: "http://frontend.example.com",
		Logger:        slog.Default(),
	})

	var lastCode int
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{}"))
		req.RemoteAddr = "203.0.113.10:41234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", lastCode, http.StatusTooManyRequests)
	}
}

func TestRouter_SecurityHeaders_ArePresent(t *testing.T) {
	router := newTestRouter(t, &stubVerifier{}, &stubRoleFinder{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
