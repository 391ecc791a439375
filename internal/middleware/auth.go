// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/subauth/internal/model"
	"github.com/hitoshi/subauth/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストに検証済みクレームを格納するためのキー。
var claimsContextKey = contextKey("claims")

// TokenVerifier はセッショントークンの検証インターフェース。
type TokenVerifier interface {
	Verify(raw string) (*token.Claims, error)
}

// RoleFinder は最新ロールの取得インターフェース。
// repository.AccountRepositoryの部分集合として定義する。
type RoleFinder interface {
	RoleByID(ctx context.Context, id string) (model.Role, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// クレームをリクエストコンテキストに注入するミドルウェアを返す。
// トークン未提示は401、検証失敗は403を返す。
func NewAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewMissingTokenError())
				return
			}

			claims, err := verifier.Verify(raw)
			if err != nil {
				WriteErrorResponse(w, http.StatusForbidden, model.NewInvalidTokenError())
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAdminMiddleware は管理者ロールを要求するミドルウェアを返す。
// NewAuthMiddlewareの後に配置すること。
//
// トークンに埋め込まれたroleクレームは発行時点のスナップショットに過ぎないため
// 使用せず、アカウントIDで必ずDBから最新ロールを再取得する。
// これによりロール変更はトークンの24時間有効期限を待たずに反映される。
func NewAdminMiddleware(roles RoleFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := ClaimsFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewMissingTokenError())
				return
			}

			role, err := roles.RoleByID(r.Context(), claims.UserID)
			if err != nil {
				slog.Error("failed to verify role",
					slog.String("user_id", claims.UserID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			// アカウント削除済み（role == ""）も権限不足として扱う
			if role != model.RoleAdministrator {
				WriteErrorResponse(w, http.StatusForbidden, model.NewAdminRequiredError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// 形式が不正な場合は空文字列を返す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ClaimsFromContext はリクエストコンテキストから検証済みクレームを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func ClaimsFromContext(ctx context.Context) (*token.Claims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Claims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("claims not found in context")
	}
	return claims, nil
}

// ContextWithClaims はコンテキストにクレームを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
