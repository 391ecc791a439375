package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/subauth/internal/auth"
	"github.com/hitoshi/subauth/internal/metrics"
	"github.com/hitoshi/subauth/internal/middleware"
	"github.com/hitoshi/subauth/internal/model"
)

// oauthStateCookie はCSRF対策のstateパラメータを保持するCookie名。
const oauthStateCookie = "oauth_state"

// LinkResolver は外部プロファイルのアイデンティティ解決インターフェース。
type LinkResolver interface {
	Resolve(ctx context.Context, profile *auth.OAuthProfile) (*auth.Resolution, error)
}

// RegistrationCompleter はプラン選択後の登録完了インターフェース。
type RegistrationCompleter interface {
	CompleteWithPlan(ctx context.Context, pending *model.PendingIdentity, planID string) (*model.Account, string, error)
}

// OAuthTokenIssuer はセッショントークンの発行インターフェース。
type OAuthTokenIssuer interface {
	Issue(userID string, email string, role model.Role) (string, error)
}

// OAuthHandlerConfig はOAuthハンドラーの設定。
type OAuthHandlerConfig struct {
	// FrontendURL はリダイレクト先のフロントエンドのベースURL。
	FrontendURL string
	// CookieSecure はstate CookieにSecure属性を付けるかどうか。
	CookieSecure bool
}

// OAuthHandler はOAuth認証フローと遅延登録完了のハンドラー。
// プロバイダー差分はOAuthProviderインターフェースに閉じ込め、
// コールバック処理とリダイレクト規約は全プロバイダーで共通にする。
type OAuthHandler struct {
	providers    map[string]auth.OAuthProvider
	links        LinkResolver
	registration RegistrationCompleter
	tokens       OAuthTokenIssuer
	recorder     metrics.Recorder
	config       OAuthHandlerConfig
}

// NewOAuthHandler はOAuthHandlerを生成する。
func NewOAuthHandler(
	providers []auth.OAuthProvider,
	links LinkResolver,
	registration RegistrationCompleter,
	tokens OAuthTokenIssuer,
	recorder metrics.Recorder,
	config OAuthHandlerConfig,
) *OAuthHandler {
	byName := make(map[string]auth.OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &OAuthHandler{
		providers:    byName,
		links:        links,
		registration: registration,
		tokens:       tokens,
		recorder:     recorder,
		config:       config,
	}
}

// oauthSignupPayload は新規OAuthユーザーのプロファイルをフロントエンドに
// 引き渡すためのペイロード。プラン選択後の完了リクエストでそのまま送り返される。
type oauthSignupPayload struct {
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	GoogleID   string `json:"googleId,omitempty"`
	FacebookID string `json:"facebookId,omitempty"`
}

// Start はGET /auth/{provider}を処理し、プロバイダーの認証画面にリダイレクトする。
func (h *OAuthHandler) Start(providerName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := h.providers[providerName]
		if !ok {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnknownProviderError())
			return
		}

		state, err := generateState()
		if err != nil {
			slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     oauthStateCookie,
			Value:    state,
			Path:     "/",
			MaxAge:   600,
			HttpOnly: true,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})

		http.Redirect(w, r, provider.GetLoginURL(state), http.StatusTemporaryRedirect)
	}
}

// Callback はGET /auth/{provider}/callbackを処理する。
//
// 既存アカウントに解決された場合はトークン付きでフロントエンドに戻す。
// 新規ユーザーの場合はアカウントを作成せず、プロファイルをURLに載せて
// プラン選択画面にリダイレクトする。失敗時はすべてエラーフラグ付きで
// ログイン画面に戻す（ブラウザはリダイレクトの途中なのでJSONは返せない）。
func (h *OAuthHandler) Callback(providerName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := h.providers[providerName]
		if !ok {
			h.redirectFailure(w, r)
			return
		}

		if !h.validState(r) {
			slog.Warn("oauth state mismatch", slog.String("provider", providerName))
			h.recorder.RecordOAuthCallback(providerName, "failure")
			h.redirectFailure(w, r)
			return
		}
		h.clearStateCookie(w)

		code := r.URL.Query().Get("code")
		if code == "" {
			h.recorder.RecordOAuthCallback(providerName, "failure")
			h.redirectFailure(w, r)
			return
		}

		profile, err := provider.ExchangeCode(r.Context(), code)
		if err != nil {
			slog.Error("oauth code exchange failed",
				slog.String("provider", providerName),
				slog.String("error", err.Error()),
			)
			h.recorder.RecordOAuthCallback(providerName, "failure")
			h.redirectFailure(w, r)
			return
		}

		resolution, err := h.links.Resolve(r.Context(), profile)
		if err != nil {
			slog.Error("oauth identity resolution failed",
				slog.String("provider", providerName),
				slog.String("error", err.Error()),
			)
			h.recorder.RecordOAuthCallback(providerName, "failure")
			h.redirectFailure(w, r)
			return
		}

		if resolution.Existing != nil {
			account := resolution.Existing
			tok, err := h.tokens.Issue(account.ID, account.Email, account.Role)
			if err != nil {
				slog.Error("failed to issue session token",
					slog.String("user_id", account.ID),
					slog.String("error", err.Error()),
				)
				h.recorder.RecordOAuthCallback(providerName, "failure")
				h.redirectFailure(w, r)
				return
			}

			h.recorder.RecordOAuthCallback(providerName, "existing")
			http.Redirect(w, r,
				h.config.FrontendURL+"/auth/callback?token="+url.QueryEscape(tok),
				http.StatusTemporaryRedirect)
			return
		}

		pending := resolution.Pending
		payload, err := json.Marshal(oauthSignupPayload{
			Email:      pending.Email,
			FirstName:  pending.FirstName,
			LastName:   pending.LastName,
			GoogleID:   pending.GoogleID,
			FacebookID: pending.FacebookID,
		})
		if err != nil {
			h.recorder.RecordOAuthCallback(providerName, "failure")
			h.redirectFailure(w, r)
			return
		}

		h.recorder.RecordOAuthCallback(providerName, "new")
		http.Redirect(w, r,
			h.config.FrontendURL+"/pricing?"+providerName+"_signup=true&"+providerName+"_data="+url.QueryEscape(string(payload)),
			http.StatusTemporaryRedirect)
	}
}

// completeGoogleRequest はPOST /auth/register/googleのリクエストボディ。
type completeGoogleRequest struct {
	GoogleData oauthSignupPayload `json:"googleData"`
	PlanID     string             `json:"subscription_plan"`
}

// CompleteGoogle はPOST /auth/register/googleを処理する。
// プラン選択画面から送り返されたGoogleプロファイルでアカウントを作成する。
func (h *OAuthHandler) CompleteGoogle(w http.ResponseWriter, r *http.Request) {
	var req completeGoogleRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.GoogleData.GoogleID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("Dati del profilo Google mancanti."))
		return
	}

	h.completeSignup(w, r, &model.PendingIdentity{
		Email:     req.GoogleData.Email,
		FirstName: req.GoogleData.FirstName,
		LastName:  req.GoogleData.LastName,
		GoogleID:  req.GoogleData.GoogleID,
	}, req.PlanID, "google")
}

// completeFacebookRequest はPOST /auth/register/facebookのリクエストボディ。
type completeFacebookRequest struct {
	FacebookData oauthSignupPayload `json:"facebookData"`
	PlanID       string             `json:"subscription_plan"`
}

// CompleteFacebook はPOST /auth/register/facebookを処理する。
func (h *OAuthHandler) CompleteFacebook(w http.ResponseWriter, r *http.Request) {
	var req completeFacebookRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.FacebookData.FacebookID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("Dati del profilo Facebook mancanti."))
		return
	}

	h.completeSignup(w, r, &model.PendingIdentity{
		Email:      req.FacebookData.Email,
		FirstName:  req.FacebookData.FirstName,
		LastName:   req.FacebookData.LastName,
		FacebookID: req.FacebookData.FacebookID,
	}, req.PlanID, "facebook")
}

// completeSignup は保留アイデンティティの登録完了処理を行う共通部。
// プラン未指定時はfreeプランにフォールバックする。
func (h *OAuthHandler) completeSignup(w http.ResponseWriter, r *http.Request, pending *model.PendingIdentity, planID, flow string) {
	if planID == "" {
		planID = "free"
	}

	account, tok, err := h.registration.CompleteWithPlan(r.Context(), pending, planID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.recorder.RecordRegistration(flow)

	writeSuccessResponse(w, http.StatusCreated, "Registrazione completata con successo.", map[string]any{
		"user":  accountJSON(account),
		"token": tok,
	})
}

// redirectFailure はフロントエンドのログイン画面にエラーフラグ付きでリダイレクトする。
func (h *OAuthHandler) redirectFailure(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.config.FrontendURL+"/login?error=oauth_failed", http.StatusTemporaryRedirect)
}

// validState はクエリのstateとCookieのstateを突き合わせる。
func (h *OAuthHandler) validState(r *http.Request) bool {
	state := r.URL.Query().Get("state")
	if state == "" {
		return false
	}
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil {
		return false
	}
	return cookie.Value == state
}

// clearStateCookie は使用済みのstate Cookieを破棄する。
func (h *OAuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
