package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/subauth/internal/auth"
	"github.com/hitoshi/subauth/internal/metrics"
	"github.com/hitoshi/subauth/internal/middleware"
	"github.com/hitoshi/subauth/internal/model"
)

// AuthServiceInterface はパスワード認証サービスのインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, input auth.RegisterInput) (*model.Account, string, error)
	Login(ctx context.Context, email, password string) (*model.Account, string, error)
	CurrentUser(ctx context.Context, userID string) (*model.AccountWithSubscription, error)
}

// AuthHandler はパスワード認証関連のハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	recorder metrics.Recorder
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, recorder metrics.Recorder) *AuthHandler {
	return &AuthHandler{service: service, recorder: recorder}
}

// registerRequest はPOST /auth/registerのリクエストボディ。
type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	PlanID    string `json:"subscription_plan"`
}

// Register はPOST /auth/registerを処理する。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	account, tok, err := h.service.Register(r.Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		PlanID:    req.PlanID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.recorder.RecordRegistration("password")

	writeSuccessResponse(w, http.StatusCreated, "Registrazione completata con successo.", map[string]any{
		"user":  accountJSON(account),
		"token": tok,
	})
}

// loginRequest はPOST /auth/loginのリクエストボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login はPOST /auth/loginを処理する。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	account, tok, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recorder.RecordLogin(false)
		handleServiceError(w, r, err)
		return
	}

	h.recorder.RecordLogin(true)

	writeSuccessResponse(w, http.StatusOK, "Accesso effettuato con successo.", map[string]any{
		"user":  accountJSON(account),
		"token": tok,
	})
}

// Me はGET /auth/meを処理する。認証ミドルウェア通過後に呼ばれる。
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewMissingTokenError())
		return
	}

	account, err := h.service.CurrentUser(r.Context(), claims.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	body := accountJSON(&account.Account)
	body["subscriptionPlan"] = account.PlanID
	body["subscriptionStatus"] = account.SubscriptionStatus

	writeSuccessResponse(w, http.StatusOK, "", map[string]any{"user": body})
}

// Logout はPOST /auth/logoutを処理する。
// セッションはステートレスなトークンのみで、サーバー側に破棄すべき状態は無い。
// クライアントがトークンを破棄するための合図として200を返す。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeSuccessResponse(w, http.StatusOK, "Logout effettuato con successo.", nil)
}
