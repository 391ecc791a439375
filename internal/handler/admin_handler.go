package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/subauth/internal/admin"
	"github.com/hitoshi/subauth/internal/metrics"
	"github.com/hitoshi/subauth/internal/model"
)

// AdminServiceInterface はユーザー管理・プラン管理サービスのインターフェース。
type AdminServiceInterface interface {
	ListUsers(ctx context.Context) ([]*model.Account, error)
	GetUser(ctx context.Context, id string) (*model.Account, error)
	CreateUser(ctx context.Context, input admin.CreateUserInput) (*model.Account, error)
	UpdateRole(ctx context.Context, id string, role model.Role) error
	DeleteUser(ctx context.Context, id string) error
	ListPlans(ctx context.Context) ([]*model.Plan, error)
	CreatePlan(ctx context.Context, input admin.CreatePlanInput) (*model.Plan, error)
}

// AdminHandler は管理エンドポイントのハンドラー。
// 認証と管理者ロールの確認はミドルウェア層で行われる前提。
type AdminHandler struct {
	service  AdminServiceInterface
	recorder metrics.Recorder
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface, recorder metrics.Recorder) *AdminHandler {
	return &AdminHandler{service: service, recorder: recorder}
}

// ListUsers はGET /admin/usersを処理する。
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListUsers(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	users := make([]map[string]any, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, accountJSON(a))
	}

	writeSuccessResponse(w, http.StatusOK, "", map[string]any{"users": users})
}

// GetUser はGET /admin/users/{id}を処理する。
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, "", map[string]any{"user": accountJSON(account)})
}

// createUserRequest はPOST /admin/usersのリクエストボディ。
type createUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	PlanID    string `json:"subscription_plan"`
}

// CreateUser はPOST /admin/usersを処理する。
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	account, err := h.service.CreateUser(r.Context(), admin.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      model.Role(req.Role),
		PlanID:    req.PlanID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.recorder.RecordRegistration("admin")

	writeSuccessResponse(w, http.StatusCreated, "Utente creato con successo.", map[string]any{
		"user": accountJSON(account),
	})
}

// updateRoleRequest はPUT /admin/users/{id}/roleのリクエストボディ。
type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateRole はPUT /admin/users/{id}/roleを処理する。
func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.UpdateRole(r.Context(), chi.URLParam(r, "id"), model.Role(req.Role)); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, "Ruolo aggiornato con successo.", nil)
}

// DeleteUser はDELETE /admin/users/{id}を処理する。
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, "Utente eliminato con successo.", nil)
}

// ListPlans はGET /admin/plansを処理する。
func (h *AdminHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListPlans(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccessResponse(w, http.StatusOK, "", map[string]any{"plans": plans})
}

// createPlanRequest はPOST /admin/plansのリクエストボディ。
type createPlanRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int    `json:"priceCents"`
}

// CreatePlan はPOST /admin/plansを処理する。
func (h *AdminHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	plan, err := h.service.CreatePlan(r.Context(), admin.CreatePlanInput{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeSuccessResponse(w, http.StatusCreated, "Piano creato con successo.", map[string]any{
		"plan": plan,
	})
}
