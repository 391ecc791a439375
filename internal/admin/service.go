// Package admin はユーザー管理・プラン管理のドメインロジックを提供する。
// 全操作は管理者ロール前提で、認可自体はミドルウェア層が行う。
package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/subauth/internal/model"
	"github.com/hitoshi/subauth/internal/repository"
)

// ServiceConfig は管理サービスの設定。
type ServiceConfig struct {
	// BcryptCost はパスワードハッシュのコストファクター。0の場合は12を使用する。
	BcryptCost int
}

// Service はユーザー管理・プラン管理のサービス層。
type Service struct {
	accounts  repository.AccountRepository
	plans     repository.PlanRepository
	sanitizer *bluemonday.Policy
	cost      int
}

// NewService はServiceを生成する。
// プラン説明文はリッチテキスト入力を許すため、UGCポリシーでサニタイズする。
func NewService(accounts repository.AccountRepository, plans repository.PlanRepository, config ServiceConfig) *Service {
	cost := config.BcryptCost
	if cost <= 0 {
		cost = 12
	}
	return &Service{
		accounts:  accounts,
		plans:     plans,
		sanitizer: bluemonday.UGCPolicy(),
		cost:      cost,
	}
}

// ListUsers は全アカウントを管理画面向けの順序で返す。
func (s *Service) ListUsers(ctx context.Context) ([]*model.Account, error) {
	return s.accounts.List(ctx)
}

// GetUser は指定IDのアカウントを取得する。見つからない場合はNotFoundエラーを返す。
func (s *Service) GetUser(ctx context.Context, id string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}
	return account, nil
}

// CreateUserInput は管理者によるユーザー作成の入力を表す。
type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      model.Role
	PlanID    string // 任意
}

// CreateUser は管理者権限でユーザーを作成する。
// 登録フローと同じく、profiles + auth（+契約）を単一トランザクションで作成する。
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (*model.Account, error) {
	if input.Email == "" || input.Password == "" || input.FirstName == "" || input.LastName == "" {
		return nil, model.NewValidationError("Email, password, nome e cognome sono obbligatori.")
	}
	if input.Role == "" {
		input.Role = model.RoleUser
	}
	if !model.ValidRole(input.Role) {
		return nil, model.NewInvalidRoleError()
	}

	existing, err := s.accounts.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := &model.Account{
		ID:        uuid.New().String(),
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		FullName:  input.FirstName + " " + input.LastName,
		Role:      input.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cred := &model.Credential{
		UserID:       account.ID,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var sub *model.Subscription
	if input.PlanID != "" {
		sub = &model.Subscription{
			ID:        uuid.New().String(),
			UserID:    account.ID,
			PlanID:    input.PlanID,
			Status:    model.SubscriptionStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	if err := s.accounts.CreateWithCredential(ctx, account, cred, sub); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, model.NewDuplicateEmailError()
		}
		return nil, err
	}

	slog.Info("user created by admin",
		slog.String("user_id", account.ID),
		slog.String("role", string(account.Role)),
	)

	return account, nil
}

// UpdateRole はユーザーのロールを変更する。
// 発行済みトークンの失効を待たずに反映させるため、権限判定側は
// 常にDBから最新ロールを再取得する前提になっている。
func (s *Service) UpdateRole(ctx context.Context, id string, role model.Role) error {
	if !model.ValidRole(role) {
		return model.NewInvalidRoleError()
	}

	if err := s.accounts.UpdateRole(ctx, id, role); err != nil {
		return err
	}

	slog.Info("user role updated",
		slog.String("user_id", id),
		slog.String("role", string(role)),
	)
	return nil
}

// DeleteUser はユーザーを削除する。管理者ロールのユーザーは削除できない。
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if account == nil {
		return model.NewUserNotFoundError()
	}
	if account.IsAdmin() {
		return model.NewForbiddenError("Non è possibile eliminare un amministratore.")
	}

	if err := s.accounts.DeleteByID(ctx, id); err != nil {
		return err
	}

	slog.Info("user deleted by admin", slog.String("user_id", id))
	return nil
}

// ListPlans は全プランを返す。
func (s *Service) ListPlans(ctx context.Context) ([]*model.Plan, error) {
	return s.plans.List(ctx)
}

// CreatePlanInput はプラン作成の入力を表す。
type CreatePlanInput struct {
	ID          string
	Name        string
	Description string // HTML可。保存前にサニタイズされる。
	PriceCents  int
}

// CreatePlan はプランを作成する。説明文はUGCポリシーでサニタイズしてから保存する。
func (s *Service) CreatePlan(ctx context.Context, input CreatePlanInput) (*model.Plan, error) {
	if input.ID == "" || input.Name == "" {
		return nil, model.NewValidationError("ID e nome del piano sono obbligatori.")
	}
	if input.PriceCents < 0 {
		return nil, model.NewValidationError("Il prezzo non può essere negativo.")
	}

	existing, err := s.plans.FindByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.NewValidationError("Un piano con questo ID esiste già.")
	}

	plan := &model.Plan{
		ID:          input.ID,
		Name:        input.Name,
		Description: s.sanitizer.Sanitize(input.Description),
		PriceCents:  input.PriceCents,
		CreatedAt:   time.Now(),
	}

	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, err
	}

	slog.Info("plan created", slog.String("plan_id", plan.ID))
	return plan, nil
}
