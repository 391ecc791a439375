// Package registration はプラン選択後の遅延アカウント作成を提供する。
//
// OAuthハンドシェイクの途中ではプラン選択を収集できないため、
// アイデンティティ解決とアカウント永続化は2つのリクエストに分割される。
// 保留アイデンティティはクライアントが保持し、このパッケージの完了処理が
// ちょうど1回だけ消費する。
package registration

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/subauth/internal/model"
	"github.com/hitoshi/subauth/internal/repository"
)

// TokenIssuer はセッショントークンの発行インターフェース。
type TokenIssuer interface {
	Issue(userID string, email string, role model.Role) (string, error)
}

// NotificationSender は登録完了時の通知メール送信インターフェース。
type NotificationSender interface {
	SendWelcome(ctx context.Context, to, firstName, planName string) error
	SendPaymentNotification(ctx context.Context, to, firstName, planName string, amountCents int) error
}

// ServiceConfig は登録完了サービスの設定。
type ServiceConfig struct {
	// BcryptCost はパスワードハッシュのコストファクター。0の場合は12を使用する。
	BcryptCost int
}

// Service は保留アイデンティティとプラン選択からアカウントを作成する。
type Service struct {
	accounts repository.AccountRepository
	plans    repository.PlanRepository
	tokens   TokenIssuer
	mailer   NotificationSender
	cost     int
}

// NewService はServiceを生成する。mailerはnil許容（送信しない）。
func NewService(
	accounts repository.AccountRepository,
	plans repository.PlanRepository,
	tokens TokenIssuer,
	mailer NotificationSender,
	config ServiceConfig,
) *Service {
	cost := config.BcryptCost
	if cost <= 0 {
		cost = 12
	}
	return &Service{
		accounts: accounts,
		plans:    plans,
		tokens:   tokens,
		mailer:   mailer,
		cost:     cost,
	}
}

// CompleteWithPlan は保留アイデンティティとプラン選択からアカウントを作成する。
//
// 冪等性ガード: INSERT直前にメールアドレス（OAuthの場合はプロバイダーIDも）で
// 再チェックし、既に存在する場合はDuplicateAccountエラーを返す。
// 二重送信などで同一アイデンティティが2回完了するレースは、
// 最終的にDBの一意制約で防がれる。
//
// アカウント・資格情報・契約は単一トランザクションで作成され、
// 途中で失敗した場合は部分的な状態を残さない。
// 成功時は新規アカウントのセッショントークンを返す。
func (s *Service) CompleteWithPlan(ctx context.Context, pending *model.PendingIdentity, planID string) (*model.Account, string, error) {
	if pending == nil || pending.Email == "" || pending.FirstName == "" || pending.LastName == "" {
		return nil, "", model.NewValidationError("Dati del profilo non validi.")
	}
	if pending.Provider() == "" && pending.Password == "" {
		return nil, "", model.NewValidationError("Dati del profilo non validi.")
	}
	if planID == "" {
		return nil, "", model.NewValidationError("Piano di abbonamento obbligatorio.")
	}

	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, "", err
	}
	if plan == nil {
		return nil, "", model.NewInvalidPlanError(planID)
	}

	// 冪等性ガード
	var existing *model.Account
	if provider := pending.Provider(); provider != "" {
		existing, err = s.accounts.FindByEmailOrProviderID(ctx, pending.Email, provider, pending.ProviderUserID())
	} else {
		existing, err = s.accounts.FindByEmail(ctx, pending.Email)
	}
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", model.NewDuplicateAccountError()
	}

	now := time.Now()
	account := &model.Account{
		ID:         uuid.New().String(),
		Email:      pending.Email,
		FirstName:  pending.FirstName,
		LastName:   pending.LastName,
		FullName:   pending.FirstName + " " + pending.LastName,
		Phone:      pending.Phone,
		Role:       model.RoleUser,
		GoogleID:   pending.GoogleID,
		FacebookID: pending.FacebookID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// OAuth専用アカウントはハッシュなしのプレースホルダー行を作成する
	cred := &model.Credential{
		UserID:    account.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pending.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pending.Password), s.cost)
		if err != nil {
			return nil, "", err
		}
		cred.PasswordHash = string(hash)
	}

	sub := &model.Subscription{
		ID:        uuid.New().String(),
		UserID:    account.ID,
		PlanID:    plan.ID,
		Status:    model.SubscriptionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.accounts.CreateWithCredential(ctx, account, cred, sub); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, "", model.NewDuplicateAccountError()
		}
		return nil, "", err
	}

	tok, err := s.tokens.Issue(account.ID, account.Email, account.Role)
	if err != nil {
		return nil, "", err
	}

	slog.Info("deferred registration completed",
		slog.String("user_id", account.ID),
		slog.String("plan_id", plan.ID),
		slog.String("provider", pending.Provider()),
	)

	// 登録完了メールはベストエフォート。失敗しても登録自体は成功とする。
	if s.mailer != nil {
		if err := s.mailer.SendWelcome(ctx, account.Email, account.FirstName, plan.Name); err != nil {
			slog.Warn("failed to send welcome email",
				slog.String("user_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
		// 有料プランは決済確認メールも送る
		if plan.PriceCents > 0 {
			if err := s.mailer.SendPaymentNotification(ctx, account.Email, account.FirstName, plan.Name, plan.PriceCents); err != nil {
				slog.Warn("failed to send payment notification email",
					slog.String("user_id", account.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return account, tok, nil
}
