package auth

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

// ServiceConfig はパスワード認証サービスの設定。
type ServiceConfig struct {
	// BcryptCost はパスワードハッシュのコストファクター。0の場合は12を使用する。
	BcryptCost int
}

// Service はパスワード認証のビジネスロジックを提供する。
type Service struct {
	accounts repository.AccountRepository
	tokens   TokenIssuer
	cost     int
}

// NewService はServiceを生成する。
func NewService(accounts repository.AccountRepository, tokens TokenIssuer, config ServiceConfig) *Service {
	cost := config.BcryptCost
	if cost <= 0 {
		cost = 12
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		cost:     cost,
	}
}

// RegisterInput はパスワード登録の入力を表す。
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	PlanID    string // 任意。プラン未選択の場合は契約を作成しない。
}

// Register はパスワード登録を実行する。
// profiles + auth（+プラン指定時はuser_subscriptions）を単一トランザクションで作成し、
// セッショントークンを発行する。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*model.Account, string, error) {
	if input.Email == "" || input.Password == "" || input.FirstName == "" || input.LastName == "" {
		return nil, "", model.NewValidationError("Email, password, nome e cognome sono obbligatori.")
	}

	existing, err := s.accounts.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", model.NewDuplicateEmailError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	account := &model.Account{
		ID:        uuid.New().String(),
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		FullName:  input.FirstName + " " + input.LastName,
		Phone:     input.Phone,
		Role:      model.RoleUser,
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
		// 事前チェックとINSERTの間に同一メールが登録されたレース
		if repository.IsUniqueViolation(err) {
			return nil, "", model.NewDuplicateEmailError()
		}
		return nil, "", err
	}

	tok, err := s.tokens.Issue(account.ID, account.Email, account.Role)
	if err != nil {
		return nil, "", err
	}

	slog.Info("user registered",
		slog.String("user_id", account.ID),
		slog.Bool("with_plan", sub != nil),
	)

	return account, tok, nil
}

// Login はメールアドレスとパスワードで認証し、セッショントークンを発行する。
// メール未登録とパスワード不一致は同一のエラーを返す（アカウント列挙攻撃対策）。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Account, string, error) {
	if email == "" || password == "" {
		return nil, "", model.NewValidationError("Email e password sono obbligatori.")
	}

	account, cred, err := s.accounts.FindWithCredential(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if account == nil || cred == nil || cred.PasswordHash == "" {
		// OAuth専用アカウント（ハッシュなし）もパスワードログイン不可
		return nil, "", model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, "", model.NewInvalidCredentialsError()
	}

	tok, err := s.tokens.Issue(account.ID, account.Email, account.Role)
	if err != nil {
		return nil, "", err
	}

	slog.Info("user logged in", slog.String("user_id", account.ID))

	return account, tok, nil
}

// CurrentUser は検証済みトークンのアカウントIDから、プロファイルと有効な契約を取得する。
// アカウントが削除済みの場合はNotFoundエラーを返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.AccountWithSubscription, error) {
	account, err := s.accounts.FindByIDWithSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}
	return account, nil
}
