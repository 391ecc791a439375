package registration

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/subauth/internal/model"
	"github.com/hitoshi/subauth/internal/repository"
)

// --- モック定義 ---

type mockAccountRepo struct {
	findByEmailFn             func(ctx context.Context, email string) (*model.Account, error)
	findByEmailOrProviderIDFn func(ctx context.Context, email, provider, providerUserID string) (*model.Account, error)
	createWithCredentialFn    func(ctx context.Context, account *model.Account, cred *model.Credential, sub *model.Subscription) error
}

func (m *mockAccountRepo) FindByID(_ context.Context, _ string) (*model.Account, error) {
	return nil, nil
}

func (m *mockAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockAccountRepo) FindByEmailOrProviderID(ctx context.Context, email, provider, providerUserID string) (*model.Account, error) {
	if m.findByEmailOrProviderIDFn != nil {
		return m.findByEmailOrProviderIDFn(ctx, email, provider, providerUserID)
	}
	return nil, nil
}

func (m *mockAccountRepo) FindWithCredential(_ context.Context, _ string) (*model.Account, *model.Credential, error) {
	return nil, nil, nil
}

func (m *mockAccountRepo) FindByIDWithSubscription(_ context.Context, _ string) (*model.AccountWithSubscription, error) {
	return nil, nil
}

func (m *mockAccountRepo) List(_ context.Context) ([]*model.Account, error) {
	return nil, nil
}

func (m *mockAccountRepo) CreateWithCredential(ctx context.Context, account *model.Account, cred *model.Credential, sub *model.Subscription) error {
	if m.createWithCredentialFn != nil {
		return m.createWithCredentialFn(ctx, account, cred, sub)
	}
	return nil
}

func (m *mockAccountRepo) SetProviderID(_ context.Context, _, _, _ string) error {
	return nil
}

func (m *mockAccountRepo) UpdateRole(_ context.Context, _ string, _ model.Role) error {
	return nil
}

func (m *mockAccountRepo) RoleByID(_ context.Context, _ string) (model.Role, error) {
	return "", nil
}

func (m *mockAccountRepo) DeleteByID(_ context.Context, _ string) error {
	return nil
}

type mockPlanRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Plan, error)
}

func (m *mockPlanRepo) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockPlanRepo) List(_ context.Context) ([]*model.Plan, error) {
	return nil, nil
}

func (m *mockPlanRepo) Create(_ context.Context, _ *model.Plan) error {
	return nil
}

type mockTokenIssuer struct{}

func (m *mockTokenIssuer) Issue(userID string, email string, role model.Role) (string, error) {
	return "test-token", nil
}

type mockWelcomeSender struct {
	sendWelcomeFn             func(ctx context.Context, to, firstName, planName string) error
	sendPaymentNotificationFn func(ctx context.Context, to, firstName, planName string, amountCents int) error
}

func (m *mockWelcomeSender) SendWelcome(ctx context.Context, to, firstName, planName string) error {
	if m.sendWelcomeFn != nil {
		return m.sendWelcomeFn(ctx, to, firstName, planName)
	}
	return nil
}

func (m *mockWelcomeSender) SendPaymentNotification(ctx context.Context, to, firstName, planName string, amountCents int) error {
	if m.sendPaymentNotificationFn != nil {
		return m.sendPaymentNotificationFn(ctx, to, firstName, planName, amountCents)
	}
	return nil
}

// --- compile-time interface checks ---
var _ repository.AccountRepository = (*mockAccountRepo)(nil)
var _ repository.PlanRepository = (*mockPlanRepo)(nil)
var _ TokenIssuer = (*mockTokenIssuer)(nil)
var _ NotificationSender = (*mockWelcomeSender)(nil)

func freePlanRepo() *mockPlanRepo {
	return &mockPlanRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Plan, error) {
			if id == "free" {
				return &model.Plan{ID: "free", Name: "Free", PriceCents: 0}, nil
			}
			if id == "premium" {
				return &model.Plan{ID: "premium", Name: "Premium", PriceCents: 2900}, nil
			}
			return nil, nil
		},
	}
}

// --- テスト ---

func TestCompleteWithPlan_OAuthIdentity_CreatesAccountAtomically(t *testing.T) {
	ctx := context.Background()

	var createdAccount *model.Account
	var createdCred *model.Credential
	var createdSub *model.Subscription

	accounts := &mockAccountRepo{
		createWithCredentialFn: func(ctx context.Context, account *model.Account, cred *model.Credential, sub *model.Subscription) error {
			createdAccount = account
			createdCred = cred
			createdSub = sub
			return nil
		},
	}

	var welcomeTo string
	mailer := &mockWelcomeSender{
		sendWelcomeFn: func(ctx context.Context, to, firstName, planName string) error {
			welcomeTo = to
			return nil
		},
	}

	svc := NewService(accounts, freePlanRepo(), &mockTokenIssuer{}, mailer, ServiceConfig{BcryptCost: bcrypt.MinCost})

	pending := &model.PendingIdentity{
		Email:     "mario@example.com",
		FirstName: "Mario",
		LastName:  "Rossi",
		GoogleID:  "g-123",
	}

	account, tok, err := svc.CompleteWithPlan(ctx, pending, "premium")
	if err != nil {
		t.Fatalf("CompleteWithPlan() error = %v", err)
	}
	if tok != "test-token" {
		t.Errorf("token = %q, want %q", tok, "test-token")
	}

	if createdAccount == nil {
		t.Fatal("expected account to be created")
	}
	if createdAccount.GoogleID != "g-123" {
		t.Errorf("googleID = %q, want %q", createdAccount.GoogleID, "g-123")
	}
	if createdAccount.Role != model.RoleUser {
		t.Errorf("role = %q, want %q", createdAccount.Role, model.RoleUser)
	}
	if account.ID != createdAccount.ID {
		t.Errorf("returned account ID = %q, want %q", account.ID, createdAccount.ID)
	}

	// OAuth専用アカウントはハッシュなしのプレースホルダー資格情報を持つこと
	if createdCred == nil {
		t.Fatal("expected credential placeholder to be created")
	}
	if createdCred.PasswordHash != "" {
		t.Error("oauth-only account should not have a password hash")
	}

	// 契約が選択プランで作成されること
	if createdSub == nil {
		t.Fatal("expected subscription to be created")
	}
	if createdSub.PlanID != "premium" {
		t.Errorf("planID = %q, want %q", createdSub.PlanID, "premium")
	}
	if createdSub.Status != model.SubscriptionStatusActive {
		t.Errorf("status = %q, want %q", createdSub.Status, model.SubscriptionStatusActive)
	}

	// 登録完了メールが送信されること
	if welcomeTo != "mario@example.com" {
		t.Errorf("welcome mail sent to %q, want %q", welcomeTo, "mario@example.com")
	}
}

func TestCompleteWithPlan_PasswordIdentity_HashesPassword(t *testing.T) {
	var createdCred *model.Credential
	accounts := &mockAccountRepo{
		createWithCredentialFn: func(ctx context.Context, account *model.Account, cred *model.Credential, sub *model.Subscription) error {
			createdCred = cred
			return nil
		},
	}

	svc := NewService(accounts, freePlanRepo(), &mockTokenIssuer{}, nil, ServiceConfig{BcryptCost: bcrypt.MinCost})

	pending := &model.PendingIdentity{
		Email:     "mario@example.com",
		FirstName: "Mario",
		LastName:  "Rossi",
		Password:  "password123",
	}

	if _, _, err := svc.CompleteWithPlan(context.Background(), pending, "free"); err != nil {
		t.Fatalf("CompleteWithPlan() error = %v", err)
	}

	if createdCred == nil || createdCred.PasswordHash == "" {
		t.Fatal("expected hashed credential")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(createdCred.PasswordHash), []byte("password123")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestCompleteWithPlan_UnknownPlan_ReturnsInvalidPlan(t *testing.T) {
	svc := NewService(&mockAccountRepo{}, freePlanRepo(), &mockTokenIssuer{}, nil, ServiceConfig{BcryptCost: bcrypt.MinCost})

	pending := &model.PendingIdentity{
		Email:     "mario@example.com",
		FirstName: "Mario",
		LastName:  "Rossi",
		GoogleID:  "g-123",
	}

	_, _, err := svc.CompleteWithPlan(context.Background(), pending, "enterprise")
	if err == nil {
		t.Fatal("expected error for unknown plan")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidPlan {
		t.Errorf("expected INVALID_PLAN, got %v", err)
	}
}

func TestCompleteWithPlan_MissingPlan_ReturnsValidationError(t *testing.T) {
	svc := NewService(&mockAccountRepo{}, freePlanRepo(), &mockTokenIssuer{}, nil, ServiceConfig{BcryptCost: bcrypt.MinCost})

	pending := &model.PendingIdentity{
		Email:     "mario@example.com",
		FirstName: "Mario",
		LastName:  "Rossi",
		GoogleID:  "g-123",
	}

	_, _, err := svc.CompleteWithPlan(context.Background(), pending, "")
	if err == nil {
		t.Fatal("expected error for missing plan")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCompleteWithPlan_AlreadyCompleted_ReturnsDuplicateAccount(t *testing.T) {
	// 二重送信: 1回目の完了で作成されたアカウントが再チェックで見つかる
	accounts := &mockAccountRepo{
		findByEmailOrProviderIDFn: func(ctx context.Context, email, provider, providerUserID string) (*model.Account, error) {
			return &model.Account{ID: "user-1", Email: email, GoogleID: providerUserID}, nil
		},
	}

	svc := NewService(accounts, freePlanRepo(), &mockTokenIssuer{}, nil, ServiceConfig{BcryptCost: bcrypt.MinCost})

	pending := &model.PendingIdentity{
		Email:     "mario@example.com",
		FirstName: "Mario",
		LastName:  "Rossi",
		GoogleID:  "g-123",
	}

	_, _, err := svc.CompleteWithPlan(context.Background(), pending, "free")
	if err == nil {
		t.Fatal("expected error for already completed identity")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDuplicateAccount {
		t.Errorf("expected DUPLICATE_ACCOUNT, got %v", err)
	}
}

func TestCompleteWithPlan_UniqueViolationRace_ReturnsDuplicateAccount(t *testing.T) {
	// 再チェックとINSERTの間のレースはDBの一意制約が最後の砦になる
	accounts := &mockAccountRepo{
		createWithCredentialFn: func(ctx context.Context, account *model.Account, cred *model.Credential, sub *model.Subscription) error {
			return &pq.Error{Code: "23505"}
		},
	}

	svc := NewService(accounts, freePlanRepo(), &mockTokenIssuer{}, nil, ServiceConfig{BcryptCost: bcrypt.MinCost})

	pending := &model.PendingIdentity{
		Email:     "mario@example.com",
		FirstName: "Mario",
		LastName:  "Rossi",
		GoogleID:  "g-123",
	}

	_, _, err := svc.CompleteWithPlan(context.Background(), pending, "free")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDuplicateAccount {
		t.Errorf("expected DUPLICATE_ACCOUNT, got %v", err)
	}
}

func TestCompleteWithPlan_MailFailureDoesNotFailRegistration(t *testing.T) {
	mailer := &mockWelcomeSender{
		sendWelcomeFn: func(ctx context.Context, to, firstName, planName string) error {
			return errors.New("smtp connection refused")
		},
	}

	svc := NewService(&mockAccountRepo{}, freePlanRepo(), &mockTokenIssuer{}, mailer, ServiceConfig{BcryptCost: bcrypt.MinCost})

	pending := &model.PendingIdentity{
		Email:     "mario@example.com",
		FirstName: "Mario",
		LastName:  "Rossi",
		GoogleID:  "g-123",
	}

	account, tok, err := svc.CompleteWithPlan(context.Background(), pending, "free")
	if err != nil {
		t.Fatalf("CompleteWithPlan() should succeed despite mail failure, got %v", err)
	}
	if account == nil || tok == "" {
		t.Error("expected account and token despite mail failure")
	}
}

func TestCompleteWithPlan_PaidPlan_SendsPaymentNotification(t *testing.T) {
	var paymentAmount int
	var paymentPlan string
	mailer := &mockWelcomeSender{
		sendPaymentNotificationFn: func(ctx context.Context, to, firstName, planName string, amountCents int) error {
			paymentPlan = planName
			paymentAmount = amountCents
			return nil
		},
	}

	svc := NewService(&mockAccountRepo{}, freePlanRepo(), &mockTokenIssuer{}, mailer, ServiceConfig{BcryptCost: bcrypt.MinCost})

	pending := &model.PendingIdentity{
		Email:     "mario@example.com",
		FirstName: "Mario",
		LastName:  "Rossi",
		GoogleID:  "g-123",
	}

	if _, _, err := svc.CompleteWithPlan(context.Background(), pending, "premium"); err != nil {
		t.Fatalf("CompleteWithPlan() error = %v", err)
	}
	if paymentPlan != "Premium" {
		t.Errorf("payment notification plan = %q, want Premium", paymentPlan)
	}
	if paymentAmount != 2900 {
		t.Errorf("payment notification amount = %d, want 2900", paymentAmount)
	}
}

func TestCompleteWithPlan_FreePlan_NoPaymentNotification(t *testing.T) {
	paymentSent := false
	mailer := &mockWelcomeSender{
		sendPaymentNotificationFn: func(ctx context.Context, to, firstName, planName string, amountCents int) error {
			paymentSent = true
			return nil
		},
	}

	svc := NewService(&mockAccountRepo{}, freePlanRepo(), &mockTokenIssuer{}, mailer, ServiceConfig{BcryptCost: bcrypt.MinCost})

	pending := &model.PendingIdentity{
		Email:     "mario@example.com",
		FirstName: "Mario",
		LastName:  "Rossi",
		GoogleID:  "g-123",
	}

	if _, _, err := svc.CompleteWithPlan(context.Background(), pending, "free"); err != nil {
		t.Fatalf("CompleteWithPlan() error = %v", err)
	}
	if paymentSent {
		t.Error("free plan should not trigger a payment notification")
	}
}

func TestCompleteWithPlan_InvalidPendingIdentity_ReturnsValidationError(t *testing.T) {
	svc := NewService(&mockAccountRepo{}, freePlanRepo(), &mockTokenIssuer{}, nil, ServiceConfig{BcryptCost: bcrypt.MinCost})

	cases := []struct {
		name    string
		pending *model.PendingIdentity
	}{
		{"nil identity", nil},
		{"missing email", &model.PendingIdentity{FirstName: "Mario", LastName: "Rossi", GoogleID: "g-1"}},
		{"missing names", &model.PendingIdentity{Email: "mario@example.com", GoogleID: "g-1"}},
		{"no provider and no password", &model.PendingIdentity{Email: "mario@example.com", FirstName: "Mario", LastName: "Rossi"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.CompleteWithPlan(context.Background(), tc.pending, "free")
			if err == nil {
				t.Fatal("expected validation error")
			}
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
				t.Errorf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}
