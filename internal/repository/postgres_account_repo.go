package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/subauth/internal/model"
)

// accountColumns はprofilesテーブルのSELECT対象カラム。
const accountColumns = `id, email, first_name, last_name, full_name,
	COALESCE(phone, ''), role, COALESCE(google_id, ''), COALESCE(facebook_id, ''),
	created_at, updated_at`

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// scanAccount は1行分のアカウントをスキャンする。
func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	a := &model.Account{}
	err := row.Scan(
		&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.FullName,
		&a.Phone, &a.Role, &a.GoogleID, &a.FacebookID,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// providerColumn はプロバイダー名を外部IDカラム名に変換する。
func providerColumn(provider string) (string, error) {
	switch provider {
	case "google":
		return "google_id", nil
	case "facebook":
		return "facebook_id", nil
	}
	return "", fmt.Errorf("unknown oauth provider: %s", provider)
}

// nullIfEmpty は空文字列をNULLとして保存するためのヘルパー。
// google_id / facebook_id / phone のUNIQUE・NULL許容カラムで使用する。
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM profiles WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return a, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM profiles WHERE email = $1`, email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return a, nil
}

// FindByEmailOrProviderID はメールアドレスまたはプロバイダー固有IDでアカウントを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmailOrProviderID(ctx context.Context, email, provider, providerUserID string) (*model.Account, error) {
	col, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}

	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM profiles WHERE email = $1 OR `+col+` = $2`,
		email, providerUserID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email or %s: %w", col, err)
	}
	return a, nil
}

// FindWithCredential はメールアドレスでアカウントと資格情報のペアを取得する。
// 見つからない場合は両方nilを返す。
func (r *PostgresAccountRepo) FindWithCredential(ctx context.Context, email string) (*model.Account, *model.Credential, error) {
	a := &model.Account{}
	c := &model.Credential{}
	err := r.db.QueryRowContext(ctx,
		`SELECT p.id, p.email, p.first_name, p.last_name, p.full_name,
		        COALESCE(p.phone, ''), p.role, COALESCE(p.google_id, ''), COALESCE(p.facebook_id, ''),
		        p.created_at, p.updated_at,
		        a.user_id, COALESCE(a.password_hash, ''), a.created_at, a.updated_at
		 FROM profiles p
		 JOIN auth a ON p.id = a.user_id
		 WHERE p.email = $1`,
		email,
	).Scan(
		&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.FullName,
		&a.Phone, &a.Role, &a.GoogleID, &a.FacebookID,
		&a.CreatedAt, &a.UpdatedAt,
		&c.UserID, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find account with credential: %w", err)
	}
	return a, c, nil
}

// FindByIDWithSubscription はアカウントと有効な契約をJOINして取得する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByIDWithSubscription(ctx context.Context, id string) (*model.AccountWithSubscription, error) {
	out := &model.AccountWithSubscription{}
	err := r.db.QueryRowContext(ctx,
		`SELECT p.id, p.email, p.first_name, p.last_name, p.full_name,
		        COALESCE(p.phone, ''), p.role, COALESCE(p.google_id, ''), COALESCE(p.facebook_id, ''),
		        p.created_at, p.updated_at,
		        COALESCE(s.plan_id, ''), COALESCE(s.status, '')
		 FROM profiles p
		 LEFT JOIN user_subscriptions s ON p.id = s.user_id AND s.status = $2
		 WHERE p.id = $1`,
		id, model.SubscriptionStatusActive,
	).Scan(
		&out.ID, &out.Email, &out.FirstName, &out.LastName, &out.FullName,
		&out.Phone, &out.Role, &out.GoogleID, &out.FacebookID,
		&out.CreatedAt, &out.UpdatedAt,
		&out.PlanID, &out.SubscriptionStatus,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account with subscription: %w", err)
	}
	return out, nil
}

// List は全アカウントを管理画面向けの順序で返す。
// 管理者、プレミアムユーザー、標準ユーザーの順、同ロール内は作成日時降順。
func (r *PostgresAccountRepo) List(ctx context.Context) ([]*model.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+`
		 FROM profiles
		 ORDER BY
		   CASE role
		     WHEN 'administrator' THEN 1
		     WHEN 'premium_user' THEN 2
		     WHEN 'user' THEN 3
		     ELSE 4
		   END,
		   created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// CreateWithCredential はアカウント・資格情報・契約（任意）を同一トランザクションで作成する。
// いずれかのINSERTが失敗した場合は全体をロールバックし、部分的な状態を残さない。
func (r *PostgresAccountRepo) CreateWithCredential(ctx context.Context, account *model.Account, cred *model.Credential, sub *model.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, email, first_name, last_name, full_name, phone, role, google_id, facebook_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		account.ID, account.Email, account.FirstName, account.LastName, account.FullName,
		nullIfEmpty(account.Phone), account.Role,
		nullIfEmpty(account.GoogleID), nullIfEmpty(account.FacebookID),
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO auth (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)`,
		cred.UserID, nullIfEmpty(cred.PasswordHash), cred.CreatedAt, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}

	if sub != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_subscriptions (id, user_id, plan_id, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			sub.ID, sub.UserID, sub.PlanID, sub.Status, sub.CreatedAt, sub.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert subscription: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SetProviderID は未連携アカウントにプロバイダー固有IDを紐付ける。
func (r *PostgresAccountRepo) SetProviderID(ctx context.Context, id, provider, providerUserID string) error {
	col, err := providerColumn(provider)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE profiles SET `+col+` = $1, updated_at = now() WHERE id = $2`,
		providerUserID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", col, err)
	}
	return nil
}

// UpdateRole はアカウントのロールを更新する。対象が存在しない場合はNotFoundエラーを返す。
func (r *PostgresAccountRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET role = $1, updated_at = now() WHERE id = $2`,
		role, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return model.NewUserNotFoundError()
	}
	return nil
}

// RoleByID は指定IDの現在のロールを取得する。見つからない場合は空文字列を返す。
func (r *PostgresAccountRepo) RoleByID(ctx context.Context, id string) (model.Role, error) {
	var role model.Role
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM profiles WHERE id = $1`, id,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find role: %w", err)
	}
	return role, nil
}

// DeleteByID はアカウントを削除する。auth、user_subscriptionsはCASCADE削除される。
func (r *PostgresAccountRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM profiles WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return model.NewUserNotFoundError()
	}
	return nil
}

// IsUniqueViolation はPostgreSQLの一意制約違反かどうかを判定する。
// 重複チェックとINSERTの間のレースはDB制約が最後の砦となるため、
// サービス層はこの判定で重複エラーに変換する。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
