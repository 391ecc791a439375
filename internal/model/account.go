// Package model はドメインモデルを定義する。
package model

import "time"

// Role はアカウントの権限ロールを表す。
type Role string

const (
	// RoleUser は標準ユーザー。
	RoleUser Role = "user"
	// RolePremiumUser は有料プラン契約ユーザー。
	RolePremiumUser Role = "premium_user"
	// RoleAdministrator は管理者。管理APIへのアクセスを許可する。
	RoleAdministrator Role = "administrator"
)

// ValidRole はロール値がサポート対象かどうかを返す。
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RolePremiumUser, RoleAdministrator:
		return true
	}
	return false
}

// Account はサービス利用者のアイデンティティレコードを表す。
// GoogleID / FacebookID は外部IdPとの紐付けで、空文字列は未連携を意味する。
type Account struct {
	ID         string
	Email      string
	FirstName  string
	LastName   string
	FullName   string
	Phone      string
	Role       Role
	GoogleID   string
	FacebookID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsAdmin はアカウントが管理者ロールを持つかどうかを返す。
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdministrator
}

// Credential はアカウントと1対1で紐付くパスワード資格情報を表す。
// OAuth専用アカウントの場合、PasswordHashは空のプレースホルダーとして保存される。
type Credential struct {
	UserID       string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Plan はサブスクリプションプランを表す。PriceCentsが0のプランは無料プラン。
type Plan struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int       `json:"priceCents"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Free はプランが無料プランかどうかを返す。
func (p *Plan) Free() bool {
	return p.PriceCents == 0
}

// Subscription はアカウントとプランの契約を表す。
type Subscription struct {
	ID        string
	UserID    string
	PlanID    string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubscriptionStatusActive は有効な契約ステータス。
const SubscriptionStatusActive = "active"

// AccountWithSubscription はアカウントと有効な契約をJOINした結果を表す。
// 契約が存在しない場合、PlanIDとSubscriptionStatusは空。
type AccountWithSubscription struct {
	Account
	PlanID             string
	SubscriptionStatus string
}
