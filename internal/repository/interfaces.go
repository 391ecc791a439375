// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/subauth/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByEmailOrProviderID はメールアドレスまたはプロバイダー固有IDで
	// アカウントを検索する。見つからない場合はnilを返す。
	// providerは "google" または "facebook"。
	FindByEmailOrProviderID(ctx context.Context, email, provider, providerUserID string) (*model.Account, error)

	// FindWithCredential はメールアドレスでアカウントと資格情報のペアを取得する。
	// 見つからない場合は両方nilを返す。
	FindWithCredential(ctx context.Context, email string) (*model.Account, *model.Credential, error)

	// FindByIDWithSubscription はアカウントと有効な契約をJOINして取得する。
	// 見つからない場合はnilを返す。
	FindByIDWithSubscription(ctx context.Context, id string) (*model.AccountWithSubscription, error)

	// List は全アカウントを管理画面向けの順序（ロール優先度、作成日時降順）で返す。
	List(ctx context.Context) ([]*model.Account, error)

	// CreateWithCredential はアカウント・資格情報・契約（任意）を
	// 同一トランザクションで作成する。全件コミットまたは全件ロールバック。
	CreateWithCredential(ctx context.Context, account *model.Account, cred *model.Credential, sub *model.Subscription) error

	// SetProviderID は未連携アカウントにプロバイダー固有IDを紐付ける。
	SetProviderID(ctx context.Context, id, provider, providerUserID string) error

	// UpdateRole はアカウントのロールを更新する。
	// 対象が存在しない場合はNotFoundエラーを返す。
	UpdateRole(ctx context.Context, id string, role model.Role) error

	// RoleByID は指定IDの現在のロールを取得する。見つからない場合は空文字列を返す。
	// トークンのロールクレームを信用せず、権限判定の直前に必ず呼び出すこと。
	RoleByID(ctx context.Context, id string) (model.Role, error)

	// DeleteByID はアカウントを削除する。auth、user_subscriptionsはCASCADE削除される。
	// 対象が存在しない場合はNotFoundエラーを返す。
	DeleteByID(ctx context.Context, id string) error
}

// PlanRepository はサブスクリプションプランの永続化インターフェース。
type PlanRepository interface {
	// FindByID は指定IDのプランを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Plan, error)

	// List は全プランを価格昇順で返す。
	List(ctx context.Context) ([]*model.Plan, error)

	// Create はプランを作成する。
	Create(ctx context.Context, plan *model.Plan) error
}
