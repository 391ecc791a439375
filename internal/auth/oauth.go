// Package auth はパスワード認証とOAuthアカウント連携のビジネスロジックを提供する。
package auth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/subauth/internal/model"
	"github.com/hitoshi/subauth/internal/repository"
)

// OAuthProfile はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthProfile struct {
	ProviderUserID string
	Email          string
	FirstName      string
	LastName       string
	Provider       string // "google" または "facebook"
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// Google / Facebook の2実装が同一契約を満たす。継承ではなく閉じたバリアント集合。
type OAuthProvider interface {
	// Name はプロバイダー名を返す。
	Name() string
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthProfile, error)
}

// Resolution は外部プロファイルのアイデンティティ解決結果を表す。
// ExistingとPendingは排他で、どちらか一方のみがセットされる。
type Resolution struct {
	// Existing は既存アカウントが見つかった場合にセットされる。
	Existing *model.Account
	// Pending は新規ユーザーの場合にセットされる。アカウントは作成されず、
	// プラン選択後の完了リクエストまでクライアントが保持する。
	Pending *model.PendingIdentity
}

// LinkService は外部プロファイルを既存アカウントに解決するか、
// プラン選択待ちの保留アイデンティティとして返す。
type LinkService struct {
	accounts repository.AccountRepository
}

// NewLinkService はLinkServiceを生成する。
func NewLinkService(accounts repository.AccountRepository) *LinkService {
	return &LinkService{accounts: accounts}
}

// Resolve は外部プロファイルをアイデンティティに解決する。
//
// 既存アカウントが見つかった場合、未連携であればプロバイダーIDを紐付ける
// （1回限りのリンク。既に連携済みなら書き込みは発生しない）。
// 見つからない場合は何も永続化せず、保留アイデンティティを返す。
// アカウント作成はプラン選択後の完了リクエストまで遅延される。
func (s *LinkService) Resolve(ctx context.Context, profile *OAuthProfile) (*Resolution, error) {
	// メールアドレスはアカウント照合の唯一のキーであり、欠落していたら継続できない
	if profile.Email == "" {
		return nil, model.NewMissingEmailError(profile.Provider)
	}

	account, err := s.accounts.FindByEmailOrProviderID(ctx, profile.Email, profile.Provider, profile.ProviderUserID)
	if err != nil {
		return nil, err
	}

	if account != nil {
		if err := s.backfillProviderID(ctx, account, profile); err != nil {
			return nil, err
		}
		slog.Info("existing user resolved via oauth",
			slog.String("user_id", account.ID),
			slog.String("provider", profile.Provider),
		)
		return &Resolution{Existing: account}, nil
	}

	slog.Info("new oauth user detected, deferring account creation",
		slog.String("provider", profile.Provider),
	)

	pending := &model.PendingIdentity{
		Email:     profile.Email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
	}
	switch profile.Provider {
	case "google":
		pending.GoogleID = profile.ProviderUserID
	case "facebook":
		pending.FacebookID = profile.ProviderUserID
	}

	return &Resolution{Pending: pending}, nil
}

// backfillProviderID はメールアドレス一致で見つかった未連携アカウントに
// プロバイダーIDを紐付ける。連携済みの場合は何もしない。
func (s *LinkService) backfillProviderID(ctx context.Context, account *model.Account, profile *OAuthProfile) error {
	var current string
	switch profile.Provider {
	case "google":
		current = account.GoogleID
	case "facebook":
		current = account.FacebookID
	}
	if current != "" {
		return nil
	}

	if err := s.accounts.SetProviderID(ctx, account.ID, profile.Provider, profile.ProviderUserID); err != nil {
		return err
	}

	switch profile.Provider {
	case "google":
		account.GoogleID = profile.ProviderUserID
	case "facebook":
		account.FacebookID = profile.ProviderUserID
	}

	slog.Info("linked oauth provider to existing account",
		slog.String("user_id", account.ID),
		slog.String("provider", profile.Provider),
	)
	return nil
}
