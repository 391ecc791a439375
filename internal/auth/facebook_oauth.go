package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	defaultFacebookAuthURL     = "https://www.facebook.com/v18.0/dialog/oauth"
	defaultFacebookTokenURL    = "https://graph.facebook.com/v18.0/oauth/access_token"
	defaultFacebookUserInfoURL = "https://graph.facebook.com/me"
)

// FacebookOAuthConfig はFacebook OAuthプロバイダーの設定。
type FacebookOAuthConfig struct {
	AppID       string
	AppSecret   string
	RedirectURL string

	// 外部注入用HTTPクライアント。未指定の場合はhttp.DefaultClientを使用する。
	Client *http.Client

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// FacebookOAuthProvider はFacebook Login（OAuth 2.0）による認証を提供する。
// Graph APIのトークンエンドポイントはGET + クエリパラメータである点がGoogleと異なる。
type FacebookOAuthProvider struct {
	config FacebookOAuthConfig
	client *http.Client
}

// NewFacebookOAuthProvider はFacebookOAuthProviderを生成する。
func NewFacebookOAuthProvider(config FacebookOAuthConfig) *FacebookOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultFacebookAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultFacebookTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultFacebookUserInfoURL
	}
	client := config.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &FacebookOAuthProvider{config: config, client: client}
}

// Name はプロバイダー名を返す。
func (p *FacebookOAuthProvider) Name() string {
	return "facebook"
}

// GetLoginURL はFacebook Loginの認証URLを生成する。スコープはemailのみ。
func (p *FacebookOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.AppID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"email"},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// facebookTokenResponse はGraph APIのトークンエンドポイントのレスポンス。
type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// facebookUserInfo はGraph APIの/meエンドポイントのレスポンス。
// メールのスコープをユーザーが拒否した場合、emailフィールドは欠落する。
type facebookUserInfo struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *FacebookOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthProfile, error) {
	tokenResp, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	userInfo, err := p.fetchUserInfo(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	return &OAuthProfile{
		ProviderUserID: userInfo.ID,
		Email:          userInfo.Email,
		FirstName:      userInfo.FirstName,
		LastName:       userInfo.LastName,
		Provider:       "facebook",
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (p *FacebookOAuthProvider) exchangeToken(ctx context.Context, code string) (*facebookTokenResponse, error) {
	params := url.Values{
		"code":          {code},
		"client_id":     {p.config.AppID},
		"client_secret": {p.config.AppSecret},
		"redirect_uri":  {p.config.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.TokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp facebookTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &tokenResp, nil
}

// fetchUserInfo はアクセストークンでFacebookのユーザー情報を取得する。
func (p *FacebookOAuthProvider) fetchUserInfo(ctx context.Context, accessToken string) (*facebookUserInfo, error) {
	params := url.Values{
		"fields":       {"id,email,first_name,last_name"},
		"access_token": {accessToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo facebookUserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}

	if userInfo.ID == "" {
		return nil, fmt.Errorf("empty id in user info response")
	}

	return &userInfo, nil
}

// compile-time interface check
var _ OAuthProvider = (*FacebookOAuthProvider)(nil)
