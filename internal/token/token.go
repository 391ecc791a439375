// Package token は署名付きセッショントークンの発行と検証を提供する。
// トークンはステートレスで、サーバー側には一切保存しない。
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/subauth/internal/model"
)

// Claims は検証済みトークンから取り出したアイデンティティクレームを表す。
// Roleは発行時点のスナップショットであり、権限判定には使用しないこと。
// 管理APIの認可はミドルウェアがDBから最新ロールを再取得して行う。
type Claims struct {
	UserID string
	Email  string
	Role   model.Role
}

// sessionClaims はJWTエンコード用の内部クレーム型。
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Manager はHMAC-SHA256署名のセッショントークンを発行・検証する。
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager はManagerを生成する。ttlが0の場合は24時間を使用する。
func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue はアカウント情報からセッショントークンを発行する。
func (m *Manager) Issue(userID string, email string, role model.Role) (string, error) {
	now := m.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Email: email,
		Role:  string(role),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// 検証に失敗した場合はInvalidTokenエラーを返す。
func (m *Manager) Verify(raw string) (*Claims, error) {
	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, model.NewInvalidTokenError()
	}

	if parsed.Subject == "" {
		return nil, model.NewInvalidTokenError()
	}

	return &Claims{
		UserID: parsed.Subject,
		Email:  parsed.Email,
		Role:   model.Role(parsed.Role),
	}, nil
}
