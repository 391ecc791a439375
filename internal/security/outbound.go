// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// OutboundClientFactory はOAuthプロバイダー向けの外部HTTPクライアント生成インターフェース。
type OutboundClientFactory interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// プロバイダーのトークン・プロファイルエンドポイントへのリクエストは
	// リダイレクト先を含めてこのクライアントを経由させること。
	NewSafeClient(timeout time.Duration) *http.Client
}

// outboundGuard はOutboundClientFactoryの実装。
type outboundGuard struct{}

// NewOutboundGuard はOutboundClientFactoryの新しいインスタンスを生成する。
func NewOutboundGuard() *outboundGuard {
	return &outboundGuard{}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlのデフォルト設定により以下がブロックされる:
//   - プライベートIPアドレス (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
//   - ループバックアドレス (127.0.0.0/8, ::1)
//   - リンクローカルアドレス (169.254.0.0/16, fe80::/10)
//   - メタデータIPアドレス (169.254.169.254)
//
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// OAuthリダイレクトURLを細工したDNS再バインディング攻撃にも対応している。
// timeoutは外部IdP呼び出し全体の上限となる。
func (g *outboundGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// compile-time interface check
var _ OutboundClientFactory = (*outboundGuard)(nil)
