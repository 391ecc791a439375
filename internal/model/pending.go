package model

// PendingIdentity はプラン選択まで完了しない登録途中のアイデンティティを表す。
// サーバー側には一切永続化せず、クライアントが保持して完了リクエストで送り返す。
// パスワード登録の場合はPasswordが、OAuth登録の場合はGoogleID/FacebookIDの
// いずれかがセットされる。
type PendingIdentity struct {
	Email      string
	FirstName  string
	LastName   string
	Phone      string
	Password   string
	GoogleID   string
	FacebookID string
}

// Provider はOAuth由来のアイデンティティのプロバイダー名を返す。
// パスワード登録の場合は空文字列。
func (p *PendingIdentity) Provider() string {
	switch {
	case p.GoogleID != "":
		return "google"
	case p.FacebookID != "":
		return "facebook"
	}
	return ""
}

// ProviderUserID はプロバイダー固有の外部IDを返す。
func (p *PendingIdentity) ProviderUserID() string {
	if p.GoogleID != "" {
		return p.GoogleID
	}
	return p.FacebookID
}
