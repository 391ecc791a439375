package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Messageはエンドユーザーに表示するイタリア語メッセージ、Codeは機械判定用。
type APIError struct {
	Code     string // エラーコード
	Message  string // ユーザー向けメッセージ（イタリア語）
	Category string // カテゴリ: auth, validation, account, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeDuplicateAccount   = "DUPLICATE_ACCOUNT"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeMissingToken       = "MISSING_TOKEN"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMissingEmail       = "MISSING_EMAIL"
	ErrCodeInvalidRole        = "INVALID_ROLE"
	ErrCodeInvalidPlan        = "INVALID_PLAN"
)

// NewValidationError は入力値不正エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "Un utente con questa email esiste già.",
		Category: "account",
	}
}

// NewDuplicateAccountError は登録完了時点でアカウントが既に存在する場合のエラーを生成する。
func NewDuplicateAccountError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateAccount,
		Message:  "Un account con questa email o identità esiste già.",
		Category: "account",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メール未登録とパスワード不一致を区別しない（アカウント列挙攻撃対策）。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Email o password non validi.",
		Category: "auth",
	}
}

// NewMissingTokenError はトークン未提示エラーを生成する。
func NewMissingTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingToken,
		Message:  "Token di accesso richiesto.",
		Category: "auth",
	}
}

// NewInvalidTokenError はトークン検証失敗エラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Token non valido o scaduto.",
		Category: "auth",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "auth",
	}
}

// NewAdminRequiredError は管理者ロールが必要な場合のエラーを生成する。
func NewAdminRequiredError() *APIError {
	return NewForbiddenError("Accesso riservato agli amministratori.")
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "Utente non trovato.",
		Category: "account",
	}
}

// NewUnknownProviderError はサポート外のOAuthプロバイダーが指定された場合のエラーを生成する。
func NewUnknownProviderError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "Provider di autenticazione non supportato.",
		Category: "validation",
	}
}

// NewMissingEmailError はOAuthプロファイルにメールアドレスが含まれない場合のエラーを生成する。
// メール以外に一意キーが無いため、この場合は連携を継続できない。
func NewMissingEmailError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingEmail,
		Message:  fmt.Sprintf("Il profilo %s non contiene un indirizzo email.", provider),
		Category: "auth",
	}
}

// NewInvalidRoleError はサポート外のロールが指定された場合のエラーを生成する。
func NewInvalidRoleError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  "Ruolo non valido.",
		Category: "validation",
	}
}

// NewInvalidPlanError は存在しないプランが指定された場合のエラーを生成する。
func NewInvalidPlanError(planID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPlan,
		Message:  fmt.Sprintf("Piano di abbonamento non valido: %s", planID),
		Category: "validation",
	}
}
