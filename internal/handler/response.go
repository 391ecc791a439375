// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/subauth/internal/middleware"
	"github.com/hitoshi/subauth/internal/model"
)

// successResponseBody はAPI成功レスポンスの統一フォーマット。
type successResponseBody struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// writeSuccessResponse は統一フォーマットで成功レスポンスを書き込む。
func writeSuccessResponse(w http.ResponseWriter, statusCode int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(successResponseBody{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// statusForCode はエラーコードをHTTPステータスに変換する。
func statusForCode(code string) int {
	switch code {
	case model.ErrCodeValidation, model.ErrCodeMissingEmail,
		model.ErrCodeInvalidRole, model.ErrCodeInvalidPlan,
		model.ErrCodeDuplicateAccount:
		return http.StatusBadRequest
	case model.ErrCodeDuplicateEmail:
		return http.StatusConflict
	case model.ErrCodeInvalidCredentials, model.ErrCodeMissingToken:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidToken, model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// handleServiceError はサービス層のエラーを統一フォーマットのレスポンスに変換する。
// APIError以外（DB障害等）は詳細をログに残し、クライアントには一般的な500を返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, statusForCode(apiErr.Code), apiErr)
		return
	}

	slog.Error("unexpected service error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// decodeJSONBody はリクエストボディをJSONデコードする。
// 不正なボディの場合はValidationErrorを書き込んでfalseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("Corpo della richiesta non valido."))
		return false
	}
	return true
}

// accountJSON はアカウントの公開フィールドをレスポンス用に変換する。
// パスワードハッシュは含まれない。
func accountJSON(a *model.Account) map[string]any {
	return map[string]any{
		"id":        a.ID,
		"email":     a.Email,
		"firstName": a.FirstName,
		"lastName":  a.LastName,
		"fullName":  a.FullName,
		"phone":     a.Phone,
		"role":      a.Role,
		"isAdmin":   a.IsAdmin(),
		"createdAt": a.CreatedAt,
		"updatedAt": a.UpdatedAt,
	}
}
