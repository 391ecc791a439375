package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/subauth/internal/logger"
	"github.com/hitoshi/subauth/internal/token"
)

func captureLogEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	mw := NewLoggingMiddleware(logger.Setup(&buf))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/register", nil))

	entry := captureLogEntry(t, &buf)
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %q, want http_request", entry["msg"])
	}
	if entry["method"] != "POST" {
		t.Errorf("method = %q, want POST", entry["method"])
	}
	if entry["path"] != "/auth/register" {
		t.Errorf("path = %q, want /auth/register", entry["path"])
	}
	if entry["status"] != float64(http.StatusCreated) {
		t.Errorf("status = %v, want %d", entry["status"], http.StatusCreated)
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected duration_ms field")
	}
}

func TestLoggingMiddleware_ServerErrorLoggedAsError(t *testing.T) {
	var buf bytes.Buffer
	mw := NewLoggingMiddleware(logger.Setup(&buf))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	entry := captureLogEntry(t, &buf)
	if entry["level"] != "ERROR" {
		t.Errorf("level = %q, want ERROR for 5xx", entry["level"])
	}
}

func TestLoggingMiddleware_ClientErrorLoggedAsWarn(t *testing.T) {
	var buf bytes.Buffer
	mw := NewLoggingMiddleware(logger.Setup(&buf))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	entry := captureLogEntry(t, &buf)
	if entry["level"] != "WARN" {
		t.Errorf("level = %q, want WARN for 4xx", entry["level"])
	}
}

func TestLoggingMiddleware_IncludesUserIDForAuthenticatedRequests(t *testing.T) {
	var buf bytes.Buffer
	mw := NewLoggingMiddleware(logger.Setup(&buf))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(ContextWithClaims(req.Context(), &token.Claims{UserID: "u-123"}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	entry := captureLogEntry(t, &buf)
	if entry["user_id"] != "u-123" {
		t.Errorf("user_id = %q, want u-123", entry["user_id"])
	}
}

func TestRecoveryMiddleware_ConvertsPanicTo500(t *testing.T) {
	mw := NewRecoveryMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response body: %v", err)
	}
	if body.Error != "INTERNAL_ERROR" {
		t.Errorf("error = %q, want INTERNAL_ERROR", body.Error)
	}
}
