package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/farmguard/internal/auth"
	"github.com/BradenHooton/farmguard/internal/models"
	"github.com/BradenHooton/farmguard/internal/services"
	pkgauth "github.com/BradenHooton/farmguard/pkg/auth"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext attaches a token principal to the request
func WithAuthContext(req *http.Request, userID, role string) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{
		UserID: userID,
		Email:  userID + "@example.com",
		Role:   role,
		Method: auth.MethodToken,
	}))
}

// WithURLParams sets chi route parameters on the request
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockAuthGuard implements AuthGuardService for testing
type MockAuthGuard struct {
	AuthenticateFunc             func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResult, error)
	RefreshTokensFunc            func(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	ValidatePasswordStrengthFunc func(password string) pkgauth.PasswordStrength
}

func (m *MockAuthGuard) Authenticate(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResult, error) {
	return m.AuthenticateFunc(ctx, email, password, ipAddress, userAgent)
}

func (m *MockAuthGuard) RefreshTokens(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	return m.RefreshTokensFunc(ctx, refreshToken)
}

func (m *MockAuthGuard) ValidatePasswordStrength(password string) pkgauth.PasswordStrength {
	if m.ValidatePasswordStrengthFunc != nil {
		return m.ValidatePasswordStrengthFunc(password)
	}
	return pkgauth.PasswordStrength{Valid: true, Errors: []string{}}
}

// MockAPIKeyService implements APIKeyServiceInterface for testing
type MockAPIKeyService struct {
	CreateAPIKeyFunc func(ctx context.Context, userID, role, name string, permissions []string, expiresAt *time.Time) (*models.GeneratedAPIKey, error)
	ListUserKeysFunc func(ctx context.Context, userID string, limit, offset int) ([]*models.APIKey, error)
	RevokeAPIKeyFunc func(ctx context.Context, userID, role, keyID string) error
}

func (m *MockAPIKeyService) CreateAPIKey(ctx context.Context, userID, role, name string, permissions []string, expiresAt *time.Time) (*models.GeneratedAPIKey, error) {
	return m.CreateAPIKeyFunc(ctx, userID, role, name, permissions, expiresAt)
}

func (m *MockAPIKeyService) ListUserKeys(ctx context.Context, userID string, limit, offset int) ([]*models.APIKey, error) {
	return m.ListUserKeysFunc(ctx, userID, limit, offset)
}

func (m *MockAPIKeyService) RevokeAPIKey(ctx context.Context, userID, role, keyID string) error {
	return m.RevokeAPIKeyFunc(ctx, userID, role, keyID)
}

// MockFileScanner implements FileScannerService for testing
type MockFileScanner struct {
	ValidateFileFunc func(ctx context.Context, upload services.FileUpload, category string, userID *string) (*services.FileValidationResult, error)
}

func (m *MockFileScanner) ValidateFile(ctx context.Context, upload services.FileUpload, category string, userID *string) (*services.FileValidationResult, error) {
	return m.ValidateFileFunc(ctx, upload, category, userID)
}

// MockSecurityEventService implements SecurityEventServiceInterface for testing
type MockSecurityEventService struct {
	ListFunc    func(ctx context.Context, filter models.SecurityEventFilter) ([]*models.SecurityEvent, error)
	GetFunc     func(ctx context.Context, id string) (*models.SecurityEvent, error)
	ResolveFunc func(ctx context.Context, id, resolvedBy string) (*models.SecurityEvent, error)
}

func (m *MockSecurityEventService) List(ctx context.Context, filter models.SecurityEventFilter) ([]*models.SecurityEvent, error) {
	return m.ListFunc(ctx, filter)
}

func (m *MockSecurityEventService) Get(ctx context.Context, id string) (*models.SecurityEvent, error) {
	return m.GetFunc(ctx, id)
}

func (m *MockSecurityEventService) Resolve(ctx context.Context, id, resolvedBy string) (*models.SecurityEvent, error) {
	return m.ResolveFunc(ctx, id, resolvedBy)
}

// MockAdminService implements AdminServiceInterface and AccountUnlocker for testing
type MockAdminService struct {
	ListActiveLockoutsFunc func(ctx context.Context, limit, offset int) ([]services.LockoutView, error)
	UnlockAccountFunc      func(ctx context.Context, userID, actor string) (bool, error)
}

func (m *MockAdminService) ListActiveLockouts(ctx context.Context, limit, offset int) ([]services.LockoutView, error) {
	return m.ListActiveLockoutsFunc(ctx, limit, offset)
}

func (m *MockAdminService) UnlockAccount(ctx context.Context, userID, actor string) (bool, error) {
	return m.UnlockAccountFunc(ctx, userID, actor)
}
