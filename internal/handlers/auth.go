package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/farmguard/internal/models"
	"github.com/BradenHooton/farmguard/internal/services"
	pkgauth "github.com/BradenHooton/farmguard/pkg/auth"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

// AuthGuardService defines the authentication operations the handler needs
type AuthGuardService interface {
	Authenticate(ctx context.Context, email, password, ipAddress, userAgent string) (*services.AuthResult, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	ValidatePasswordStrength(password string) pkgauth.PasswordStrength
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	guard    AuthGuardService
	resolver *pkghttp.IPResolver
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(guard AuthGuardService, resolver *pkghttp.IPResolver, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		guard:    guard,
		resolver: resolver,
		logger:   logger,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// PasswordStrengthRequest represents the request body for a strength check
type PasswordStrengthRequest struct {
	Password string `json:"password" validate:"required,max=256"`
}

// UserResponse is the public view of the authenticated user
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoginResponse is returned on successful authentication
type LoginResponse struct {
	*models.TokenPair
	User UserResponse `json:"user"`
}

// LoginFailureResponse carries the generic rejection plus the counters a
// client may show the user.
type LoginFailureResponse struct {
	Error             string     `json:"error"`
	Message           string     `json:"message"`
	AttemptsRemaining *int       `json:"attempts_remaining,omitempty"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.guard.Authenticate(r.Context(), req.Email, req.Password, h.resolver.ClientIP(r), r.UserAgent())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	switch result.Outcome {
	case models.LoginOutcomeSuccess:
		pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
			TokenPair: result.Tokens,
			User: UserResponse{
				ID:    result.User.ID,
				Email: result.User.Email,
				Name:  result.User.Name,
				Role:  result.User.Role,
			},
		})
	case models.LoginOutcomeBlocked:
		if result.Reason == models.FailureReasonRateLimited {
			pkghttp.WriteTooManyRequests(w, "Too many login attempts. Please try again later.")
			return
		}
		pkghttp.WriteJSON(w, http.StatusLocked, LoginFailureResponse{
			Error:       "account_locked",
			Message:     "Account temporarily locked. Please try again later.",
			LockedUntil: result.LockedUntil,
		})
	default:
		// Inactive accounts get the same answer as bad credentials.
		pkghttp.WriteJSON(w, http.StatusUnauthorized, LoginFailureResponse{
			Error:             "unauthorized",
			Message:           "Invalid email or password",
			AttemptsRemaining: result.AttemptsRemaining,
		})
	}
}

// RefreshToken handles POST /auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := decodeAndValidate(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	tokens, err := h.guard.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Invalid or expired refresh token")
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, tokens)
}

// PasswordStrength handles POST /auth/password-strength
func (h *AuthHandler) PasswordStrength(w http.ResponseWriter, r *http.Request) {
	var req PasswordStrengthRequest
	if err := decodeAndValidate(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.guard.ValidatePasswordStrength(req.Password))
}
