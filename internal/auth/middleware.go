package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/BradenHooton/farmguard/internal/models"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

type contextKey string

const principalContextKey contextKey = "principal"

const (
	MethodToken  = "token"
	MethodAPIKey = "api_key"
)

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	UserID      string
	Email       string
	Role        string
	Method      string
	APIKeyID    string
	Permissions []string
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the caller, or nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// APIKeyAuthenticator resolves a presented key to a usable key record.
// It returns models.ErrUnauthorized for unknown, inactive or expired keys.
type APIKeyAuthenticator interface {
	AuthenticateAPIKey(ctx context.Context, plainKey string) (*models.APIKey, error)
}

// UserRepository is the user lookup RequireRole needs.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Identify attaches a Principal when the request carries a bearer token or
// an API key (Authorization: ApiKey <key>, or X-API-Key). Requests without
// credentials pass through anonymously. Invalid credentials are noted on the
// context and the request continues anonymously, so the rate limiter still
// counts it against the client IP; RejectInvalidCredentials writes the
// rejection.
func Identify(tm *TokenManager, keys APIKeyAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, credential := credentialsFrom(r)
			if credential == "" {
				next.ServeHTTP(w, r)
				return
			}

			reject := func(failure *credentialFailure) {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), credentialFailureKey, failure)))
			}

			var principal *Principal
			switch scheme {
			case "bearer":
				claims, err := tm.ValidateToken(credential, models.TokenTypeAccess)
				if err != nil {
					reject(&credentialFailure{message: "invalid or expired token"})
					return
				}
				principal = &Principal{
					UserID: claims.UserID,
					Email:  claims.Email,
					Role:   claims.Role,
					Method: MethodToken,
				}
			case "apikey":
				if keys == nil {
					reject(&credentialFailure{message: "api keys are not accepted"})
					return
				}
				key, err := keys.AuthenticateAPIKey(r.Context(), credential)
				if err != nil {
					if errors.Is(err, models.ErrStoreUnavailable) {
						reject(&credentialFailure{message: "unable to verify credentials", unavailable: true})
						return
					}
					reject(&credentialFailure{message: "invalid API key"})
					return
				}
				principal = &Principal{
					UserID:      key.UserID,
					Method:      MethodAPIKey,
					APIKeyID:    key.ID,
					Permissions: key.Permissions,
				}
			default:
				reject(&credentialFailure{message: "invalid authorization header format"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

type credentialFailure struct {
	message     string
	unavailable bool
}

const credentialFailureKey contextKey = "credential_failure"

// RejectInvalidCredentials answers requests whose credentials Identify could
// not accept. Mount it after the rate limiter.
func RejectInvalidCredentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		failure, _ := r.Context().Value(credentialFailureKey).(*credentialFailure)
		switch {
		case failure == nil:
			next.ServeHTTP(w, r)
		case failure.unavailable:
			pkghttp.WriteServiceUnavailable(w, failure.message)
		default:
			pkghttp.WriteUnauthorized(w, failure.message)
		}
	})
}

func credentialsFrom(r *http.Request) (scheme, credential string) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			return "invalid", header
		}
		return strings.ToLower(parts[0]), strings.TrimSpace(parts[1])
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return "apikey", key
	}
	return "", ""
}

// RequireAuth rejects anonymous requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			pkghttp.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole enforces role-based access using the user's current role, so
// a demotion takes effect before the token expires.
func RequireRole(userRepo UserRepository, role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			user, err := userRepo.GetByID(r.Context(), principal.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "authentication required")
					return
				}
				pkghttp.WriteServiceUnavailable(w, "unable to verify permissions")
				return
			}

			if !user.IsActive || user.Role != role {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission applies to API-key callers only; token callers are
// governed by roles.
func RequirePermission(perm string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}
			if principal.Method == MethodAPIKey && !models.HasPermission(principal.Permissions, perm) {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTokenAuth rejects API-key callers, e.g. for key management itself.
func RequireTokenAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFromContext(r.Context())
		if principal == nil || principal.Method != MethodToken {
			pkghttp.WriteUnauthorized(w, "token authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
