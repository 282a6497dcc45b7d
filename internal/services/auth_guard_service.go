package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/farmguard/internal/auth"
	"github.com/BradenHooton/farmguard/internal/cache"
	"github.com/BradenHooton/farmguard/internal/metrics"
	"github.com/BradenHooton/farmguard/internal/models"
	pkgauth "github.com/BradenHooton/farmguard/pkg/auth"
	pkglogger "github.com/BradenHooton/farmguard/pkg/logger"
)

const loginHintWindow = time.Hour

// UserRepository is the read side of the account store
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// LoginAttemptRepository is the durable source of truth for failure counts
type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailedByEmailSince(ctx context.Context, email string, since time.Time) (int, error)
	CountFailedByIPSince(ctx context.Context, ipAddress string, since time.Time) (int, error)
	GetLastSuccessTime(ctx context.Context, email string) (*time.Time, error)
}

// LockoutRepository enforces at most one active lockout per user
type LockoutRepository interface {
	GetActive(ctx context.Context, userID string) (*models.AccountLockout, error)
	CreateActive(ctx context.Context, lockout *models.AccountLockout) (*models.AccountLockout, bool, error)
	Deactivate(ctx context.Context, id string, at time.Time, by *string) (bool, error)
}

// TokenIssuer signs and verifies access and refresh credentials
type TokenIssuer interface {
	IssueTokenPair(user *models.User) (*models.TokenPair, error)
	ValidateToken(tokenString, expectedType string) (*models.TokenClaims, error)
}

// AuthGuardConfig holds the lockout and login-throttle policy
type AuthGuardConfig struct {
	LockoutThreshold  int
	LockoutDuration   time.Duration
	IPLimitPerHour    int
	EmailLimitPerHour int
	PasswordPolicy    pkgauth.PasswordPolicy
}

// AuthResult is the policy outcome of an authentication attempt. Reason is
// for logs and tests only and is never sent to the client.
type AuthResult struct {
	Outcome           models.LoginOutcome
	User              *models.User
	Tokens            *models.TokenPair
	Reason            string
	AttemptsRemaining *int
	LockedUntil       *time.Time
}

// AuthGuard validates credentials, tracks failures and enforces lockout.
type AuthGuard struct {
	users    UserRepository
	attempts LoginAttemptRepository
	lockouts LockoutRepository
	hints    cache.Store
	tokens   TokenIssuer
	events   EventRecorder
	timing   *auth.TimingDelay
	config   AuthGuardConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthGuard creates a new AuthGuard. timing may be nil.
func NewAuthGuard(
	users UserRepository,
	attempts LoginAttemptRepository,
	lockouts LockoutRepository,
	hints cache.Store,
	tokens TokenIssuer,
	events EventRecorder,
	timing *auth.TimingDelay,
	config AuthGuardConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AuthGuard {
	return &AuthGuard{
		users:    users,
		attempts: attempts,
		lockouts: lockouts,
		hints:    hints,
		tokens:   tokens,
		events:   events,
		timing:   timing,
		config:   config,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

type attemptContext struct {
	email     string
	ipAddress string
	userAgent string
	user      *models.User
}

func (a attemptContext) userID() *string {
	if a.user == nil {
		return nil
	}
	id := a.user.ID
	return &id
}

func ipHintKey(ip string) string       { return "login_attempts_ip:" + ip }
func emailHintKey(email string) string { return "login_attempts_email:" + email }

// Authenticate runs the lockout check, the login throttle, credential
// verification and token issuance in that order. Dependency failures are
// returned as errors; every policy outcome is an AuthResult.
func (g *AuthGuard) Authenticate(ctx context.Context, email, password, ipAddress, userAgent string) (*AuthResult, error) {
	start := time.Now()
	ac := attemptContext{
		email:     strings.ToLower(strings.TrimSpace(email)),
		ipAddress: ipAddress,
		userAgent: userAgent,
	}

	user, err := g.users.GetByEmail(ctx, ac.email)
	switch {
	case err == nil:
		ac.user = user
	case errors.Is(err, models.ErrNotFound):
	default:
		g.logger.ErrorContext(ctx, "failed to look up account", slog.Any("error", err))
		return nil, fmt.Errorf("look up account: %w", err)
	}

	result, err := g.authenticate(ctx, ac, password)
	if err != nil {
		return nil, err
	}

	g.metrics.LoginOutcome(string(result.Outcome))
	if result.Outcome != models.LoginOutcomeSuccess {
		g.timing.WaitFrom(ctx, start)
	}
	return result, nil
}

func (g *AuthGuard) authenticate(ctx context.Context, ac attemptContext, password string) (*AuthResult, error) {
	if ac.user != nil {
		result, err := g.checkLockout(ctx, ac)
		if err != nil || result != nil {
			return result, err
		}
	}

	result, err := g.checkLoginThrottle(ctx, ac)
	if err != nil || result != nil {
		return result, err
	}

	if ac.user == nil || pkgauth.ComparePassword(ac.user.PasswordHash, password) != nil {
		return g.handleFailedCredentials(ctx, ac)
	}

	if !ac.user.IsActive {
		if err := g.recordAttempt(ctx, ac, models.LoginOutcomeFailed, models.FailureReasonInactive); err != nil {
			return nil, err
		}
		g.logger.InfoContext(ctx, "login blocked: account inactive", slog.String("user_id", ac.user.ID))
		return &AuthResult{Outcome: models.LoginOutcomeFailed, Reason: models.FailureReasonInactive}, nil
	}

	return g.handleSuccess(ctx, ac)
}

// checkLockout fails closed: if the lockout cannot be read the attempt is
// not evaluated.
func (g *AuthGuard) checkLockout(ctx context.Context, ac attemptContext) (*AuthResult, error) {
	lockout, err := g.lockouts.GetActive(ctx, ac.user.ID)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to read lockout state", slog.Any("error", err))
		return nil, fmt.Errorf("read lockout: %w", err)
	}
	if lockout == nil {
		return nil, nil
	}

	now := g.now()
	if !lockout.IsInForce(now, g.config.LockoutDuration) {
		if _, err := g.lockouts.Deactivate(ctx, lockout.ID, now, nil); err != nil {
			return nil, fmt.Errorf("release expired lockout: %w", err)
		}
		g.clearEmailHint(ctx, ac.email)
		g.logger.InfoContext(ctx, "lockout expired", slog.String("user_id", ac.user.ID))
		return nil, nil
	}

	until := lockout.LockedUntil(g.config.LockoutDuration)
	if err := g.recordAttempt(ctx, ac, models.LoginOutcomeBlocked, models.FailureReasonAccountLocked); err != nil {
		return nil, err
	}
	err = g.events.LogEvent(ctx, &models.SecurityEvent{
		UserID:      ac.userID(),
		EventType:   models.EventLoginFailed,
		Severity:    models.SeverityMedium,
		Description: "Login attempt on locked account",
		IPAddress:   ac.ipAddress,
		UserAgent:   ac.userAgent,
		Metadata:    models.EventMetadata{"reason": models.FailureReasonAccountLocked},
	})
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		Outcome:     models.LoginOutcomeBlocked,
		Reason:      models.FailureReasonAccountLocked,
		LockedUntil: &until,
	}, nil
}

// checkLoginThrottle compares the per-IP and per-email failure counts with
// their hourly ceilings. The ephemeral hint is consulted first; when it
// cannot be read the durable attempt log is counted instead.
func (g *AuthGuard) checkLoginThrottle(ctx context.Context, ac attemptContext) (*AuthResult, error) {
	since := g.now().Add(-loginHintWindow)

	ipCount, err := g.failureCount(ctx, ipHintKey(ac.ipAddress), func() (int, error) {
		return g.attempts.CountFailedByIPSince(ctx, ac.ipAddress, since)
	})
	if err != nil {
		return nil, err
	}
	emailCount, err := g.failureCount(ctx, emailHintKey(ac.email), func() (int, error) {
		return g.attempts.CountFailedByEmailSince(ctx, ac.email, since)
	})
	if err != nil {
		return nil, err
	}

	if ipCount < g.config.IPLimitPerHour && emailCount < g.config.EmailLimitPerHour {
		return nil, nil
	}

	if err := g.recordAttempt(ctx, ac, models.LoginOutcomeBlocked, models.FailureReasonRateLimited); err != nil {
		return nil, err
	}
	g.logger.WarnContext(ctx, "login throttled",
		slog.String("ip_address", ac.ipAddress),
		slog.String("email", pkglogger.SanitizedEmail(ac.email)),
		slog.Int("ip_failures", ipCount),
		slog.Int("email_failures", emailCount),
	)

	return &AuthResult{Outcome: models.LoginOutcomeBlocked, Reason: models.FailureReasonRateLimited}, nil
}

func (g *AuthGuard) failureCount(ctx context.Context, key string, durable func() (int, error)) (int, error) {
	hint, err := g.hints.Get(ctx, key)
	if err == nil {
		return int(hint), nil
	}

	g.logger.WarnContext(ctx, "login hint unavailable, using attempt log", slog.Any("error", err))
	count, err := durable()
	if err != nil {
		return 0, fmt.Errorf("count failed attempts: %w", err)
	}
	return count, nil
}

func (g *AuthGuard) handleFailedCredentials(ctx context.Context, ac attemptContext) (*AuthResult, error) {
	if err := g.recordAttempt(ctx, ac, models.LoginOutcomeFailed, models.FailureReasonInvalidCredentials); err != nil {
		return nil, err
	}
	g.bumpHint(ctx, ipHintKey(ac.ipAddress))
	g.bumpHint(ctx, emailHintKey(ac.email))

	now := g.now()
	count, err := g.failuresSinceReset(ctx, ac.email, now)
	if err != nil {
		return nil, err
	}

	if count < g.config.LockoutThreshold {
		remaining := g.config.LockoutThreshold - count
		g.logger.InfoContext(ctx, "login failed: invalid credentials", slog.Int("attempts_remaining", remaining))
		return &AuthResult{
			Outcome:           models.LoginOutcomeFailed,
			Reason:            models.FailureReasonInvalidCredentials,
			AttemptsRemaining: &remaining,
		}, nil
	}

	until := now.Add(g.config.LockoutDuration)
	if ac.user == nil {
		// Unknown accounts answer like locked ones without creating a record.
		return &AuthResult{Outcome: models.LoginOutcomeBlocked, Reason: models.FailureReasonAccountLocked, LockedUntil: &until}, nil
	}

	lockout, created, err := g.lockouts.CreateActive(ctx, &models.AccountLockout{
		UserID:             ac.user.ID,
		IPAddress:          ac.ipAddress,
		FailedAttemptCount: count,
		LockedAt:           now,
		Active:             true,
	})
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to create lockout", slog.Any("error", err))
		return nil, fmt.Errorf("create lockout: %w", err)
	}
	until = lockout.LockedUntil(g.config.LockoutDuration)

	if created {
		err := g.events.LogEvent(ctx, &models.SecurityEvent{
			UserID:      ac.userID(),
			EventType:   models.EventAccountLocked,
			Severity:    models.SeverityHigh,
			Description: fmt.Sprintf("Account locked after %d failed attempts", count),
			IPAddress:   ac.ipAddress,
			UserAgent:   ac.userAgent,
			Metadata: models.EventMetadata{
				"failed_attempts": count,
				"locked_until":    until.UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return nil, err
		}
	}

	return &AuthResult{Outcome: models.LoginOutcomeBlocked, Reason: models.FailureReasonAccountLocked, LockedUntil: &until}, nil
}

// failuresSinceReset counts failures in the lockout window that happened
// after the most recent successful login.
func (g *AuthGuard) failuresSinceReset(ctx context.Context, email string, now time.Time) (int, error) {
	since := now.Add(-g.config.LockoutDuration)

	lastSuccess, err := g.attempts.GetLastSuccessTime(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("read last success: %w", err)
	}
	if lastSuccess != nil && lastSuccess.After(since) {
		since = *lastSuccess
	}

	count, err := g.attempts.CountFailedByEmailSince(ctx, email, since)
	if err != nil {
		return 0, fmt.Errorf("count failed attempts: %w", err)
	}
	return count, nil
}

func (g *AuthGuard) handleSuccess(ctx context.Context, ac attemptContext) (*AuthResult, error) {
	if err := g.recordAttempt(ctx, ac, models.LoginOutcomeSuccess, ""); err != nil {
		return nil, err
	}
	g.clearEmailHint(ctx, ac.email)

	tokens, err := g.tokens.IssueTokenPair(ac.user)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to issue tokens", slog.String("user_id", ac.user.ID), slog.Any("error", err))
		return nil, err
	}

	err = g.events.LogEvent(ctx, &models.SecurityEvent{
		UserID:      ac.userID(),
		EventType:   models.EventLoginSuccess,
		Severity:    models.SeverityLow,
		Description: "Successful login",
		IPAddress:   ac.ipAddress,
		UserAgent:   ac.userAgent,
	})
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "user logged in", slog.String("user_id", ac.user.ID))
	return &AuthResult{Outcome: models.LoginOutcomeSuccess, User: ac.user, Tokens: tokens}, nil
}

func (g *AuthGuard) recordAttempt(ctx context.Context, ac attemptContext, outcome models.LoginOutcome, reason string) error {
	attempt := &models.LoginAttempt{
		UserID:      ac.userID(),
		Email:       ac.email,
		IPAddress:   ac.ipAddress,
		UserAgent:   ac.userAgent,
		Outcome:     outcome,
		AttemptTime: g.now(),
	}
	if reason != "" {
		attempt.FailureReason = &reason
	}

	if err := g.attempts.Record(ctx, attempt); err != nil {
		g.logger.ErrorContext(ctx, "failed to record login attempt", slog.Any("error", err))
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

// bumpHint is best effort; the attempt log remains authoritative.
func (g *AuthGuard) bumpHint(ctx context.Context, key string) {
	if _, err := g.hints.Incr(ctx, key, loginHintWindow); err != nil {
		g.logger.WarnContext(ctx, "failed to update login hint", slog.Any("error", err))
	}
}

func (g *AuthGuard) clearEmailHint(ctx context.Context, email string) {
	if err := g.hints.Delete(ctx, emailHintKey(email)); err != nil {
		g.logger.WarnContext(ctx, "failed to clear login hint", slog.Any("error", err))
	}
}

// RefreshTokens exchanges a refresh credential for a new pair, re-reading
// the account so deactivated users cannot refresh.
func (g *AuthGuard) RefreshTokens(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := g.tokens.ValidateToken(refreshToken, models.TokenTypeRefresh)
	if err != nil {
		g.logger.InfoContext(ctx, "refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	user, err := g.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, fmt.Errorf("look up account: %w", err)
	}
	if !user.IsActive {
		g.logger.InfoContext(ctx, "token refresh blocked: account inactive", slog.String("user_id", user.ID))
		return nil, models.ErrUnauthorized
	}

	lockout, err := g.lockouts.GetActive(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("read lockout: %w", err)
	}
	if lockout != nil && lockout.IsInForce(g.now(), g.config.LockoutDuration) {
		return nil, models.ErrUnauthorized
	}

	return g.tokens.IssueTokenPair(user)
}

// UnlockAccount releases the user's active lockout. Unlocking an account
// that is not locked is a no-op and returns false.
func (g *AuthGuard) UnlockAccount(ctx context.Context, userID, actor string) (bool, error) {
	lockout, err := g.lockouts.GetActive(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("read lockout: %w", err)
	}
	if lockout == nil {
		return false, nil
	}

	changed, err := g.lockouts.Deactivate(ctx, lockout.ID, g.now(), &actor)
	if err != nil {
		return false, fmt.Errorf("unlock account: %w", err)
	}
	if !changed {
		return false, nil
	}

	if user, err := g.users.GetByID(ctx, userID); err == nil {
		g.clearEmailHint(ctx, user.Email)
	}

	err = g.events.LogEvent(ctx, &models.SecurityEvent{
		UserID:      &userID,
		EventType:   models.EventAccountUnlocked,
		Severity:    models.SeverityLow,
		Description: "Account unlocked manually",
		Metadata:    models.EventMetadata{"unlocked_by": actor},
	})
	if err != nil {
		return true, err
	}

	g.logger.InfoContext(ctx, "account unlocked", slog.String("user_id", userID), slog.String("unlocked_by", actor))
	return true, nil
}

// ValidatePasswordStrength reports every unmet password requirement.
func (g *AuthGuard) ValidatePasswordStrength(password string) pkgauth.PasswordStrength {
	return pkgauth.ValidatePasswordStrength(password, g.config.PasswordPolicy)
}
