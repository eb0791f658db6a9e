package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
	"github.com/FilipeAphrody/sentinel-auth/pkg/security"
	"github.com/FilipeAphrody/sentinel-auth/pkg/slogx"
)

// SessionConfig holds the second-factor settings of the session manager.
type SessionConfig struct {
	MFAIssuer       string
	MFAChallengeTTL time.Duration
	MFAMaxAttempts  int
	DefaultRoles    []string
}

// DefaultSessionConfig holds the documented second-factor defaults.
var DefaultSessionConfig = SessionConfig{
	MFAIssuer:       "SentinelAuth",
	MFAChallengeTTL: 5 * time.Minute,
	MFAMaxAttempts:  3,
	DefaultRoles:    []string{"user"},
}

// ValidationResult is the polling-friendly answer of Validate.
// UserID and Role are nil whenever Valid is false.
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	UserID *string `json:"userId"`
	Role   *string `json:"role"`
}

var invalidToken = ValidationResult{}

// SessionManager orchestrates login, refresh rotation, logout and token validation.
type SessionManager struct {
	users     domain.UserRepository
	store     domain.EphemeralStore
	codec     *security.TokenCodec
	blacklist *BlacklistGuard
	otp       *OTPChallenge
	hasher    domain.PasswordHasher
	clock     domain.Clock
	cfg       SessionConfig

	// dummyHash is compared against when the account has no usable password,
	// keeping the unknown-user path as slow as the wrong-password path.
	dummyHash string
}

func NewSessionManager(
	users domain.UserRepository,
	store domain.EphemeralStore,
	codec *security.TokenCodec,
	blacklist *BlacklistGuard,
	otp *OTPChallenge,
	hasher domain.PasswordHasher,
	clock domain.Clock,
	cfg SessionConfig,
) (*SessionManager, error) {
	dummy, err := hasher.Hash("sentinel-timing-equalizer")
	if err != nil {
		return nil, err
	}

	return &SessionManager{
		users:     users,
		store:     store,
		codec:     codec,
		blacklist: blacklist,
		otp:       otp,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		dummyHash: dummy,
	}, nil
}

// Login validates credentials and opens a session. Every credential failure
// (unknown email, wrong password, unverified account) yields the same error.
func (s *SessionManager) Login(ctx context.Context, email, password string, rememberMe bool) (*domain.AuthResponse, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, unavailable("user lookup", err)
	}

	if user == nil || user.PasswordHash == "" {
		_, _ = s.hasher.Compare(password, s.dummyHash)
		userID := ""
		if user != nil {
			userID = user.ID
		}
		audit(ctx, s.users, userID, EventLoginFailed, map[string]interface{}{"email": email})
		return nil, invalidCredentials
	}

	match, err := s.hasher.Compare(password, user.PasswordHash)
	if err != nil || !match {
		audit(ctx, s.users, user.ID, EventLoginFailed, nil)
		return nil, invalidCredentials
	}

	if !user.IsEmailVerified {
		audit(ctx, s.users, user.ID, EventLoginFailed, map[string]interface{}{"reason": "unverified"})
		return nil, invalidCredentials
	}

	if user.MFAEnabled {
		return nil, s.startMFAChallenge(ctx, user, rememberMe)
	}

	return s.issueSession(ctx, user, rememberMe, EventLoginSuccess)
}

// Refresh rotates a refresh token. The presented token must match the
// fingerprint stored on the user; the replacement overwrites it, so every
// earlier refresh token stops working.
//
// Rotation is not transactional: two concurrent calls with the same token
// may both pass the check, after which only the last written pair survives.
func (s *SessionManager) Refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, unauthorized("invalid or expired refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, unauthorized("invalid or expired refresh token")
	}
	if err != nil {
		return nil, unavailable("user lookup", err)
	}

	if user.RefreshTokenHash == "" ||
		!security.ConstantTimeEqual(security.FingerprintToken(refreshToken), user.RefreshTokenHash) {
		slogx.FromContext(ctx).WarnContext(ctx, "stale refresh token presented", slog.String("user_id", user.ID))
		return nil, unauthorized("invalid or expired refresh token")
	}

	rememberMe := false
	if claims.ExpiresAt != nil && claims.IssuedAt != nil {
		rememberMe = claims.ExpiresAt.Sub(claims.IssuedAt.Time) > s.codec.RefreshTTL()
	}

	return s.issueSession(ctx, user, rememberMe, EventTokenRefreshed)
}

// Logout revokes the access token until its natural expiry and drops the
// user's refresh token.
//
// Revocation only needs the decoded jti and exp. The refresh token is cleared
// only for tokens whose signature verifies (expired ones included).
func (s *SessionManager) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.codec.DecodeAccess(accessToken)
	if err != nil {
		return unauthorized("invalid token")
	}

	// exp is unverified here; no genuine access token outlives AccessTTL.
	remaining := min(claims.Remaining(s.clock.Now()), s.codec.AccessTTL())
	if err := s.blacklist.Revoke(ctx, claims.ID, remaining); err != nil {
		return unavailable("token revoke", err)
	}

	if _, err := s.codec.VerifyAccess(accessToken); err != nil && !errors.Is(err, security.ErrTokenExpired) {
		return nil
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return unavailable("user lookup", err)
	}

	if user.RefreshTokenHash != "" {
		user.RefreshTokenHash = ""
		if err := s.users.Update(ctx, user); err != nil {
			return unavailable("session clear", err)
		}
	}

	audit(ctx, s.users, user.ID, EventLogout, nil)
	return nil
}

// Validate answers whether accessToken is currently usable. It never fails:
// any verification or backend problem yields the invalid result.
func (s *SessionManager) Validate(ctx context.Context, accessToken string) ValidationResult {
	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			slogx.FromContext(ctx).WarnContext(ctx, "token validation degraded", slog.Any("error", err))
		}
		return invalidToken
	}

	userID := claims.Subject
	role := claims.Role()
	return ValidationResult{Valid: true, UserID: &userID, Role: &role}
}

// Authenticate verifies accessToken and checks it against the blacklist.
func (s *SessionManager) Authenticate(ctx context.Context, accessToken string) (*security.AccessClaims, error) {
	claims, err := s.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, unauthorized("invalid or expired token")
	}

	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, unavailable("blacklist lookup", err)
	}
	if revoked {
		return nil, unauthorized("invalid or expired token")
	}

	return claims, nil
}

// Me returns the user behind a verified access token.
func (s *SessionManager) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, unauthorized("user no longer exists")
	}
	if err != nil {
		return nil, unavailable("user lookup", err)
	}
	return user, nil
}

// issueSession creates the access/refresh pair and records the refresh fingerprint.
func (s *SessionManager) issueSession(ctx context.Context, user *domain.User, rememberMe bool, event string) (*domain.AuthResponse, error) {
	accessToken, _, err := s.codec.IssueAccess(user.ID, user.Email, user.TenantID, user.Roles)
	if err != nil {
		return nil, err
	}

	refreshToken, _, err := s.codec.IssueRefresh(user.ID, rememberMe)
	if err != nil {
		return nil, err
	}

	user.RefreshTokenHash = security.FingerprintToken(refreshToken)
	if err := s.users.Update(ctx, user); err != nil {
		return nil, unavailable("session persist", err)
	}

	audit(ctx, s.users, user.ID, event, nil)

	return &domain.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
		RememberMe:   rememberMe,
	}, nil
}
