package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
	"github.com/FilipeAphrody/sentinel-auth/pkg/security"
	"github.com/FilipeAphrody/sentinel-auth/pkg/slogx"
)

// ResetRequestedMessage is returned by Request whether or not the account exists.
const ResetRequestedMessage = "If an account with that email exists, a password reset link has been sent."

// ResetConfig controls password reset tokens.
type ResetConfig struct {
	TTL         time.Duration
	MaxAttempts int
	ResetURL    string // the raw token is appended as ?token=
}

// DefaultResetConfig holds the documented password reset defaults.
var DefaultResetConfig = ResetConfig{
	TTL:         time.Hour,
	MaxAttempts: 5,
	ResetURL:    "http://localhost:3000/reset-password",
}

func resetKey(tokenHash string) string { return "password-reset:" + tokenHash }
func resetAttemptsKey(tokenHash string) string { return "reset-attempts:" + tokenHash }

// PasswordResetFlow issues and redeems single-use password reset tokens.
// Only the SHA-256 fingerprint of a token is stored.
type PasswordResetFlow struct {
	users    domain.UserRepository
	store    domain.EphemeralStore
	notifier domain.Notifier
	hasher   domain.PasswordHasher
	cfg      ResetConfig
}

func NewPasswordResetFlow(
	users domain.UserRepository,
	store domain.EphemeralStore,
	notifier domain.Notifier,
	hasher domain.PasswordHasher,
	cfg ResetConfig,
) *PasswordResetFlow {
	return &PasswordResetFlow{users: users, store: store, notifier: notifier, hasher: hasher, cfg: cfg}
}

// Request sends a reset link to verified accounts. The returned message is
// identical for every input, and internal failures are only logged.
func (f *PasswordResetFlow) Request(ctx context.Context, email string) string {
	l := slogx.FromContext(ctx)
	email = normalizeEmail(email)

	user, err := f.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			l.ErrorContext(ctx, "password reset lookup failed", slog.Any("error", err))
		}
		return ResetRequestedMessage
	}
	if !user.IsEmailVerified {
		return ResetRequestedMessage
	}

	token, err := security.GenerateToken(security.TokenSize256)
	if err != nil {
		l.ErrorContext(ctx, "password reset token generation failed", slog.Any("error", err))
		return ResetRequestedMessage
	}

	if err := f.store.Set(ctx, resetKey(security.FingerprintToken(token)), user.ID, f.cfg.TTL); err != nil {
		l.ErrorContext(ctx, "password reset token store failed", slog.Any("error", err))
		return ResetRequestedMessage
	}

	notify(ctx, f.notifier, user.Email, domain.Notification{
		Kind: domain.NotificationPasswordReset,
		Data: map[string]string{"link": f.resetLink(token)},
	})
	audit(ctx, f.users, user.ID, EventPasswordResetRequested, nil)

	return ResetRequestedMessage
}

func (f *PasswordResetFlow) resetLink(token string) string {
	u, err := url.Parse(f.cfg.ResetURL)
	if err != nil {
		return f.cfg.ResetURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Redeem sets newPassword for the owner of token and consumes the token.
func (f *PasswordResetFlow) Redeem(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return &Error{Kind: ErrBadRequest, Message: "new password is required"}
	}

	hash := security.FingerprintToken(token)

	userID, err := f.store.Get(ctx, resetKey(hash))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return unauthorized("invalid or expired reset token")
	}
	if err != nil {
		return unavailable("reset token lookup", err)
	}

	attempts, err := f.store.Incr(ctx, resetAttemptsKey(hash), f.cfg.TTL)
	if err != nil {
		return unavailable("reset attempt counter", err)
	}
	if attempts > int64(f.cfg.MaxAttempts) {
		f.discard(ctx, hash)
		return tooManyRequests("too many attempts for this reset token, request a new one", 0)
	}

	user, err := f.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		f.discard(ctx, hash)
		return unauthorized("invalid or expired reset token")
	}
	if err != nil {
		return unavailable("user lookup", err)
	}

	if user.PasswordHash != "" {
		same, err := f.hasher.Compare(newPassword, user.PasswordHash)
		if err == nil && same {
			return &Error{Kind: ErrBadRequest, Message: "new password must be different from the current password"}
		}
	}

	newHash, err := f.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	// Consume before writing: of two concurrent redeems only one sees removed == 1.
	removed, err := f.store.Del(ctx, resetKey(hash))
	if err != nil {
		return unavailable("reset token consume", err)
	}
	if removed == 0 {
		return unauthorized("invalid or expired reset token")
	}
	if _, err := f.store.Del(ctx, resetAttemptsKey(hash)); err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "reset attempt counter cleanup failed", slog.Any("error", err))
	}

	user.PasswordHash = newHash
	user.RefreshTokenHash = ""
	if err := f.users.Update(ctx, user); err != nil {
		return unavailable("password update", err)
	}

	notify(ctx, f.notifier, user.Email, domain.Notification{Kind: domain.NotificationPasswordChanged})
	audit(ctx, f.users, user.ID, EventPasswordReset, nil)

	return nil
}

func (f *PasswordResetFlow) discard(ctx context.Context, hash string) {
	if _, err := f.store.Del(ctx, resetKey(hash), resetAttemptsKey(hash)); err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "reset token discard failed", slog.Any("error", err))
	}
}
