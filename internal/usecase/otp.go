package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
	"github.com/FilipeAphrody/sentinel-auth/pkg/security"
	"github.com/FilipeAphrody/sentinel-auth/pkg/slogx"
)

// OTPConfig controls one-time code lifetimes and lockout.
type OTPConfig struct {
	TTL            time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	LockDuration   time.Duration
}

// DefaultOTPConfig holds the documented one-time code defaults.
var DefaultOTPConfig = OTPConfig{
	TTL:            300 * time.Second,
	ResendCooldown: 60 * time.Second,
	MaxAttempts:    3,
	LockDuration:   30 * time.Minute,
}

// OTPChallenge issues and validates emailed 6-digit codes.
//
// Per address: a resend cooldown gates Generate independently of the code's own
// TTL, failed Validate calls are counted, and reaching MaxAttempts locks the
// address for LockDuration. A validated code is deleted at once.
type OTPChallenge struct {
	store    domain.EphemeralStore
	notifier domain.Notifier
	cfg      OTPConfig
	newCode  func() (string, error)
}

func NewOTPChallenge(store domain.EphemeralStore, notifier domain.Notifier, cfg OTPConfig) *OTPChallenge {
	return &OTPChallenge{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		newCode:  security.GenerateOTPCode,
	}
}

func otpKey(email string) string { return "otp:" + email }
func otpCooldownKey(email string) string { return "otp_cooldown:" + email }
func otpAttemptsKey(email string) string { return "otp_failed_attempts:" + email }
func otpLockedKey(email string) string { return "otp_locked:" + email }

// Generate issues a fresh code for email and dispatches it.
func (o *OTPChallenge) Generate(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	wait, err := o.store.TTL(ctx, otpCooldownKey(email))
	switch {
	case err == nil:
		return tooManyRequests(
			fmt.Sprintf("please wait %d seconds before requesting a new code", ceilSeconds(wait)),
			wait,
		)
	case !errors.Is(err, domain.ErrKeyNotFound):
		return unavailable("otp cooldown lookup", err)
	}

	return o.issue(ctx, email)
}

// GenerateFirst issues the first code of a newly created account, ignoring a
// cooldown left over from codes requested before the account existed.
func (o *OTPChallenge) GenerateFirst(ctx context.Context, email string) error {
	return o.issue(ctx, normalizeEmail(email))
}

func (o *OTPChallenge) issue(ctx context.Context, email string) error {
	code, err := o.newCode()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	if err := o.store.Set(ctx, otpKey(email), code, o.cfg.TTL); err != nil {
		return unavailable("otp store", err)
	}

	notify(ctx, o.notifier, email, domain.Notification{
		Kind: domain.NotificationOTP,
		Data: map[string]string{
			"code":       code,
			"expires_in": fmt.Sprintf("%d", ceilSeconds(o.cfg.TTL)),
		},
	})

	if err := o.store.Set(ctx, otpCooldownKey(email), "1", o.cfg.ResendCooldown); err != nil {
		return unavailable("otp cooldown store", err)
	}

	return nil
}

// Validate consumes code for email. It returns nil exactly once per issued code.
func (o *OTPChallenge) Validate(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)

	locked, err := o.store.TTL(ctx, otpLockedKey(email))
	switch {
	case err == nil:
		return tooManyRequests(
			fmt.Sprintf("too many failed attempts, try again in %d minutes", ceilMinutes(locked)),
			locked,
		)
	case !errors.Is(err, domain.ErrKeyNotFound):
		return unavailable("otp lock lookup", err)
	}

	// An expired code and one never requested look the same to the caller.
	stored, err := o.store.Get(ctx, otpKey(email))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return unauthorized("invalid or expired otp")
	}
	if err != nil {
		return unavailable("otp lookup", err)
	}

	if !security.ConstantTimeEqual(stored, code) {
		return o.recordFailure(ctx, email)
	}

	removed, err := o.store.Del(ctx, otpKey(email))
	if err != nil {
		return unavailable("otp consume", err)
	}
	if removed == 0 {
		// A concurrent Validate consumed the same code first.
		return unauthorized("invalid or expired otp")
	}

	if _, err := o.store.Del(ctx, otpAttemptsKey(email)); err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "otp attempt counter reset failed", slog.Any("error", err))
	}

	return nil
}

func (o *OTPChallenge) recordFailure(ctx context.Context, email string) error {
	attempts, err := o.store.Incr(ctx, otpAttemptsKey(email), o.cfg.LockDuration)
	if err != nil {
		return unavailable("otp attempt counter", err)
	}

	if attempts < int64(o.cfg.MaxAttempts) {
		return unauthorized(fmt.Sprintf("invalid otp, %d attempts remaining", int64(o.cfg.MaxAttempts)-attempts))
	}

	if err := o.store.Set(ctx, otpLockedKey(email), "1", o.cfg.LockDuration); err != nil {
		return unavailable("otp lock", err)
	}
	if _, err := o.store.Del(ctx, otpKey(email)); err != nil {
		return unavailable("otp discard", err)
	}

	slogx.FromContext(ctx).WarnContext(ctx, "otp locked after repeated failures",
		slog.Int64("attempts", attempts),
		slog.Duration("lock_duration", o.cfg.LockDuration),
	)

	return unauthorized(fmt.Sprintf("too many failed attempts, account locked for %d minutes", ceilMinutes(o.cfg.LockDuration)))
}

func ceilSeconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}

func ceilMinutes(d time.Duration) int64 {
	return int64(math.Ceil(d.Minutes()))
}
