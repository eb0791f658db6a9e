package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
	"github.com/FilipeAphrody/sentinel-auth/pkg/security"
)

const mfaPendingTTL = 10 * time.Minute

func mfaPendingKey(userID string) string { return "mfa_pending:" + userID }
func mfaChallengeKey(tokenHash string) string { return "mfa_challenge:" + tokenHash }
func mfaChallengeAttemptsKey(tokenHash string) string { return "mfa_challenge_attempts:" + tokenHash }

// MFASetup is returned when a user starts TOTP enrollment.
type MFASetup struct {
	Secret string `json:"secret"`
	QRCode string `json:"qr_code_uri"`
}

// SetupMFA generates a TOTP secret for the user and keeps it pending until EnableMFA.
func (s *SessionManager) SetupMFA(ctx context.Context, userID string) (*MFASetup, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, &Error{Kind: ErrConflict, Message: "mfa already enabled"}
	}

	key, err := security.GenerateMFAKey(s.cfg.MFAIssuer, user.Email)
	if err != nil {
		return nil, err
	}

	if err := s.store.Set(ctx, mfaPendingKey(user.ID), key.Secret(), mfaPendingTTL); err != nil {
		return nil, unavailable("mfa pending store", err)
	}

	return &MFASetup{Secret: key.Secret(), QRCode: key.URL()}, nil
}

// EnableMFA verifies the first code against the pending secret and turns MFA on.
func (s *SessionManager) EnableMFA(ctx context.Context, userID, code string) error {
	secret, err := s.store.Get(ctx, mfaPendingKey(userID))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return &Error{Kind: ErrBadRequest, Message: "mfa setup not started or expired"}
	}
	if err != nil {
		return unavailable("mfa pending lookup", err)
	}

	if !security.VerifyMFACode(code, secret, s.clock.Now()) {
		return unauthorized("invalid mfa code")
	}

	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}

	user.MFAEnabled = true
	user.MFASecret = secret
	if err := s.users.Update(ctx, user); err != nil {
		return unavailable("mfa enable", err)
	}
	if _, err := s.store.Del(ctx, mfaPendingKey(userID)); err != nil {
		return unavailable("mfa pending cleanup", err)
	}

	audit(ctx, s.users, user.ID, EventMFAEnabled, nil)
	return nil
}

// startMFAChallenge parks a half-finished login behind a single-use challenge token.
func (s *SessionManager) startMFAChallenge(ctx context.Context, user *domain.User, rememberMe bool) error {
	token, err := security.GenerateToken(security.TokenSize256)
	if err != nil {
		return err
	}

	value := user.ID + "|0"
	if rememberMe {
		value = user.ID + "|1"
	}

	if err := s.store.Set(ctx, mfaChallengeKey(security.FingerprintToken(token)), value, s.cfg.MFAChallengeTTL); err != nil {
		return unavailable("mfa challenge store", err)
	}

	return &MFARequiredError{MFAToken: token}
}

// VerifyMFA completes a login that was answered with MFARequiredError.
func (s *SessionManager) VerifyMFA(ctx context.Context, mfaToken, code string) (*domain.AuthResponse, error) {
	hash := security.FingerprintToken(mfaToken)

	value, err := s.store.Get(ctx, mfaChallengeKey(hash))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return nil, unauthorized("invalid or expired mfa challenge")
	}
	if err != nil {
		return nil, unavailable("mfa challenge lookup", err)
	}

	attempts, err := s.store.Incr(ctx, mfaChallengeAttemptsKey(hash), s.cfg.MFAChallengeTTL)
	if err != nil {
		return nil, unavailable("mfa attempt counter", err)
	}
	if attempts > int64(s.cfg.MFAMaxAttempts) {
		_, _ = s.store.Del(ctx, mfaChallengeKey(hash), mfaChallengeAttemptsKey(hash))
		return nil, tooManyRequests("too many failed mfa attempts, please log in again", 0)
	}

	userID, remember, _ := strings.Cut(value, "|")

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, unauthorized("invalid or expired mfa challenge")
	}
	if err != nil {
		return nil, unavailable("user lookup", err)
	}

	if !security.VerifyMFACode(code, user.MFASecret, s.clock.Now()) {
		audit(ctx, s.users, user.ID, EventMFAFailed, nil)
		return nil, unauthorized("invalid mfa code")
	}

	removed, err := s.store.Del(ctx, mfaChallengeKey(hash), mfaChallengeAttemptsKey(hash))
	if err != nil {
		return nil, unavailable("mfa challenge consume", err)
	}
	if removed == 0 {
		return nil, unauthorized("invalid or expired mfa challenge")
	}

	return s.issueSession(ctx, user, remember == "1", EventLoginSuccess)
}
