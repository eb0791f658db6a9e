package usecase

import (
	"context"
	"errors"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
)

// Register creates an unverified account and emails a verification code.
func (s *SessionManager) Register(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return &Error{Kind: ErrBadRequest, Message: "email and password are required"}
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return &Error{Kind: ErrConflict, Message: "email already registered"}
	case !errors.Is(err, domain.ErrUserNotFound):
		return unavailable("user lookup", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		Roles:        append([]string(nil), s.cfg.DefaultRoles...),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return &Error{Kind: ErrConflict, Message: "email already registered"}
		}
		return unavailable("user create", err)
	}

	audit(ctx, s.users, user.ID, EventUserRegistered, nil)

	return s.otp.GenerateFirst(ctx, email)
}

// GenerateOTP sends a one-time login/verification code to email.
func (s *SessionManager) GenerateOTP(ctx context.Context, email string) error {
	return s.otp.Generate(ctx, email)
}

// VerifyOTP redeems a one-time code and opens a session for its address.
// It completes signup: the account is marked verified, and an address with no
// account yet gets a passwordless one.
func (s *SessionManager) VerifyOTP(ctx context.Context, email, code string) (*domain.AuthResponse, error) {
	email = normalizeEmail(email)

	if err := s.otp.Validate(ctx, email, code); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		user = &domain.User{
			Email:           email,
			IsEmailVerified: true,
			Roles:           append([]string(nil), s.cfg.DefaultRoles...),
		}
		err := s.users.Create(ctx, user)
		switch {
		case err == nil:
			audit(ctx, s.users, user.ID, EventUserRegistered, map[string]interface{}{"method": "otp"})
		case errors.Is(err, domain.ErrEmailTaken):
			// Created concurrently by Register or another VerifyOTP.
			if user, err = s.users.GetByEmail(ctx, email); err != nil {
				return nil, unavailable("user lookup", err)
			}
			user.IsEmailVerified = true
		default:
			return nil, unavailable("user create", err)
		}
	case err != nil:
		return nil, unavailable("user lookup", err)
	default:
		user.IsEmailVerified = true
	}

	if user.MFAEnabled {
		return nil, s.startMFAChallenge(ctx, user, false)
	}

	return s.issueSession(ctx, user, false, EventLoginSuccess)
}
