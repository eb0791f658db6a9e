package usecase

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds raised by the auth core. Transport layers map these to status codes.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrConflict        = errors.New("conflict")
	ErrTooManyRequests = errors.New("too many requests")
	ErrBadRequest      = errors.New("bad request")

	// ErrUnavailable marks transient backend failures. Callers may retry.
	ErrUnavailable = errors.New("service temporarily unavailable")
)

// Error is a domain failure with a client-safe message.
type Error struct {
	Kind       error
	Message    string
	RetryAfter time.Duration // set for ErrTooManyRequests when known
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func unauthorized(msg string) error {
	return &Error{Kind: ErrUnauthorized, Message: msg}
}

func tooManyRequests(msg string, retryAfter time.Duration) error {
	return &Error{Kind: ErrTooManyRequests, Message: msg, RetryAfter: retryAfter}
}

// invalidCredentials is shared by every login failure path so responses cannot
// be used to enumerate accounts.
var invalidCredentials = &Error{Kind: ErrUnauthorized, Message: "invalid email or password"}

// unavailable wraps a backend failure so it is never confused with a domain error.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// MFARequiredError is returned by Login when the account needs a second factor.
// No tokens have been issued; the challenge token is redeemed through VerifyMFA.
type MFARequiredError struct {
	MFAToken string
}

func (e *MFARequiredError) Error() string { return "mfa_challenge_required" }
