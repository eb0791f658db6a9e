package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned by UserRepository lookups that match no row.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by UserRepository.Create on a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
)

// User represents the central identity entity of the system.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"` // Never expose the password hash in JSON
	IsEmailVerified  bool      `json:"is_email_verified"`
	Roles            []string  `json:"roles"`               // RBAC roles (admin, user, etc.)
	TenantID         string    `json:"tenant_id,omitempty"` // Carried into access claims only
	RefreshTokenHash string    `json:"-"`                   // Fingerprint of the current refresh token
	MFAEnabled       bool      `json:"mfa_enabled"`
	MFASecret        string    `json:"-"` // TOTP secret key
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PrimaryRole returns the first role, or "" when the user has none.
func (u *User) PrimaryRole() string {
	if len(u.Roles) == 0 {
		return ""
	}
	return u.Roles[0]
}

// AuthResponse defines the payload returned after a successful login.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RememberMe   bool   `json:"remember_me"`
}

// UserRepository defines the contract for user data persistence.
// This interface is implemented in the 'internal/repository' package.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error

	// LogSecurityEvent is used for the Audit Logs requirement
	LogSecurityEvent(ctx context.Context, userID, eventType, ip string, metadata map[string]interface{}) error
}

// PasswordHasher hashes and compares passwords. Compare must run in constant time.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(password, encodedHash string) (bool, error)
}
