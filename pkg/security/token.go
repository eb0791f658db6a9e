package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token lifetimes.
const (
	DefaultAccessTokenTTL          = 15 * time.Minute
	DefaultRefreshTokenTTL         = 7 * 24 * time.Hour
	DefaultRefreshTokenTTLRemember = 30 * 24 * time.Hour
	DefaultIssuer                  = "sentinel-auth"
)

var (
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
)

// --- JWT Claims & Logic ---

// AccessClaims are embedded in short-lived access tokens.
type AccessClaims struct {
	Email    string   `json:"email"`
	TenantID string   `json:"tenant_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims are embedded in refresh tokens. They carry only identity.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// Remaining returns how long the token stays valid after now (<= 0 when expired).
func (c *AccessClaims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// Role returns the primary role carried by the token.
func (c *AccessClaims) Role() string {
	if len(c.Roles) == 0 {
		return ""
	}
	return c.Roles[0]
}

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	AccessSecret         string
	RefreshSecret        string
	Issuer               string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RefreshTTLRememberMe time.Duration
	Now                  func() time.Time // Optional, defaults to time.Now
}

// TokenCodec signs, verifies and decodes HS256 session tokens. Access and
// refresh tokens use distinct secrets so one can never stand in for the other.
type TokenCodec struct {
	cfg TokenConfig
}

// NewTokenCodec returns a codec, filling unset lifetimes with the defaults.
func NewTokenCodec(cfg TokenConfig) *TokenCodec {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}
	if cfg.RefreshTTLRememberMe <= 0 {
		cfg.RefreshTTLRememberMe = DefaultRefreshTokenTTLRemember
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.AccessSecret + ":refresh"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenCodec{cfg: cfg}
}

// AccessTTL is the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.cfg.AccessTTL }

// RefreshTTL is the refresh lifetime used without "remember me".
func (c *TokenCodec) RefreshTTL() time.Duration { return c.cfg.RefreshTTL }

// IssueAccess creates a signed access token with a fresh jti.
func (c *TokenCodec) IssueAccess(userID, email, tenantID string, roles []string) (string, *AccessClaims, error) {
	now := c.cfg.Now()
	claims := &AccessClaims{
		Email:            email,
		TenantID:         tenantID,
		Roles:            roles,
		RegisteredClaims: c.registered(userID, now, c.cfg.AccessTTL),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.AccessSecret))
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return token, claims, nil
}

// IssueRefresh creates a signed refresh token. rememberMe selects the longer lifetime.
func (c *TokenCodec) IssueRefresh(userID string, rememberMe bool) (string, *RefreshClaims, error) {
	ttl := c.cfg.RefreshTTL
	if rememberMe {
		ttl = c.cfg.RefreshTTLRememberMe
	}

	claims := &RefreshClaims{RegisteredClaims: c.registered(userID, c.cfg.Now(), ttl)}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.RefreshSecret))
	if err != nil {
		return "", nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, claims, nil
}

// VerifyAccess checks signature, issuer and expiry of an access token.
// It does not consult any revocation list.
func (c *TokenCodec) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.verify(token, c.cfg.AccessSecret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh checks signature, issuer and expiry of a refresh token.
func (c *TokenCodec) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.verify(token, c.cfg.RefreshSecret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// DecodeAccess extracts access claims without verifying the signature or expiry.
// Only use the result for best-effort cleanup such as revocation on logout.
func (c *TokenCodec) DecodeAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing jti or exp", ErrTokenMalformed)
	}
	return claims, nil
}

func (c *TokenCodec) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		Issuer:    c.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *TokenCodec) verify(token, secret string, claims jwt.Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.cfg.Now),
	)

	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenSignatureInvalid
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
