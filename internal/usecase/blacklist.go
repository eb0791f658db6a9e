package usecase

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
)

const blacklistPrefix = "blacklist:"

// BlacklistGuard tracks revoked token identifiers. Each marker lives exactly as
// long as the token it revokes, so the blacklist cleans itself up.
type BlacklistGuard struct {
	store domain.EphemeralStore
}

func NewBlacklistGuard(store domain.EphemeralStore) *BlacklistGuard {
	return &BlacklistGuard{store: store}
}

// maxRevocation keeps the one second round-up below from overflowing.
const maxRevocation = time.Duration(math.MaxInt64) - time.Second

// Revoke marks jti revoked for remaining. Already expired tokens are ignored.
// Callers bound remaining by the longest lifetime a genuine token can have.
func (g *BlacklistGuard) Revoke(ctx context.Context, jti string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}
	remaining = min(remaining, maxRevocation)
	// Redis expiry has second granularity; round up so the marker never dies before the token.
	remaining = remaining.Truncate(time.Second) + time.Second
	return g.store.Set(ctx, blacklistPrefix+jti, "1", remaining)
}

// IsRevoked reports whether jti has been revoked.
func (g *BlacklistGuard) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := g.store.Get(ctx, blacklistPrefix+jti)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}
