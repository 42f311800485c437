package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "fynity:auth:revoked:"

// Blacklist caches revoked refresh token ids in Redis so hot lookups skip
// Postgres. The registry stays authoritative; a nil Blacklist is a no-op.
type Blacklist struct {
	client *redis.Client
}

// NewBlacklist constructs a blacklist on client.
func NewBlacklist(client *redis.Client) *Blacklist {
	if client == nil {
		return nil
	}
	return &Blacklist{client: client}
}

// Add remembers jti for ttl. Expired tokens are not stored.
func (b *Blacklist) Add(ctx context.Context, jti uuid.UUID, ttl time.Duration) error {
	if b == nil || ttl <= 0 {
		return nil
	}
	return b.client.Set(ctx, blacklistPrefix+jti.String(), "1", ttl).Err()
}

// Contains reports whether jti is blacklisted.
func (b *Blacklist) Contains(ctx context.Context, jti uuid.UUID) (bool, error) {
	if b == nil {
		return false, nil
	}
	err := b.client.Get(ctx, blacklistPrefix+jti.String()).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}
