package opsauth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist tracks revoked session jtis so a logged-out token stops
// working immediately instead of riding out its remaining TTL.
type Blacklist struct {
	client *redis.Client
}

func NewBlacklist(client *redis.Client) *Blacklist {
	return &Blacklist{client: client}
}

func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("opsauth: check blacklist: %w", err)
	}
	return n > 0, nil
}

// Revoke blacklists jti for ttl, which should be set to the token's
// remaining lifetime so the blacklist entry expires no later than the
// token itself would have.
func (b *Blacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if err := b.client.Set(ctx, blacklistKey(jti), "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("opsauth: revoke token: %w", err)
	}
	return nil
}

func blacklistKey(jti string) string {
	return "opsauth:blacklist:" + jti
}
