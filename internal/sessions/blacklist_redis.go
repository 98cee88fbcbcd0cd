package sessions

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis client for revoked access tokens; nil disables revocation.
var blacklistClient *redis.Client

const blacklistPrefix = "admin:revoked:"

// SetBlacklistClient configures the Redis client used for revocation.
// Passing nil turns the feature off.
func SetBlacklistClient(c *redis.Client) {
	blacklistClient = c
}

// BlacklistAccessToken revokes an access token until it would have expired
// anyway. Without a client it does nothing.
func BlacklistAccessToken(ctx context.Context, token string, ttl time.Duration) error {
	if blacklistClient == nil || ttl <= 0 {
		return nil
	}
	return blacklistClient.Set(ctx, blacklistPrefix+digest(token), "1", ttl).Err()
}

// IsAccessTokenBlacklisted reports whether token was revoked at logout.
func IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	if blacklistClient == nil {
		return false, nil
	}
	n, err := blacklistClient.Exists(ctx, blacklistPrefix+digest(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
