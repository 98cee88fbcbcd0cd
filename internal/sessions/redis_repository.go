package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository implements Repository on Redis. Each session is a JSON
// value under "<prefix><digest>" whose TTL follows ExpiresAt.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based session repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "admin:session:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) Create(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	return r.client.Set(ctx, r.prefix+s.RefreshHash, b, ttl).Err()
}

func (r *RedisRepository) GetByHash(ctx context.Context, hash string) (*Session, error) {
	b, err := r.client.Get(ctx, r.prefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	if s.Expired(time.Now().UTC()) {
		_ = r.client.Del(ctx, r.prefix+hash).Err()
		return nil, nil
	}
	return &s, nil
}

func (r *RedisRepository) DeleteByHash(ctx context.Context, hash string) error {
	return r.client.Del(ctx, r.prefix+hash).Err()
}
