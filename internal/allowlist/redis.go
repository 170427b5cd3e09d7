package allowlist

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/token_ledger/internal/account"
)

// RedisKey is the set holding allowed account ids.
const RedisKey = "allowlist:v1:accounts"

// RedisStore keeps the allowlist in a single Redis set.
type RedisStore struct {
	cache *redis.Client
}

// NewRedisStore builds an allowlist backed by Redis.
func NewRedisStore(cache *redis.Client) *RedisStore {
	return &RedisStore{cache: cache}
}

func (s *RedisStore) Contains(ctx context.Context, id account.ID) (bool, error) {
	return s.cache.SIsMember(ctx, RedisKey, id.String()).Result()
}

func (s *RedisStore) MarkAllowed(ctx context.Context, id account.ID) (bool, error) {
	added, err := s.cache.SAdd(ctx, RedisKey, id.String()).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}
