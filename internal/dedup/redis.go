package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "feishubot:dedup:"

// RedisStore keeps dedup keys in redis, shared by every relay process that
// points at the same server. Expiry is left to redis.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

// CheckAndMark issues a single SET NX EX, so the check and the mark cannot
// interleave with another caller.
func (s *RedisStore) CheckAndMark(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	set, err := s.rdb.SetNX(ctx, redisKeyPrefix+messageID, "processed", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx %s: %w", messageID, err)
	}
	return !set, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
