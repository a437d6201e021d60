package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore sliding-window store on a redis sorted set, for deployments
// where the gate must be consistent across instances. Entries are scored by
// unix milliseconds; expired entries are trimmed on each query.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore creates a redis-backed store
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention}
}

// Count trims the retention horizon then counts entries inside the window
func (s *RedisStore) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	now := time.Now()
	redisKey := fraudKey(key)

	horizon := now.Add(-s.retention).UnixMilli()
	if err := s.client.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", horizon)).Err(); err != nil {
		return 0, err
	}

	windowStart := now.Add(-window).UnixMilli()
	count, err := s.client.ZCount(ctx, redisKey,
		fmt.Sprintf("(%d", windowStart),
		"+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Record adds an entry scored at the event time
func (s *RedisStore) Record(ctx context.Context, key string, at time.Time) error {
	redisKey := fraudKey(key)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: fmt.Sprintf("%d-%s", at.UnixMilli(), uuid.NewString()),
	})
	pipe.Expire(ctx, redisKey, s.retention)
	_, err := pipe.Exec(ctx)
	return err
}

func fraudKey(key string) string {
	return "fraud:" + key
}
