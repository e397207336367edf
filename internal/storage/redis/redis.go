package redis

import (
	"context"
	"fmt"
	"time"

	rateLimit "supervision_auth/internal/middleware/ratelimit"

	"github.com/redis/go-redis/v9"
)

// AttemptStore — redis-реализация rateLimit.Store, общая для всех инстансов.
type AttemptStore struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*AttemptStore, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &AttemptStore{
		client: client,
	}, nil
}

func NewWithClient(client *redis.Client) *AttemptStore {
	return &AttemptStore{client: client}
}

func (s *AttemptStore) Get(ctx context.Context, key string) (rateLimit.Attempt, error) {
	const op = "storage.redis.Get"

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return rateLimit.Attempt{}, fmt.Errorf("%s: %w", op, err)
	}

	if len(fields) == 0 {
		return rateLimit.Attempt{}, nil
	}

	var attempt rateLimit.Attempt

	fmt.Sscan(fields["count"], &attempt.Count)

	var lastUnix int64
	fmt.Sscan(fields["last_attempt"], &lastUnix)
	attempt.LastAttempt = time.Unix(lastUnix, 0)

	return attempt, nil
}

// * Increment атомарно наращивает счетчик; TTL на ключе дает
// сброс после периода тишины.
func (s *AttemptStore) Increment(ctx context.Context, key string, resetAfter time.Duration) (rateLimit.Attempt, error) {
	const op = "storage.redis.Increment"

	now := time.Now()

	pipe := s.client.Pipeline()
	incr := pipe.HIncrBy(ctx, key, "count", 1)
	pipe.HSet(ctx, key, "last_attempt", now.Unix())
	pipe.Expire(ctx, key, resetAfter)

	if _, err := pipe.Exec(ctx); err != nil {
		return rateLimit.Attempt{}, fmt.Errorf("%s: %w", op, err)
	}

	return rateLimit.Attempt{
		Count:       int(incr.Val()),
		LastAttempt: now,
	}, nil
}

func (s *AttemptStore) Reset(ctx context.Context, key string) error {
	const op = "storage.redis.Reset"

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * Close закрывает соединение с базой данных.
func (s *AttemptStore) Close() {
	s.client.Close()
}
