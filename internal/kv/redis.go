package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matchrelay/matchrelay/internal/config"
)

// RedisStore implements Store on a Redis connection. Every call carries an
// explicit timeout; a slow store call fails locally instead of stalling the
// unit of work that issued it.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisStore connects to Redis with the given configuration.
func NewRedisStore(log *slog.Logger, cfg config.RedisConfig) *RedisStore {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultRedisTimeout) * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{
		client:  client,
		timeout: timeout,
		logger:  log.With(slog.String("component", "kv")),
	}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping verifies the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Get returns the value for key and whether it exists.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return val, true, nil
}

// Set writes value under key.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// Del removes key.
func (s *RedisStore) Del(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kv del %s: %w", key, err)
	}
	return nil
}

// ScanKeys returns all keys matching the glob pattern.
func (s *RedisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("kv scan %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// AddToIndex adds member to the sorted set at key with the given score.
func (s *RedisStore) AddToIndex(ctx context.Context, key string, score int64, member string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member}).Err(); err != nil {
		return fmt.Errorf("kv zadd %s: %w", key, err)
	}
	return nil
}

// RangeByScore returns sorted-set members with scores within [min, max].
func (s *RedisStore) RangeByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(min, 10),
		Max: strconv.FormatInt(max, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("kv zrangebyscore %s: %w", key, err)
	}
	return members, nil
}
