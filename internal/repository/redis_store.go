package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FilipeAphrody/sentinel-auth/internal/domain"
)

// ErrStoreUnavailable wraps every Redis transport failure.
var ErrStoreUnavailable = errors.New("ephemeral store unavailable")

// RedisStore implements domain.EphemeralStore using Redis.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a new store instance.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient builds a client from a redis:// URL or a bare host:port and pings it.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return client, nil
}

// Set stores value under key with the given Time-To-Live (TTL).
func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Get returns the value under key, or domain.ErrKeyNotFound once it expired.
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrKeyNotFound
		}
		return "", fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, key, err)
	}
	return value, nil
}

// Del removes keys immediately and reports how many existed.
// Single-use secrets rely on the count: only the caller that removed the key may proceed.
func (r *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: del: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Incr increments a counter and re-arms its TTL in one MULTI/EXEC round-trip.
func (r *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %v", ErrStoreUnavailable, key, err)
	}
	return incr.Val(), nil
}

// TTL returns the remaining lifetime of key.
func (r *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: ttl %s: %v", ErrStoreUnavailable, key, err)
	}
	// -2: missing key, -1: key without expiry.
	if ttl == -2 {
		return 0, domain.ErrKeyNotFound
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
