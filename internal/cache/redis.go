package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"tieredcache/internal/models"

	"github.com/redis/go-redis/v9"
)

const redisScanBatch = 256

// RedisCache implements Service using Redis as the disk tier.
// Each key holds a JSON-encoded models.CacheEntry under a shared prefix.
// Keys never carry a Redis TTL; expiry is the orchestration engine's job.
type RedisCache[V any] struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	closed atomic.Bool
}

// NewRedisCache connects to redisURL and verifies the connection
func NewRedisCache[V any](ctx context.Context, redisURL, prefix string, opts ...Option) (*RedisCache[V], error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisCacheFromClient[V](client, prefix, opts...), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient[V any](client *redis.Client, prefix string, opts ...Option) *RedisCache[V] {
	o := buildOptions(opts)
	return &RedisCache[V]{
		client: client,
		prefix: prefix,
		now:    o.now,
	}
}

// Get retrieves the entry for the given key
func (r *RedisCache[V]) Get(ctx context.Context, key string) (models.CacheEntry[V], error) {
	if r.closed.Load() {
		return models.CacheEntry[V]{}, models.ErrAccessDenied
	}

	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CacheEntry[V]{}, models.ErrNotFound
		}
		return models.CacheEntry[V]{}, r.wrap("redis get", key, err)
	}

	var entry models.CacheEntry[V]
	if err := json.Unmarshal(data, &entry); err != nil {
		return models.CacheEntry[V]{}, fmt.Errorf("%w: failed to unmarshal entry %s: %v", models.ErrInvalid, key, err)
	}
	return entry, nil
}

// Set stores the value with a fresh modify date
func (r *RedisCache[V]) Set(ctx context.Context, key string, value V) error {
	if r.closed.Load() {
		return models.ErrAccessDenied
	}

	data, err := json.Marshal(models.NewCacheEntry(value, r.now()))
	if err != nil {
		return fmt.Errorf("%w: failed to marshal value: %v", models.ErrInvalid, err)
	}

	if err := r.client.Set(ctx, r.redisKey(key), data, 0).Err(); err != nil {
		return r.wrap("redis set", key, err)
	}
	return nil
}

// Delete removes an entry; absent keys are not an error
func (r *RedisCache[V]) Delete(ctx context.Context, key string) error {
	if r.closed.Load() {
		return models.ErrAccessDenied
	}

	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return r.wrap("redis delete", key, err)
	}
	return nil
}

// Clear removes every key under the prefix
func (r *RedisCache[V]) Clear(ctx context.Context) error {
	if r.closed.Load() {
		return models.ErrAccessDenied
	}

	keys, err := r.scan(ctx)
	if err != nil {
		return err
	}

	for start := 0; start < len(keys); start += redisScanBatch {
		end := min(start+redisScanBatch, len(keys))
		if err := r.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return r.wrap("redis clear", "", err)
		}
	}
	return nil
}

// KeyValues lists every entry under the prefix
func (r *RedisCache[V]) KeyValues(ctx context.Context) ([]models.KeyValue[V], error) {
	if r.closed.Load() {
		return nil, models.ErrAccessDenied
	}

	keys, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}

	kvs := make([]models.KeyValue[V], 0, len(keys))
	for start := 0; start < len(keys); start += redisScanBatch {
		end := min(start+redisScanBatch, len(keys))
		batch := keys[start:end]

		values, err := r.client.MGet(ctx, batch...).Result()
		if err != nil {
			return nil, r.wrap("redis list", "", err)
		}

		for i, raw := range values {
			// Deleted between SCAN and MGET
			s, ok := raw.(string)
			if !ok {
				continue
			}
			var entry models.CacheEntry[V]
			if err := json.Unmarshal([]byte(s), &entry); err != nil {
				return nil, fmt.Errorf("%w: failed to unmarshal entry %s: %v", models.ErrInvalid, batch[i], err)
			}
			kvs = append(kvs, models.KeyValue[V]{
				Key:   strings.TrimPrefix(batch[i], r.prefix),
				Entry: entry,
			})
		}
	}
	return kvs, nil
}

// Close closes the Redis connection; later calls fail with models.ErrAccessDenied
func (r *RedisCache[V]) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.client.Close()
}

func (r *RedisCache[V]) redisKey(key string) string {
	return r.prefix + key
}

// globEscaper quotes the characters SCAN MATCH treats as pattern syntax
var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func (r *RedisCache[V]) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, globEscaper.Replace(r.prefix)+"*", redisScanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, r.wrap("redis scan", "", err)
	}
	return keys, nil
}

func (r *RedisCache[V]) wrap(op, key string, err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %v", models.ErrAccessDenied, err)
	}
	return models.NewTransportError(op, key, err)
}
