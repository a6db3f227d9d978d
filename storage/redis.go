package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisProvider stores client state in Redis. Values are plain strings
// with no TTL; explicit Delete is the only way state goes away, which
// matches the logout semantics of the session layer.
type RedisProvider struct {
	rdb *redis.Client
	ns  string
}

// NewRedisProvider creates a provider over a new Redis client.
func NewRedisProvider(cfg Config) *RedisProvider {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &RedisProvider{rdb: rdb, ns: cfg.Namespace}
}

// Get retrieves a value by key.
func (p *RedisProvider) Get(ctx context.Context, key string) (string, error) {
	value, err := p.rdb.Get(ctx, namespaced(p.ns, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores a value under key.
func (p *RedisProvider) Set(ctx context.Context, key, value string) error {
	return p.rdb.Set(ctx, namespaced(p.ns, key), value, 0).Err()
}

// Delete removes a key.
func (p *RedisProvider) Delete(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, namespaced(p.ns, key)).Err()
}

// Close releases the underlying Redis connection pool.
func (p *RedisProvider) Close() error {
	return p.rdb.Close()
}
