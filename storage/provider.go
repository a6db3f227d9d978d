package storage

import (
	"context"
	"errors"
	"fmt"
)

// BackendType identifies the persistence backend for client state.
type BackendType string

const (
	BackendMemory   BackendType = "memory"
	BackendRedis    BackendType = "redis"
	BackendPostgres BackendType = "postgres"
)

// ErrNotFound is returned by Get when the key has never been set or has
// been deleted.
var ErrNotFound = errors.New("storage: key not found")

// Provider is an opaque key-value store for client state: tokens, the
// active role, division fields, the last visited path and per-role
// filter buckets. Values are strings; callers encode structured values
// as JSON.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend BackendType

	// Redis settings, used when Backend is BackendRedis.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Postgres settings, used when Backend is BackendPostgres.
	PostgresURL string

	// Namespace prefixes every key so several clients can share one
	// backend. Empty means no prefix.
	Namespace string
}

// New creates a Provider for the configured backend.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryProvider(), nil
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("storage: redis backend requires RedisAddr")
		}
		return NewRedisProvider(cfg), nil
	case BackendPostgres:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("storage: postgres backend requires PostgresURL")
		}
		return NewPostgresProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: unsupported backend: %s", cfg.Backend)
	}
}

func namespaced(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}
