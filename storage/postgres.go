package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProvider stores client state in a single key-value table.
// Suited to hosts that already run Postgres and want durable state
// shared between instances.
type PostgresProvider struct {
	pool *pgxpool.Pool
	ns   string
}

// NewPostgresProvider connects a pool and ensures the state table exists.
func NewPostgresProvider(ctx context.Context, cfg Config) (*PostgresProvider, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}

	const ddl = `
		CREATE TABLE IF NOT EXISTS client_state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ensure client_state table: %w", err)
	}

	return &PostgresProvider{pool: pool, ns: cfg.Namespace}, nil
}

// Get retrieves a value by key.
func (p *PostgresProvider) Get(ctx context.Context, key string) (string, error) {
	var value string
	query := `SELECT value FROM client_state WHERE key = $1`

	err := p.pool.QueryRow(ctx, query, namespaced(p.ns, key)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores a value under key, replacing any previous value.
func (p *PostgresProvider) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO client_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

	_, err := p.pool.Exec(ctx, query, namespaced(p.ns, key), value)
	return err
}

// Delete removes a key.
func (p *PostgresProvider) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM client_state WHERE key = $1`, namespaced(p.ns, key))
	return err
}

// Close releases the connection pool.
func (p *PostgresProvider) Close() error {
	p.pool.Close()
	return nil
}
