package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"tieredcache/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresCache implements Service using a PostgreSQL table as the disk tier
type PostgresCache[V any] struct {
	pool   *pgxpool.Pool
	table  string
	now    func() time.Time
	closed atomic.Bool
}

// NewPostgresCache opens a pool, checks it is alive and creates the entries table
func NewPostgresCache[V any](ctx context.Context, connectionString, table string, opts ...Option) (*PostgresCache[V], error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", models.ErrInvalidConfig, table)
	}

	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres connection string: %w", err)
	}
	config.MaxConns = 10
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	o := buildOptions(opts)
	p := &PostgresCache[V]{
		pool:  pool,
		table: table,
		now:   o.now,
	}
	if err := p.createTableIfNotExists(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}
	return p, nil
}

func (p *PostgresCache[V]) createTableIfNotExists(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key TEXT PRIMARY KEY,
				value JSONB NOT NULL,
				modify_date TIMESTAMP WITH TIME ZONE NOT NULL
			)`, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_modify_date ON %[1]s(modify_date)`, p.table),
	}

	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves the entry for the given key
func (p *PostgresCache[V]) Get(ctx context.Context, key string) (models.CacheEntry[V], error) {
	if p.closed.Load() {
		return models.CacheEntry[V]{}, models.ErrAccessDenied
	}

	query := fmt.Sprintf(`SELECT value, modify_date FROM %s WHERE key = $1`, p.table)

	var (
		raw        []byte
		modifyDate time.Time
	)
	if err := p.pool.QueryRow(ctx, query, key).Scan(&raw, &modifyDate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CacheEntry[V]{}, models.ErrNotFound
		}
		return models.CacheEntry[V]{}, models.NewTransportError("postgres get", key, err)
	}

	return decodeRow[V](key, raw, modifyDate)
}

// Set upserts the value with a fresh modify date
func (p *PostgresCache[V]) Set(ctx context.Context, key string, value V) error {
	if p.closed.Load() {
		return models.ErrAccessDenied
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal value: %v", models.ErrInvalid, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, modify_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, modify_date = EXCLUDED.modify_date
	`, p.table)

	if _, err := p.pool.Exec(ctx, query, key, string(raw), p.now().UTC()); err != nil {
		return models.NewTransportError("postgres set", key, err)
	}
	return nil
}

// Delete removes an entry; absent keys are not an error
func (p *PostgresCache[V]) Delete(ctx context.Context, key string) error {
	if p.closed.Load() {
		return models.ErrAccessDenied
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, p.table)
	if _, err := p.pool.Exec(ctx, query, key); err != nil {
		return models.NewTransportError("postgres delete", key, err)
	}
	return nil
}

// Clear removes every row
func (p *PostgresCache[V]) Clear(ctx context.Context) error {
	if p.closed.Load() {
		return models.ErrAccessDenied
	}

	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, p.table)); err != nil {
		return models.NewTransportError("postgres clear", "", err)
	}
	return nil
}

// KeyValues lists every row
func (p *PostgresCache[V]) KeyValues(ctx context.Context) ([]models.KeyValue[V], error) {
	if p.closed.Load() {
		return nil, models.ErrAccessDenied
	}

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT key, value, modify_date FROM %s`, p.table))
	if err != nil {
		return nil, models.NewTransportError("postgres list", "", err)
	}
	defer rows.Close()

	var kvs []models.KeyValue[V]
	for rows.Next() {
		var (
			key        string
			raw        []byte
			modifyDate time.Time
		)
		if err := rows.Scan(&key, &raw, &modifyDate); err != nil {
			return nil, models.NewTransportError("postgres list", "", err)
		}
		entry, err := decodeRow[V](key, raw, modifyDate)
		if err != nil {
			return nil, err
		}
		kvs = append(kvs, models.KeyValue[V]{Key: key, Entry: entry})
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewTransportError("postgres list", "", err)
	}
	return kvs, nil
}

// Close closes the pool; later calls fail with models.ErrAccessDenied
func (p *PostgresCache[V]) Close() error {
	if !p.closed.Swap(true) {
		p.pool.Close()
	}
	return nil
}

func decodeRow[V any](key string, raw []byte, modifyDate time.Time) (models.CacheEntry[V], error) {
	var value V
	if err := json.Unmarshal(raw, &value); err != nil {
		return models.CacheEntry[V]{}, fmt.Errorf("%w: failed to unmarshal entry %s: %v", models.ErrInvalid, key, err)
	}
	return models.NewCacheEntry(value, modifyDate), nil
}
