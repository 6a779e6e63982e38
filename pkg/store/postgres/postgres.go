// Package postgres provides a PostgreSQL store.Backend.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/logging"
	"github.com/ArionMiles/kakeibo/pkg/store"
)

//go:embed 001_create_records.sql
var migrationSQL string

// Config holds the PostgreSQL backend configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// DSN overrides the individual connection fields when set.
	DSN string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int

	// ConnectAttempts and ConnectDelay control the startup retry.
	ConnectAttempts uint
	ConnectDelay    time.Duration
}

func (c Config) connString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Backend stores items as JSONB rows in a single records table.
type Backend struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

// New connects to PostgreSQL and runs the bootstrap DDL.
// Connecting is retried; nothing else is.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	logger = logging.OrDefault(logger)

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 5
	}
	if cfg.ConnectDelay == 0 {
		cfg.ConnectDelay = 2 * time.Second
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	var pool *pgxpool.Pool
	err = retry.Do(
		func() error {
			p, err := pgxpool.NewWithConfig(ctx, poolConfig)
			if err != nil {
				return fmt.Errorf("creating connection pool: %w", err)
			}

			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := p.Ping(pingCtx); err != nil {
				p.Close()
				return fmt.Errorf("pinging database: %w", err)
			}
			pool = p
			return nil
		},
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("postgres not ready, retrying", "attempt", n+1, "error", err)
		}),
		retry.Attempts(cfg.ConnectAttempts),
		retry.Delay(cfg.ConnectDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("connected to PostgreSQL",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
	)

	b := &Backend{pool: pool, logger: logger}
	if err := b.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return b, nil
}

func (b *Backend) runMigrations(ctx context.Context) error {
	b.logger.Info("running database migrations")
	if _, err := b.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	b.logger.Info("migrations completed successfully")
	return nil
}

// Put implements store.Backend.
func (b *Backend) Put(ctx context.Context, table, key string, item api.Item) error {
	if key == "" {
		return api.ErrMissingKey
	}
	attrs, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding item: %w", err)
	}

	_, err = b.pool.Exec(ctx, `
		INSERT INTO records (table_name, key, attrs)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (table_name, key) DO UPDATE SET attrs = EXCLUDED.attrs
	`, table, key, string(attrs))
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, table, key string) (api.Item, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx,
		`SELECT attrs FROM records WHERE table_name = $1 AND key = $2`,
		table, key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("key %q: %w", key, api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("selecting record: %w", err)
	}
	return decode(raw)
}

// Update implements store.Backend. The merge runs as a single statement.
func (b *Backend) Update(ctx context.Context, table, key string, set api.Item) (api.Item, error) {
	patch, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("encoding update: %w", err)
	}

	var raw []byte
	err = b.pool.QueryRow(ctx, `
		UPDATE records SET attrs = attrs || $3::jsonb
		WHERE table_name = $1 AND key = $2
		RETURNING attrs
	`, table, key, string(patch)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("key %q: %w", key, api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	return decode(raw)
}

// Remove implements store.Backend.
func (b *Backend) Remove(ctx context.Context, table, key string) error {
	if _, err := b.pool.Exec(ctx,
		`DELETE FROM records WHERE table_name = $1 AND key = $2`,
		table, key,
	); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// Scan implements store.Backend. Filters are translated to JSONB predicates;
// unknown filter types are evaluated in process after the fetch.
func (b *Backend) Scan(ctx context.Context, table string, filter store.Filter) ([]api.Item, error) {
	args := []any{table}
	where, native := compile(filter, &args)

	query := `SELECT attrs FROM records WHERE table_name = $1`
	if where != "" {
		query += " AND " + where
	}
	query += " ORDER BY key"

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scanning records: %w", err)
	}
	defer rows.Close()

	var items []api.Item
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		item, err := decode(raw)
		if err != nil {
			return nil, err
		}
		if !native && !store.Matches(filter, item) {
			continue
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return items, nil
}

// compile turns a filter into a SQL predicate, appending parameters to args.
// The boolean reports whether the predicate fully expresses the filter.
func compile(f store.Filter, args *[]any) (string, bool) {
	param := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}

	switch f := f.(type) {
	case nil:
		return "", true
	case store.EqFilter:
		value, err := json.Marshal(f.Value)
		if err != nil {
			return "", false
		}
		return fmt.Sprintf("attrs -> %s::text = %s::jsonb", param(f.Attr), param(string(value))), true
	case store.ExistsFilter:
		return fmt.Sprintf("attrs ? %s::text", param(f.Attr)), true
	case store.NotExistsFilter:
		return fmt.Sprintf("NOT (attrs ? %s::text)", param(f.Attr)), true
	case store.RangeFilter:
		attr := param(f.Attr)
		return fmt.Sprintf(
			`(attrs ->> %[1]s::text) COLLATE "C" >= %[2]s::text AND (attrs ->> %[1]s::text) COLLATE "C" < %[3]s::text`,
			attr, param(f.Lo), param(f.Hi),
		), true
	case store.AndFilter:
		var parts []string
		native := true
		for _, sub := range f {
			p, ok := compile(sub, args)
			if !ok {
				native = false
				continue
			}
			if p != "" {
				parts = append(parts, "("+p+")")
			}
		}
		return strings.Join(parts, " AND "), native
	default:
		return "", false
	}
}

func decode(raw []byte) (api.Item, error) {
	item := api.Item{}
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decoding attrs: %w", err)
	}
	return item, nil
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	if b.pool != nil {
		b.pool.Close()
		b.logger.Info("closed PostgreSQL connection pool")
	}
	return nil
}
