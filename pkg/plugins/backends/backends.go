// Package backends provides plugin wrappers for the record storage backends.
package backends

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/kakeibo/pkg/config"
	"github.com/ArionMiles/kakeibo/pkg/store"
	"github.com/ArionMiles/kakeibo/pkg/store/memory"
	"github.com/ArionMiles/kakeibo/pkg/store/postgres"
	"github.com/ArionMiles/kakeibo/pkg/store/redis"
)

// Memory keeps records in process memory.
type Memory struct{}

// Name returns the plugin name.
func (Memory) Name() string { return "memory" }

// Description returns a human-readable description.
func (Memory) Description() string { return "In-process store; records are lost on exit" }

// NewBackend creates an empty in-memory backend.
func (Memory) NewBackend(context.Context, config.Config, *slog.Logger) (store.Backend, error) {
	return memory.New(), nil
}

// Postgres stores records as JSONB rows.
type Postgres struct{}

// Name returns the plugin name.
func (Postgres) Name() string { return "postgres" }

// Description returns a human-readable description.
func (Postgres) Description() string { return "PostgreSQL store with a JSONB attribute bag per record" }

// NewBackend connects to PostgreSQL using the POSTGRES_* settings.
func (Postgres) NewBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Backend, error) {
	pg := cfg.Postgres
	if pg.Host == "" || pg.Database == "" || pg.User == "" {
		return nil, fmt.Errorf("POSTGRES_HOST, POSTGRES_DB and POSTGRES_USER are required")
	}
	return postgres.New(ctx, postgres.Config{
		Host:     pg.Host,
		Port:     pg.Port,
		Database: pg.Database,
		User:     pg.User,
		Password: pg.Password,
		SSLMode:  pg.SSLMode,
	}, logger)
}

// Redis stores each record as a hash.
type Redis struct{}

// Name returns the plugin name.
func (Redis) Name() string { return "redis" }

// Description returns a human-readable description.
func (Redis) Description() string { return "Redis store with one hash per record" }

// NewBackend connects to Redis using the REDIS_* settings.
func (Redis) NewBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Backend, error) {
	return redis.New(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
}
