// Package redis provides a Redis store.Backend. Each record is a hash named
// "<table>:<key>" whose fields hold JSON-encoded attribute values.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/logging"
	"github.com/ArionMiles/kakeibo/pkg/store"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Backend implements store.Backend on top of a go-redis client.
type Backend struct {
	client *redis.Client
	logger *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	logger = logging.OrDefault(logger)
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	logger.Info("connected to Redis", "addr", cfg.Addr, "db", cfg.DB)
	return &Backend{client: client, logger: logger}, nil
}

func hashKey(table, key string) string {
	return table + ":" + key
}

// Put implements store.Backend.
func (b *Backend) Put(ctx context.Context, table, key string, item api.Item) error {
	if key == "" {
		return api.ErrMissingKey
	}
	fields, err := encode(item)
	if err != nil {
		return err
	}

	hk := hashKey(table, key)
	_, err = b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, hk)
		p.HSet(ctx, hk, fields)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing hash: %w", err)
	}
	return nil
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, table, key string) (api.Item, error) {
	raw, err := b.client.HGetAll(ctx, hashKey(table, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading hash: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("key %q: %w", key, api.ErrNotFound)
	}
	return decode(raw)
}

// Update implements store.Backend. The existence check and the write run
// under WATCH so a concurrent removal cannot resurrect a partial record.
func (b *Backend) Update(ctx context.Context, table, key string, set api.Item) (api.Item, error) {
	fields, err := encode(set)
	if err != nil {
		return nil, err
	}

	hk := hashKey(table, key)
	err = b.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, hk).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("key %q: %w", key, api.ErrNotFound)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, hk, fields)
			return nil
		})
		return err
	}, hk)
	if errors.Is(err, api.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("updating hash: %w", err)
	}
	return b.Get(ctx, table, key)
}

// Remove implements store.Backend.
func (b *Backend) Remove(ctx context.Context, table, key string) error {
	if err := b.client.Del(ctx, hashKey(table, key)).Err(); err != nil {
		return fmt.Errorf("deleting hash: %w", err)
	}
	return nil
}

// Scan implements store.Backend. Keys are listed with SCAN MATCH and the
// filter is evaluated in process.
func (b *Backend) Scan(ctx context.Context, table string, filter store.Filter) ([]api.Item, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, hashKey(table, "*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning keys: %w", err)
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	prefix := table + ":"
	var items []api.Item
	for _, hk := range keys {
		raw, err := b.client.HGetAll(ctx, hk).Result()
		if err != nil {
			return nil, fmt.Errorf("reading hash %s: %w", hk, err)
		}
		if len(raw) == 0 {
			continue
		}
		item, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", strings.TrimPrefix(hk, prefix), err)
		}
		if store.Matches(filter, item) {
			items = append(items, item)
		}
	}
	return items, nil
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	return b.client.Close()
}

func encode(item api.Item) (map[string]any, error) {
	fields := make(map[string]any, len(item))
	for k, v := range item {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding attribute %s: %w", k, err)
		}
		fields[k] = string(raw)
	}
	return fields, nil
}

func decode(raw map[string]string) (api.Item, error) {
	item := make(api.Item, len(raw))
	for k, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("decoding attribute %s: %w", k, err)
		}
		item[k] = v
	}
	return item, nil
}
