// Package memory provides an in-process store.Backend.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/store"
)

// Backend keeps items in maps guarded by a RWMutex.
// Items are copied on the way in and out so callers never share state with
// the store. Data is lost when the process exits.
type Backend struct {
	mu     sync.RWMutex
	tables map[string]map[string]api.Item
}

var _ store.Backend = (*Backend)(nil)

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{tables: make(map[string]map[string]api.Item)}
}

func (b *Backend) table(name string) map[string]api.Item {
	t, ok := b.tables[name]
	if !ok {
		t = make(map[string]api.Item)
		b.tables[name] = t
	}
	return t
}

// Put implements store.Backend.
func (b *Backend) Put(ctx context.Context, table, key string, item api.Item) error {
	if key == "" {
		return api.ErrMissingKey
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.table(table)[key] = item.Clone()
	return nil
}

// Get implements store.Backend.
func (b *Backend) Get(ctx context.Context, table, key string) (api.Item, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	item, ok := b.tables[table][key]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, api.ErrNotFound)
	}
	return item.Clone(), nil
}

// Update implements store.Backend.
func (b *Backend) Update(ctx context.Context, table, key string, set api.Item) (api.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.tables[table][key]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, api.ErrNotFound)
	}

	next := current.Clone()
	for k, v := range set {
		next[k] = v
	}
	b.tables[table][key] = next
	return next.Clone(), nil
}

// Remove implements store.Backend.
func (b *Backend) Remove(ctx context.Context, table, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.tables[table], key)
	return nil
}

// Scan implements store.Backend. Results are ordered by key.
func (b *Backend) Scan(ctx context.Context, table string, filter store.Filter) ([]api.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.tables[table]))
	for k := range b.tables[table] {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var result []api.Item
	for _, k := range keys {
		item := b.tables[table][k]
		if store.Matches(filter, item) {
			result = append(result, item.Clone())
		}
	}
	return result, nil
}

// Close implements store.Backend.
func (b *Backend) Close() error { return nil }
