// Package store implements record semantics (timestamps, key protection,
// soft delete) on top of a pluggable key-value Backend.
package store

import (
	"context"

	"github.com/ArionMiles/kakeibo/pkg/api"
)

// Backend is a key-value engine holding items grouped by table name.
//
// Implementations must return api.ErrNotFound (possibly wrapped) from Get and
// Update when the key is absent. Remove of an absent key is not an error.
type Backend interface {
	// Put writes the item, replacing any existing item with the same key.
	Put(ctx context.Context, table, key string, item api.Item) error
	// Get returns the item stored under key.
	Get(ctx context.Context, table, key string) (api.Item, error)
	// Update merges set into an existing item and returns the full result.
	Update(ctx context.Context, table, key string, set api.Item) (api.Item, error)
	// Remove deletes the item stored under key.
	Remove(ctx context.Context, table, key string) error
	// Scan returns every item in the table matching filter.
	Scan(ctx context.Context, table string, filter Filter) ([]api.Item, error)
	// Close releases connections held by the backend.
	Close() error
}
