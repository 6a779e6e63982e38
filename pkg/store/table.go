package store

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/logging"
)

// Table applies record semantics to one named table of a Backend.
type Table struct {
	name    string
	keyAttr string
	backend Backend
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Table.
type Option func(*Table)

// WithClock overrides the time source used for created_at/updated_at/deleted_at.
func WithClock(now func() time.Time) Option {
	return func(t *Table) { t.now = now }
}

// WithLogger sets the table logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) { t.logger = logger }
}

// NewTable binds a table name and its key attribute to a backend.
func NewTable(backend Backend, name, keyAttr string, opts ...Option) *Table {
	t := &Table{
		name:    name,
		keyAttr: keyAttr,
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.OrDefault(t.logger).With("component", "store", "table", name)
	return t
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// KeyAttr returns the attribute holding the primary key.
func (t *Table) KeyAttr() string { return t.keyAttr }

func (t *Table) timestamp() string {
	return api.FormatTimestamp(t.now())
}

func (t *Table) wrap(op string, err error) error {
	op = t.name + "." + op
	if errors.Is(err, api.ErrNotFound) {
		return api.E(api.KindNotFound, op, err)
	}
	if errors.Is(err, api.ErrMissingKey) {
		return api.E(api.KindValidation, op, err)
	}
	return api.E(api.KindStorage, op, err)
}

// Create writes a new record with fresh created_at and updated_at.
// deleted_at is never written by Create.
func (t *Table) Create(ctx context.Context, r api.Record) (api.Record, error) {
	if strings.TrimSpace(r.Key) == "" {
		return api.Record{}, t.wrap("create", api.ErrMissingKey)
	}

	now := t.timestamp()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.DeletedAt = nil

	item := ToItem(r, t.keyAttr)
	if err := t.backend.Put(ctx, t.name, r.Key, item); err != nil {
		return api.Record{}, t.wrap("create", err)
	}

	t.logger.Debug("record created", "key", r.Key)
	return FromItem(item, t.keyAttr), nil
}

// Read returns the record stored under key, including soft-deleted ones.
func (t *Table) Read(ctx context.Context, key string) (api.Record, error) {
	item, err := t.backend.Get(ctx, t.name, key)
	if err != nil {
		return api.Record{}, t.wrap("read", err)
	}
	return FromItem(item, t.keyAttr), nil
}

// Update merges fields into an existing record and refreshes updated_at.
// The key, timestamps and deleted_at cannot be changed this way and are
// ignored, as are nil values and nil pointers.
func (t *Table) Update(ctx context.Context, key string, fields api.Fields) (api.Record, error) {
	set := api.Item{}
	for k, v := range fields {
		if t.protected(k) {
			continue
		}
		if v, ok := Value(v); ok {
			set[k] = v
		}
	}
	set[api.AttrUpdatedAt] = t.timestamp()

	item, err := t.backend.Update(ctx, t.name, key, set)
	if err != nil {
		return api.Record{}, t.wrap("update", err)
	}

	t.logger.Debug("record updated", "key", key, "fields", len(set)-1)
	return FromItem(item, t.keyAttr), nil
}

func (t *Table) protected(attr string) bool {
	switch attr {
	case t.keyAttr, "key", api.AttrCreatedAt, api.AttrUpdatedAt, api.AttrDeletedAt:
		return true
	}
	return false
}

// Delete removes a record. A soft delete stamps deleted_at (and updated_at)
// and returns the updated record; a hard delete removes the item and returns
// a record carrying only the key.
func (t *Table) Delete(ctx context.Context, key string, soft bool) (api.Record, error) {
	if soft {
		now := t.timestamp()
		item, err := t.backend.Update(ctx, t.name, key, api.Item{
			api.AttrDeletedAt: now,
			api.AttrUpdatedAt: now,
		})
		if err != nil {
			return api.Record{}, t.wrap("delete", err)
		}
		t.logger.Debug("record soft-deleted", "key", key)
		return FromItem(item, t.keyAttr), nil
	}

	if err := t.backend.Remove(ctx, t.name, key); err != nil {
		return api.Record{}, t.wrap("delete", err)
	}
	t.logger.Debug("record removed", "key", key)
	return api.Record{Key: key}, nil
}

// List returns all records, skipping soft-deleted ones unless includeDeleted.
func (t *Table) List(ctx context.Context, includeDeleted bool) ([]api.Record, error) {
	var filter Filter
	if !includeDeleted {
		filter = NotExists(api.AttrDeletedAt)
	}
	return t.scan(ctx, "list", filter)
}

// QueryByField returns active records whose attr equals value.
func (t *Table) QueryByField(ctx context.Context, attr string, value any) ([]api.Record, error) {
	return t.scan(ctx, "query", And(Eq(attr, value), NotExists(api.AttrDeletedAt)))
}

// Scan returns every record matching filter, soft-deleted ones included.
func (t *Table) Scan(ctx context.Context, filter Filter) ([]api.Record, error) {
	return t.scan(ctx, "scan", filter)
}

func (t *Table) scan(ctx context.Context, op string, filter Filter) ([]api.Record, error) {
	items, err := t.backend.Scan(ctx, t.name, filter)
	if err != nil {
		return nil, t.wrap(op, err)
	}

	records := make([]api.Record, 0, len(items))
	for _, item := range items {
		records = append(records, FromItem(item, t.keyAttr))
	}
	slices.SortFunc(records, func(a, b api.Record) int {
		return strings.Compare(a.Key, b.Key)
	})
	return records, nil
}
