// Package api defines the core types shared across kakeibo.
package api

import (
	"context"
	"time"
)

// Transaction type tags stored in the transaction_type attribute.
const (
	TypeIncome  = "収入"
	TypeExpense = "支出"
)

// Category labels produced by the message parser.
const (
	CategorySalary        = "給与"
	CategoryIncome        = "収入"
	CategoryFood          = "食費"
	CategoryTransport     = "交通費"
	CategoryHousing       = "住居費"
	CategoryUtilities     = "光熱費"
	CategoryMedical       = "医療費"
	CategoryEntertainment = "娯楽費"
	CategoryShopping      = "買い物"
	CategoryOther         = "その他"
)

// Attribute names of the core record schema.
const (
	AttrCreatedAt       = "created_at"
	AttrUpdatedAt       = "updated_at"
	AttrDeletedAt       = "deleted_at"
	AttrTransactionType = "transaction_type"
	AttrCategory        = "category"
	AttrDescription     = "description"
	AttrAmount          = "amount"
	AttrSourceUserID    = "line_user_id"
	AttrSourceMessage   = "line_message"
)

// TimestampLayout is the fixed-width ISO-8601 layout used for every stored
// timestamp. Range filters compare timestamps as strings, so the width must
// never vary.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// FormatTimestamp renders t in TimestampLayout (UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Item is the storage form of a record: attribute name to value.
// Absent attributes are missing from the map, never nil.
type Item map[string]any

// Clone returns a shallow copy of the item.
func (it Item) Clone() Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// Fields is a partial set of attributes supplied to an update.
type Fields map[string]any

// Record is one financial transaction or ingestion log entry.
type Record struct {
	Key       string  `json:"key"`
	CreatedAt string  `json:"created_at,omitempty"`
	UpdatedAt string  `json:"updated_at,omitempty"`
	DeletedAt *string `json:"deleted_at,omitempty"`

	TransactionType *string  `json:"transaction_type,omitempty"`
	Category        *string  `json:"category,omitempty"`
	Description     *string  `json:"description,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`

	// Ingestion log fields.
	SourceUserID  *string `json:"line_user_id,omitempty"`
	SourceMessage *string `json:"line_message,omitempty"`

	// Extra holds extension attributes merged at write time.
	Extra map[string]any `json:"extra,omitempty"`
}

// Deleted reports whether the record carries a soft-delete marker.
func (r Record) Deleted() bool {
	return r.DeletedAt != nil
}

// ParsedMessage is the structured guess extracted from a chat message.
type ParsedMessage struct {
	TransactionType string   `json:"transaction_type"`
	Category        string   `json:"category"`
	Description     string   `json:"description"`
	Amount          *float64 `json:"amount,omitempty"`
}

// Writer consumes records from a channel and writes them to a destination.
type Writer interface {
	Write(ctx context.Context, in <-chan *Record) error
}

// String returns a pointer to s, or nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
