package store

import (
	"encoding/json"
	"reflect"
	"strconv"

	"github.com/ArionMiles/kakeibo/pkg/api"
)

// coreAttrs are the attributes mapped onto Record fields. Extra entries with
// these names are dropped on write.
var coreAttrs = map[string]bool{
	api.AttrCreatedAt:       true,
	api.AttrUpdatedAt:       true,
	api.AttrDeletedAt:       true,
	api.AttrTransactionType: true,
	api.AttrCategory:        true,
	api.AttrDescription:     true,
	api.AttrAmount:          true,
	api.AttrSourceUserID:    true,
	api.AttrSourceMessage:   true,
}

// ToItem converts a record to its storage form. Nil fields are omitted.
func ToItem(r api.Record, keyAttr string) api.Item {
	item := api.Item{}
	for k, v := range r.Extra {
		if coreAttrs[k] || k == keyAttr {
			continue
		}
		if v, ok := Value(v); ok {
			item[k] = v
		}
	}

	item[keyAttr] = r.Key
	if r.CreatedAt != "" {
		item[api.AttrCreatedAt] = r.CreatedAt
	}
	if r.UpdatedAt != "" {
		item[api.AttrUpdatedAt] = r.UpdatedAt
	}
	setString(item, api.AttrDeletedAt, r.DeletedAt)
	setString(item, api.AttrTransactionType, r.TransactionType)
	setString(item, api.AttrCategory, r.Category)
	setString(item, api.AttrDescription, r.Description)
	setString(item, api.AttrSourceUserID, r.SourceUserID)
	setString(item, api.AttrSourceMessage, r.SourceMessage)
	if r.Amount != nil {
		item[api.AttrAmount] = *r.Amount
	}
	return item
}

// setString writes v when it is set. An explicit empty string is kept.
func setString(item api.Item, attr string, v *string) {
	if v == nil {
		return
	}
	item[attr] = *v
}

// Value normalises an attribute value for storage. Nil values, including
// typed nil pointers, maps and slices, report false and must not be stored.
// Non-nil pointers are dereferenced.
func Value(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return nil, false
		}
	}
	return rv.Interface(), true
}

// FromItem converts a stored item back into a record.
func FromItem(item api.Item, keyAttr string) api.Record {
	r := api.Record{
		Key:             stringAttr(item[keyAttr]),
		CreatedAt:       stringAttr(item[api.AttrCreatedAt]),
		UpdatedAt:       stringAttr(item[api.AttrUpdatedAt]),
		DeletedAt:       optionalString(item, api.AttrDeletedAt),
		TransactionType: optionalString(item, api.AttrTransactionType),
		Category:        optionalString(item, api.AttrCategory),
		Description:     optionalString(item, api.AttrDescription),
		Amount:          AmountOf(item),
		SourceUserID:    optionalString(item, api.AttrSourceUserID),
		SourceMessage:   optionalString(item, api.AttrSourceMessage),
	}

	for k, v := range item {
		if k == keyAttr || coreAttrs[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[k] = v
	}
	return r
}

func stringAttr(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		b, _ := json.Marshal(s)
		return string(b)
	}
}

func optionalString(item api.Item, attr string) *string {
	v, ok := item[attr]
	if !ok || v == nil {
		return nil
	}
	s := stringAttr(v)
	return &s
}

// AmountOf returns the numeric amount attribute of item, or nil when it is
// absent or not a number.
func AmountOf(item api.Item) *float64 {
	v, ok := item[api.AttrAmount]
	if !ok {
		return nil
	}
	if f, ok := toFloat(v); ok {
		return &f
	}
	if s, ok := v.(string); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}
