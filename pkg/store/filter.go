package store

import (
	"encoding/json"
	"reflect"

	"github.com/ArionMiles/kakeibo/pkg/api"
)

// Filter selects items during a scan. A nil Filter matches everything.
//
// Backends that can evaluate filters natively type-switch on the concrete
// filter types below; everything else falls back to Match.
type Filter interface {
	Match(item api.Item) bool
}

// EqFilter matches items whose attribute equals Value.
type EqFilter struct {
	Attr  string
	Value any
}

// ExistsFilter matches items that carry the attribute.
type ExistsFilter struct {
	Attr string
}

// NotExistsFilter matches items that do not carry the attribute.
type NotExistsFilter struct {
	Attr string
}

// RangeFilter matches string attributes with Lo <= v < Hi.
type RangeFilter struct {
	Attr string
	Lo   string
	Hi   string
}

// AndFilter matches when every sub-filter matches.
type AndFilter []Filter

// Eq matches items whose attr equals value.
func Eq(attr string, value any) EqFilter { return EqFilter{Attr: attr, Value: value} }

// Exists matches items carrying attr.
func Exists(attr string) ExistsFilter { return ExistsFilter{Attr: attr} }

// NotExists matches items without attr.
func NotExists(attr string) NotExistsFilter { return NotExistsFilter{Attr: attr} }

// Range matches string attributes in the half-open range [lo, hi).
func Range(attr, lo, hi string) RangeFilter { return RangeFilter{Attr: attr, Lo: lo, Hi: hi} }

// And combines filters; nil entries are ignored.
func And(filters ...Filter) AndFilter { return AndFilter(filters) }

// Match implements Filter. Numbers compare by value.
func (f EqFilter) Match(item api.Item) bool {
	v, ok := item[f.Attr]
	if !ok {
		return false
	}
	return equalValues(v, f.Value)
}

// Match implements Filter.
func (f ExistsFilter) Match(item api.Item) bool {
	_, ok := item[f.Attr]
	return ok
}

// Match implements Filter.
func (f NotExistsFilter) Match(item api.Item) bool {
	_, ok := item[f.Attr]
	return !ok
}

// Match implements Filter. Non-string values never match.
func (f RangeFilter) Match(item api.Item) bool {
	s, ok := item[f.Attr].(string)
	if !ok {
		return false
	}
	return s >= f.Lo && s < f.Hi
}

// Match implements Filter. An empty AndFilter matches everything.
func (f AndFilter) Match(item api.Item) bool {
	for _, sub := range f {
		if sub != nil && !sub.Match(item) {
			return false
		}
	}
	return true
}

// Matches applies f to item, treating a nil filter as match-all.
func Matches(f Filter, item api.Item) bool {
	if f == nil {
		return true
	}
	return f.Match(item)
}

// equalValues compares two attribute values. Numbers compare by value
// regardless of their Go type so that items decoded from JSON still match
// filters built from typed literals.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
