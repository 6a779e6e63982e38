package store

import (
	"encoding/json"
	"testing"

	"github.com/ArionMiles/kakeibo/pkg/api"
)

func TestFilterMatch(t *testing.T) {
	item := api.Item{
		"pk":               "a",
		"transaction_type": "支出",
		"amount":           850.0,
		"created_at":       "2024-03-15T10:00:00.000000",
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"nil matches all", nil, true},
		{"eq string", Eq("transaction_type", "支出"), true},
		{"eq string mismatch", Eq("transaction_type", "収入"), false},
		{"eq number across types", Eq("amount", 850), true},
		{"eq json number", Eq("amount", json.Number("850")), true},
		{"eq missing attr", Eq("category", "食費"), false},
		{"exists", Exists("amount"), true},
		{"exists missing", Exists("deleted_at"), false},
		{"not exists", NotExists("deleted_at"), true},
		{"not exists present", NotExists("amount"), false},
		{"range inside", Range("created_at", "2024-03-01T00:00:00.000000", "2024-04-01T00:00:00.000000"), true},
		{"range lower bound inclusive", Range("created_at", "2024-03-15T10:00:00.000000", "2024-04-01T00:00:00.000000"), true},
		{"range upper bound exclusive", Range("created_at", "2024-02-01T00:00:00.000000", "2024-03-15T10:00:00.000000"), false},
		{"range non-string attr", Range("amount", "0", "9"), false},
		{"and all", And(Eq("transaction_type", "支出"), NotExists("deleted_at")), true},
		{"and one fails", And(Eq("transaction_type", "支出"), Exists("deleted_at")), false},
		{"and empty", And(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.filter, item); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestItemRoundTripKeepsExtraButNotShadowing(t *testing.T) {
	r := api.Record{
		Key:             "k1",
		CreatedAt:       "2024-01-01T00:00:00.000000",
		UpdatedAt:       "2024-01-01T00:00:00.000000",
		TransactionType: api.String(api.TypeExpense),
		Amount:          api.Float(120),
		Extra: map[string]any{
			"note":     "lunch",
			"category": "ignored",
			"pk":       "ignored",
			"nothing":  nil,
		},
	}

	item := ToItem(r, "pk")
	if item["pk"] != "k1" {
		t.Errorf("key attr: got %v, want k1", item["pk"])
	}
	if _, ok := item["category"]; ok {
		t.Error("extra must not shadow core attribute category")
	}
	if _, ok := item["nothing"]; ok {
		t.Error("nil extra value must be omitted")
	}
	if _, ok := item[api.AttrDeletedAt]; ok {
		t.Error("deleted_at must be omitted when nil")
	}

	back := FromItem(item, "pk")
	if back.Key != "k1" {
		t.Errorf("key: got %q, want k1", back.Key)
	}
	if back.Amount == nil || *back.Amount != 120 {
		t.Errorf("amount: got %v, want 120", back.Amount)
	}
	if back.Extra["note"] != "lunch" {
		t.Errorf("extra note: got %v, want lunch", back.Extra["note"])
	}
	if len(back.Extra) != 1 {
		t.Errorf("extra: got %v, want only note", back.Extra)
	}
}

func TestItemKeepsExplicitEmptyString(t *testing.T) {
	empty := ""
	var note *string
	item := ToItem(api.Record{
		Key:         "k1",
		Description: &empty,
		Extra:       map[string]any{"note": note},
	}, "pk")

	if v, ok := item[api.AttrDescription]; !ok || v != "" {
		t.Errorf("description: got %v (present %v), want empty string", v, ok)
	}
	if _, ok := item["note"]; ok {
		t.Error("typed nil extra value must be omitted")
	}
	if back := FromItem(item, "pk"); back.Description == nil || *back.Description != "" {
		t.Errorf("description after round trip: got %v, want empty string", back.Description)
	}
}

func TestValue(t *testing.T) {
	s := "x"
	f := 2.5
	tests := []struct {
		name   string
		in     any
		want   any
		wantOK bool
	}{
		{"nil", nil, nil, false},
		{"nil string pointer", (*string)(nil), nil, false},
		{"nil float pointer", (*float64)(nil), nil, false},
		{"nil map", map[string]any(nil), nil, false},
		{"nil slice", []string(nil), nil, false},
		{"string pointer", &s, "x", true},
		{"float pointer", &f, 2.5, true},
		{"plain string", "y", "y", true},
		{"empty string", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Value(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Value(%v): got (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAmountOf(t *testing.T) {
	tests := []struct {
		name string
		item api.Item
		want *float64
	}{
		{"absent", api.Item{}, nil},
		{"float", api.Item{"amount": 12.5}, api.Float(12.5)},
		{"int", api.Item{"amount": 7}, api.Float(7)},
		{"numeric string", api.Item{"amount": "300000"}, api.Float(300000)},
		{"garbage", api.Item{"amount": "abc"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AmountOf(tt.item)
			switch {
			case got == nil && tt.want == nil:
			case got == nil || tt.want == nil:
				t.Errorf("got %v, want %v", got, tt.want)
			case *got != *tt.want:
				t.Errorf("got %v, want %v", *got, *tt.want)
			}
		})
	}
}
