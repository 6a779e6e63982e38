package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/logging"
	"github.com/ArionMiles/kakeibo/pkg/store"
	"github.com/ArionMiles/kakeibo/pkg/store/memory"
)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		t := cur
		cur = cur.Add(time.Second)
		return t
	}
}

func newTable(t *testing.T) *store.Table {
	t.Helper()
	start := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	return store.NewTable(memory.New(), "money_table", "pk",
		store.WithClock(stepClock(start)),
		store.WithLogger(logging.Discard()),
	)
}

func TestCreateAndRead(t *testing.T) {
	ctx := context.Background()
	tbl := newTable(t)

	created, err := tbl.Create(ctx, api.Record{
		Key:             "r1",
		TransactionType: api.String(api.TypeExpense),
		Category:        api.String(api.CategoryFood),
		Amount:          api.Float(850),
		DeletedAt:       api.String("should be dropped"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	want := api.Record{
		Key:             "r1",
		CreatedAt:       "2024-03-15T09:00:00.000000",
		UpdatedAt:       "2024-03-15T09:00:00.000000",
		TransactionType: api.String(api.TypeExpense),
		Category:        api.String(api.CategoryFood),
		Amount:          api.Float(850),
	}
	if diff := cmp.Diff(want, created); diff != "" {
		t.Errorf("created record mismatch (-want +got):\n%s", diff)
	}

	got, err := tbl.Read(ctx, "r1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("read record mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateRequiresKey(t *testing.T) {
	_, err := newTable(t).Create(context.Background(), api.Record{})
	if !errors.Is(err, api.ErrMissingKey) {
		t.Fatalf("got %v, want ErrMissingKey", err)
	}
	if api.KindOf(err) != api.KindValidation {
		t.Errorf("kind: got %v, want validation", api.KindOf(err))
	}
}

func TestReadMissing(t *testing.T) {
	_, err := newTable(t).Read(context.Background(), "nope")
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if api.KindOf(err) != api.KindNotFound {
		t.Errorf("kind: got %v, want not_found", api.KindOf(err))
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	tbl := newTable(t)

	if _, err := tbl.Create(ctx, api.Record{Key: "r1", Amount: api.Float(100)}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := tbl.Update(ctx, "r1", api.Fields{
		"pk":          "hijacked",
		"key":         "hijacked",
		"deleted_at":  "2024-01-01T00:00:00.000000",
		"created_at":  "1999-01-01T00:00:00.000000",
		"amount":      250.0,
		"description": "dinner",
		"category":    nil,
		"memo":        "shared",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if got.Key != "r1" {
		t.Errorf("key: got %q, want r1", got.Key)
	}
	if got.Deleted() {
		t.Error("update must not set deleted_at")
	}
	if got.CreatedAt != "2024-03-15T09:00:00.000000" {
		t.Errorf("created_at: got %q, want unchanged", got.CreatedAt)
	}
	if got.UpdatedAt != "2024-03-15T09:00:01.000000" {
		t.Errorf("updated_at: got %q, want refreshed", got.UpdatedAt)
	}
	if got.Amount == nil || *got.Amount != 250 {
		t.Errorf("amount: got %v, want 250", got.Amount)
	}
	if api.Deref(got.Description) != "dinner" {
		t.Errorf("description: got %q, want dinner", api.Deref(got.Description))
	}
	if got.Category != nil {
		t.Errorf("category: got %q, want absent", *got.Category)
	}
	if got.Extra["memo"] != "shared" {
		t.Errorf("memo: got %v, want shared", got.Extra["memo"])
	}

	if _, err := tbl.Read(ctx, "hijacked"); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("no record may exist under the injected key, got %v", err)
	}
}

func TestUpdateIgnoresNilPointers(t *testing.T) {
	ctx := context.Background()
	tbl := newTable(t)

	if _, err := tbl.Create(ctx, api.Record{
		Key:      "a",
		Category: api.String(api.CategoryFood),
		Amount:   api.Float(850),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var noMemo map[string]any
	got, err := tbl.Update(ctx, "a", api.Fields{
		"category":    api.String(""),
		"amount":      (*float64)(nil),
		"memo":        noMemo,
		"description": api.String("lunch"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if api.Deref(got.Category) != api.CategoryFood {
		t.Errorf("category: got %q, want unchanged %q", api.Deref(got.Category), api.CategoryFood)
	}
	if got.Amount == nil || *got.Amount != 850 {
		t.Errorf("amount: got %v, want unchanged 850", got.Amount)
	}
	if _, ok := got.Extra["memo"]; ok {
		t.Errorf("memo: got %v, want absent", got.Extra["memo"])
	}
	if api.Deref(got.Description) != "lunch" {
		t.Errorf("description: got %q, want lunch", api.Deref(got.Description))
	}
}

func TestUpdateMissing(t *testing.T) {
	_, err := newTable(t).Update(context.Background(), "nope", api.Fields{"amount": 1.0})
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSoftDelete(t *testing.T) {
	ctx := context.Background()
	tbl := newTable(t)

	for _, key := range []string{"a", "b"} {
		if _, err := tbl.Create(ctx, api.Record{Key: key, TransactionType: api.String(api.TypeExpense)}); err != nil {
			t.Fatalf("Create %s: %v", key, err)
		}
	}

	deleted, err := tbl.Delete(ctx, "a", true)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted.Deleted() {
		t.Fatal("soft delete must set deleted_at")
	}
	if deleted.UpdatedAt != *deleted.DeletedAt {
		t.Errorf("updated_at %q should match deleted_at %q", deleted.UpdatedAt, *deleted.DeletedAt)
	}

	active, err := tbl.List(ctx, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(active) != 1 || active[0].Key != "b" {
		t.Errorf("active list: got %v, want only b", keys(active))
	}

	all, err := tbl.List(ctx, true)
	if err != nil {
		t.Fatalf("List(include deleted): %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, keys(all)); diff != "" {
		t.Errorf("list with deleted (-want +got):\n%s", diff)
	}

	byType, err := tbl.QueryByField(ctx, api.AttrTransactionType, api.TypeExpense)
	if err != nil {
		t.Fatalf("QueryByField: %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, keys(byType)); diff != "" {
		t.Errorf("query must skip soft-deleted (-want +got):\n%s", diff)
	}

	// Still readable directly.
	if _, err := tbl.Read(ctx, "a"); err != nil {
		t.Errorf("Read soft-deleted: %v", err)
	}
}

func TestSoftDeleteMissing(t *testing.T) {
	_, err := newTable(t).Delete(context.Background(), "nope", true)
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestHardDelete(t *testing.T) {
	ctx := context.Background()
	tbl := newTable(t)

	if _, err := tbl.Create(ctx, api.Record{Key: "a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := tbl.Delete(ctx, "a", false)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if diff := cmp.Diff(api.Record{Key: "a"}, got); diff != "" {
		t.Errorf("hard delete result (-want +got):\n%s", diff)
	}

	if _, err := tbl.Read(ctx, "a"); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("Read after hard delete: got %v, want ErrNotFound", err)
	}
	all, _ := tbl.List(ctx, true)
	if len(all) != 0 {
		t.Errorf("list after hard delete: got %v, want empty", keys(all))
	}

	if _, err := tbl.Delete(ctx, "a", false); err != nil {
		t.Errorf("hard delete of missing key should be a no-op, got %v", err)
	}
}

func TestTablesAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	money := store.NewTable(backend, "money_table", "pk")
	line := store.NewTable(backend, "line_transaction_t", "lmn")

	if _, err := money.Create(ctx, api.Record{Key: "x"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := line.Read(ctx, "x"); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("line table read: got %v, want ErrNotFound", err)
	}
}

func keys(records []api.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Key)
	}
	return out
}
