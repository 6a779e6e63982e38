package export

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ArionMiles/kakeibo/pkg/api"
)

func TestRow(t *testing.T) {
	tests := []struct {
		name string
		in   api.Record
		want []string
	}{
		{
			name: "full",
			in: api.Record{
				Key:             "lmn_U1",
				CreatedAt:       "2024-03-15T09:00:00.000000",
				TransactionType: api.String(api.TypeExpense),
				Category:        api.String(api.CategoryFood),
				Amount:          api.Float(1234.5),
				Description:     api.String("ランチ"),
				SourceUserID:    api.String("U1"),
			},
			want: []string{"lmn_U1", "2024-03-15T09:00:00.000000", "支出", "食費", "1234.5", "ランチ", "U1"},
		},
		{
			name: "no amount",
			in:   api.Record{Key: "k"},
			want: []string{"k", "", "", "", "", "", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Row(&tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Row mismatch (-want +got):\n%s", diff)
			}
			if len(got) != len(Columns) {
				t.Errorf("row width: got %d, want %d", len(got), len(Columns))
			}
		})
	}
}

func TestFeed(t *testing.T) {
	records := []api.Record{{Key: "a"}, {Key: "b"}, {Key: "c"}}
	var keys []string
	for r := range Feed(context.Background(), records) {
		keys = append(keys, r.Key)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestFeedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := 0
	for range Feed(ctx, []api.Record{{Key: "a"}, {Key: "b"}}) {
		n++
	}
	if n > 2 {
		t.Errorf("received %d records", n)
	}
}
