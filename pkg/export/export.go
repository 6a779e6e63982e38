// Package export holds the row layout shared by the record exporters.
package export

import (
	"context"
	"strconv"

	"github.com/ArionMiles/kakeibo/pkg/api"
)

// Columns is the header row written by tabular exporters.
var Columns = []string{
	"Key", "Created At", "Type", "Category", "Amount", "Description", "LINE User",
}

// Row flattens r in Columns order. A missing amount is an empty cell.
func Row(r *api.Record) []string {
	amount := ""
	if r.Amount != nil {
		amount = strconv.FormatFloat(*r.Amount, 'f', -1, 64)
	}
	return []string{
		r.Key,
		r.CreatedAt,
		api.Deref(r.TransactionType),
		api.Deref(r.Category),
		amount,
		api.Deref(r.Description),
		api.Deref(r.SourceUserID),
	}
}

// Feed sends records on a new channel and closes it when done or when ctx
// is canceled.
func Feed(ctx context.Context, records []api.Record) <-chan *api.Record {
	out := make(chan *api.Record)
	go func() {
		defer close(out)
		for i := range records {
			select {
			case out <- &records[i]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
