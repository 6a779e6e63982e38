package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/logging"
	"github.com/ArionMiles/kakeibo/pkg/store"
	"github.com/ArionMiles/kakeibo/pkg/store/memory"
)

var fixed = time.Date(2024, 3, 15, 12, 30, 45, 123456000, time.UTC)

func fixedClock() time.Time { return fixed }

func newService(t *testing.T) (*Service, *store.Table) {
	t.Helper()
	tbl := store.NewTable(memory.New(), "line_transaction_t", "lmn", store.WithLogger(logging.Discard()))
	return New(tbl, nil, logging.Discard(), WithClock(fixedClock)), tbl
}

func textEvent(user, text string) Event {
	return Event{
		Type:    "message",
		Source:  Source{Type: "user", UserID: user},
		Message: &Message{ID: "m-" + user, Type: "text", Text: text},
	}
}

func TestRecordKey(t *testing.T) {
	got := RecordKey("U123", fixed)
	want := "lmn_U123_20240315_123045_123456"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecodeSkipsMalformedLaterEvents(t *testing.T) {
	body := `{"events":[
		{"type":"message","source":{"userId":"U1"},"message":{"type":"text","text":"昼食 850円"}},
		{"type":"message","source":{"userId":123}},
		"not an event",
		{"type":"message","source":{"userId":"U2"},"message":{"type":"text","text":"電車 210円"}}
	]}`

	p, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(p.Events) != 2 || p.Skipped != 2 {
		t.Fatalf("events: got %d (skipped %d), want 2 (skipped 2)", len(p.Events), p.Skipped)
	}
	if p.Events[1].Source.UserID != "U2" {
		t.Errorf("second event user: got %q, want U2", p.Events[1].Source.UserID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload *Payload
		wantErr bool
	}{
		{"nil", nil, true},
		{"no events", &Payload{}, true},
		{"first not message", &Payload{Events: []Event{{Type: "follow"}, textEvent("U", "x")}}, true},
		{"first without message", &Payload{Events: []Event{{Type: "message"}}}, true},
		{"valid", &Payload{Events: []Event{textEvent("U", "昼食 850円")}}, false},
		{"valid with non-text first", &Payload{Events: []Event{{Type: "message", Message: &Message{Type: "sticker"}}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("got %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, api.ErrInvalidPayload) {
					t.Errorf("error %v should wrap ErrInvalidPayload", err)
				}
				if api.KindOf(err) != api.KindValidation {
					t.Errorf("kind: got %v, want validation", api.KindOf(err))
				}
			}
		})
	}
}

func TestProcess(t *testing.T) {
	svc, tbl := newService(t)
	ctx := context.Background()

	payload := &Payload{Events: []Event{
		textEvent("U1", "昼食 850円"),
		{Type: "message", Source: Source{UserID: "U1"}, Message: &Message{Type: "sticker"}},
		{Type: "follow", Source: Source{UserID: "U1"}},
		textEvent("", "no user"),
		textEvent("U2", ""),
		textEvent("U2", "給与 300000円"),
	}}

	n, err := svc.Process(ctx, payload)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n != 2 {
		t.Fatalf("processed: got %d, want 2", n)
	}

	lunch, err := tbl.Read(ctx, "lmn_U1_20240315_123045_123456")
	if err != nil {
		t.Fatalf("Read lunch: %v", err)
	}
	if api.Deref(lunch.TransactionType) != api.TypeExpense || api.Deref(lunch.Category) != api.CategoryFood {
		t.Errorf("lunch classification: %s/%s", api.Deref(lunch.TransactionType), api.Deref(lunch.Category))
	}
	if lunch.Amount == nil || *lunch.Amount != 850 {
		t.Errorf("lunch amount: got %v, want 850", lunch.Amount)
	}
	if api.Deref(lunch.SourceUserID) != "U1" || api.Deref(lunch.SourceMessage) != "昼食 850円" {
		t.Errorf("lunch source: %q %q", api.Deref(lunch.SourceUserID), api.Deref(lunch.SourceMessage))
	}
	if lunch.Extra["line_message_id"] != "m-U1" {
		t.Errorf("message id: got %v", lunch.Extra["line_message_id"])
	}
	if lunch.Deleted() {
		t.Error("new record must not carry deleted_at")
	}

	salary, err := tbl.Read(ctx, "lmn_U2_20240315_123045_123456")
	if err != nil {
		t.Fatalf("Read salary: %v", err)
	}
	if api.Deref(salary.Category) != api.CategorySalary {
		t.Errorf("salary category: got %q", api.Deref(salary.Category))
	}
}

func TestProcessNoAmountOmitsAttribute(t *testing.T) {
	svc, tbl := newService(t)
	ctx := context.Background()

	if _, err := svc.Process(ctx, &Payload{Events: []Event{textEvent("U1", "no digits here")}}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	r, err := tbl.Read(ctx, "lmn_U1_20240315_123045_123456")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Amount != nil {
		t.Errorf("amount: got %v, want absent", *r.Amount)
	}
	if api.Deref(r.Category) != api.CategoryOther {
		t.Errorf("category: got %q, want %q", api.Deref(r.Category), api.CategoryOther)
	}
}

func TestProcessSameUserSameInstant(t *testing.T) {
	svc, tbl := newService(t)
	ctx := context.Background()

	n, err := svc.Process(ctx, &Payload{Events: []Event{
		textEvent("U1", "昼食 850円"),
		textEvent("U1", "夕食 1200円"),
	}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n != 2 {
		t.Fatalf("processed: got %d, want 2", n)
	}

	all, _ := tbl.List(ctx, true)
	if len(all) != 2 {
		t.Fatalf("records: got %d, want 2", len(all))
	}
	if all[1].Key != "lmn_U1_20240315_123045_123457" {
		t.Errorf("second key: got %q", all[1].Key)
	}
}

// flakyWriter fails the nth Create call (1-based).
type flakyWriter struct {
	failOn int
	calls  int
	stored []api.Record
}

func (w *flakyWriter) Create(_ context.Context, r api.Record) (api.Record, error) {
	w.calls++
	if w.calls == w.failOn {
		return api.Record{}, api.E(api.KindStorage, "create", errors.New("throttled"))
	}
	w.stored = append(w.stored, r)
	return r, nil
}

func TestProcessIsolatesFailures(t *testing.T) {
	w := &flakyWriter{failOn: 2}
	svc := New(w, nil, logging.Discard(), WithClock(fixedClock))

	n, err := svc.Process(context.Background(), &Payload{Events: []Event{
		textEvent("U1", "昼食 850円"),
		textEvent("U2", "電車 210円"),
		textEvent("U3", "映画 1800円"),
	}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if n != 2 {
		t.Errorf("processed: got %d, want 2", n)
	}
	if w.calls != 3 {
		t.Errorf("write attempts: got %d, want 3", w.calls)
	}
	if len(w.stored) != 2 || api.Deref(w.stored[1].SourceUserID) != "U3" {
		t.Errorf("stored: %+v", w.stored)
	}
}

func TestProcessStopsOnCanceledContext(t *testing.T) {
	svc, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := svc.Process(ctx, &Payload{Events: []Event{textEvent("U1", "昼食 850円")}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
	}
	if n != 0 {
		t.Errorf("processed: got %d, want 0", n)
	}
}

func TestHandleWebhook(t *testing.T) {
	valid := `{"destination":"x","events":[{"type":"message","replyToken":"r","source":{"type":"user","userId":"U1"},"message":{"id":"1","type":"text","text":"昼食 850円"}}]}`
	wrapped, _ := json.Marshal(map[string]string{"body": valid})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCount  int
		wantError  string
	}{
		{"valid", valid, http.StatusOK, 1, ""},
		{"gateway envelope string", string(wrapped), http.StatusOK, 1, ""},
		{"gateway envelope object", `{"body":` + valid + `}`, http.StatusOK, 1, ""},
		{"empty events", `{"events":[]}`, http.StatusBadRequest, 0, "Invalid LINE webhook data"},
		{"missing events", `{}`, http.StatusBadRequest, 0, "Invalid LINE webhook data"},
		{"first event not message", `{"events":[{"type":"follow"}]}`, http.StatusBadRequest, 0, "Invalid LINE webhook data"},
		{"events not a list", `{"events":"nope"}`, http.StatusBadRequest, 0, "Invalid LINE webhook data"},
		{"malformed json", `{"events":`, http.StatusBadRequest, 0, "Invalid LINE webhook data"},
		{"first event ill-typed", `{"events":[{"type":"message","source":{"userId":123},"message":{"type":"text","text":"昼食 850円"}}]}`, http.StatusBadRequest, 0, "Invalid LINE webhook data"},
		{"later event ill-typed", `{"events":[{"type":"message","source":{"userId":"U1"},"message":{"type":"text","text":"昼食 850円"}},{"type":"message","source":{"userId":123},"message":{"type":"text","text":"電車 210円"}}]}`, http.StatusOK, 1, ""},
		{"non-text only", `{"events":[{"type":"message","source":{"userId":"U1"},"message":{"type":"image"}}]}`, http.StatusOK, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)
			resp := svc.HandleWebhook(context.Background(), []byte(tt.body))

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status: got %d, want %d (body %+v)", resp.StatusCode, tt.wantStatus, resp.Body)
			}
			if resp.Body.Error != tt.wantError {
				t.Errorf("error: got %q, want %q", resp.Body.Error, tt.wantError)
			}
			if tt.wantStatus == http.StatusOK {
				if resp.Body.ProcessedCount == nil || *resp.Body.ProcessedCount != tt.wantCount {
					t.Errorf("processed_count: got %v, want %d", resp.Body.ProcessedCount, tt.wantCount)
				}
				if resp.Body.Message != "Messages processed successfully" {
					t.Errorf("message: got %q", resp.Body.Message)
				}
			}
		})
	}
}

type panickingWriter struct{}

func (panickingWriter) Create(context.Context, api.Record) (api.Record, error) {
	panic("boom")
}

func TestHandleWebhookRecoversPanic(t *testing.T) {
	svc := New(panickingWriter{}, nil, logging.Discard())
	body := `{"events":[{"type":"message","source":{"userId":"U1"},"message":{"type":"text","text":"昼食 850円"}}]}`

	resp := svc.HandleWebhook(context.Background(), []byte(body))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", resp.StatusCode)
	}
	if resp.Body.Error != "Internal server error" || !strings.Contains(resp.Body.Details, "boom") {
		t.Errorf("body: %+v", resp.Body)
	}
}
