// Package ingest turns LINE webhook payloads into stored transaction records.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ArionMiles/kakeibo/pkg/api"
	"github.com/ArionMiles/kakeibo/pkg/logging"
	"github.com/ArionMiles/kakeibo/pkg/parser"
)

// RecordWriter persists one record. *store.Table satisfies it.
type RecordWriter interface {
	Create(ctx context.Context, r api.Record) (api.Record, error)
}

// Service processes webhook payloads.
type Service struct {
	records RecordWriter
	parser  *parser.Parser
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used to build record keys.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates an ingestion service writing through records.
// A nil parser selects the built-in keywords.
func New(records RecordWriter, p *parser.Parser, logger *slog.Logger, opts ...Option) *Service {
	if p == nil {
		p = parser.New(parser.DefaultKeywords())
	}
	s := &Service{
		records: records,
		parser:  p,
		now:     time.Now,
		logger:  logging.OrDefault(logger).With("component", "ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process parses and stores every text message event in payload and returns
// how many records were written. A failed write is logged and skipped; only
// context cancellation stops the batch early.
func (s *Service) Process(ctx context.Context, payload *Payload) (int, error) {
	processed := 0
	used := make(map[string]bool)

	for i, ev := range payload.Events {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		if ev.Type != "message" || ev.Message == nil || ev.Message.Type != "text" {
			continue
		}
		userID := ev.Source.UserID
		text := ev.Message.Text
		if userID == "" || text == "" {
			continue
		}

		parsed := s.parser.Parse(text)

		// Keys have microsecond resolution; bump on collision within a batch.
		at := s.now()
		key := RecordKey(userID, at)
		for used[key] {
			at = at.Add(time.Microsecond)
			key = RecordKey(userID, at)
		}
		used[key] = true

		record := api.Record{
			Key:             key,
			TransactionType: api.String(parsed.TransactionType),
			Category:        api.String(parsed.Category),
			Description:     api.String(parsed.Description),
			Amount:          parsed.Amount,
			SourceUserID:    api.String(userID),
			SourceMessage:   api.String(text),
		}
		if ev.Message.ID != "" {
			record.Extra = map[string]any{"line_message_id": ev.Message.ID}
		}

		if _, err := s.records.Create(ctx, record); err != nil {
			s.logger.Error("failed to store message",
				"event", i,
				"user_id", userID,
				"error", err,
			)
			continue
		}

		processed++
		s.logger.Info("message processed",
			"key", key,
			"user_id", userID,
			"transaction_type", parsed.TransactionType,
			"category", parsed.Category,
		)
	}

	return processed, nil
}

// RecordKey builds the ingestion record key lmn_<userID>_<YYYYMMDD_HHMMSS_ffffff>.
func RecordKey(userID string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("lmn_%s_%s_%06d", userID, at.Format("20060102_150405"), at.Nanosecond()/1000)
}

// Response is the HTTP-shaped outcome of a webhook call.
type Response struct {
	StatusCode int          `json:"-"`
	Body       ResponseBody `json:"body"`
}

// ResponseBody is serialized as the HTTP response body.
type ResponseBody struct {
	Message        string `json:"message,omitempty"`
	ProcessedCount *int   `json:"processed_count,omitempty"`
	Error          string `json:"error,omitempty"`
	Details        string `json:"details,omitempty"`
}

// HandleWebhook decodes, validates and processes a raw webhook body.
// It never panics: internal failures become a 500 response.
func (s *Service) HandleWebhook(ctx context.Context, body []byte) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while handling webhook", "panic", r)
			resp = Response{
				StatusCode: http.StatusInternalServerError,
				Body:       ResponseBody{Error: "Internal server error", Details: fmt.Sprint(r)},
			}
		}
	}()

	payload, err := Decode(body)
	if err == nil {
		err = Validate(payload)
	}
	if err != nil {
		s.logger.Warn("invalid LINE webhook data", "error", err)
		return Response{
			StatusCode: http.StatusBadRequest,
			Body:       ResponseBody{Error: "Invalid LINE webhook data"},
		}
	}

	if payload.Skipped > 0 {
		s.logger.Warn("skipped malformed events", "count", payload.Skipped)
	}

	count, err := s.Process(ctx, payload)
	if err != nil {
		s.logger.Error("failed to process messages", "error", err, "processed", count)
		return Response{
			StatusCode: http.StatusInternalServerError,
			Body:       ResponseBody{Error: "Failed to process messages", Details: err.Error()},
		}
	}

	return Response{
		StatusCode: http.StatusOK,
		Body:       ResponseBody{Message: "Messages processed successfully", ProcessedCount: &count},
	}
}
