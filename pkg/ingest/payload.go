package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ArionMiles/kakeibo/pkg/api"
)

// Payload is the subset of the LINE webhook body that ingestion reads.
type Payload struct {
	Destination string  `json:"destination,omitempty"`
	Events      []Event `json:"events"`

	// Skipped counts events after the first that could not be decoded.
	Skipped int `json:"-"`
}

// Event is one webhook event.
type Event struct {
	Type       string   `json:"type"`
	Timestamp  int64    `json:"timestamp,omitempty"`
	ReplyToken string   `json:"replyToken,omitempty"`
	Source     Source   `json:"source"`
	Message    *Message `json:"message,omitempty"`
}

// Source identifies the sender of an event.
type Source struct {
	Type   string `json:"type,omitempty"`
	UserID string `json:"userId"`
}

// Message is the message object of a message event.
type Message struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Validate checks the webhook shape: a non-empty event list whose first
// event is a message event carrying a message object.
func Validate(p *Payload) error {
	if p == nil || len(p.Events) == 0 {
		return api.E(api.KindValidation, "ingest.validate", fmt.Errorf("no events: %w", api.ErrInvalidPayload))
	}
	first := p.Events[0]
	if first.Type != "message" {
		return api.E(api.KindValidation, "ingest.validate",
			fmt.Errorf("first event type %q: %w", first.Type, api.ErrInvalidPayload))
	}
	if first.Message == nil {
		return api.E(api.KindValidation, "ingest.validate",
			fmt.Errorf("first event has no message: %w", api.ErrInvalidPayload))
	}
	return nil
}

// Decode parses a webhook body. Bodies wrapped in a gateway envelope
// ({"body": "<json string>"} or {"body": {...}}) are unwrapped first.
// Only the first event must decode; later malformed events are dropped and
// counted in Skipped.
func Decode(body []byte) (*Payload, error) {
	var envelope struct {
		Body   json.RawMessage `json:"body"`
		Events json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, api.E(api.KindValidation, "ingest.decode", fmt.Errorf("%w: %v", api.ErrInvalidPayload, err))
	}

	inner := body
	if len(envelope.Events) == 0 && len(envelope.Body) > 0 {
		inner = envelope.Body
		var s string
		if bytes.HasPrefix(bytes.TrimSpace(inner), []byte(`"`)) {
			if err := json.Unmarshal(inner, &s); err != nil {
				return nil, api.E(api.KindValidation, "ingest.decode", fmt.Errorf("%w: %v", api.ErrInvalidPayload, err))
			}
			inner = []byte(s)
		}
	}

	var raw struct {
		Destination string            `json:"destination,omitempty"`
		Events      []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(inner, &raw); err != nil {
		return nil, api.E(api.KindValidation, "ingest.decode", fmt.Errorf("%w: %v", api.ErrInvalidPayload, err))
	}

	p := &Payload{Destination: raw.Destination, Events: make([]Event, 0, len(raw.Events))}
	for i, data := range raw.Events {
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			if i == 0 {
				return nil, api.E(api.KindValidation, "ingest.decode",
					fmt.Errorf("first event: %w: %v", api.ErrInvalidPayload, err))
			}
			p.Skipped++
			continue
		}
		p.Events = append(p.Events, ev)
	}
	return p, nil
}
