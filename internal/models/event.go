package models

import (
	"encoding/json"
	"time"
)

// EventSource identifies the origin system of a webhook event.
type EventSource string

const (
	SourceGitHub EventSource = "github"
	SourceTrello EventSource = "trello"
)

// WebhookEvent is an immutable fact recorded at ingestion. The payload is
// carried opaquely; the core never transforms it.
type WebhookEvent struct {
	Source     EventSource     `json:"source"`
	EventType  string          `json:"event_type"`
	EventID    string          `json:"event_id"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
	Signature  string          `json:"signature,omitempty"`
}

// NewWebhookEvent creates an event stamped with the current time.
func NewWebhookEvent(source EventSource, eventType, eventID string, payload json.RawMessage) WebhookEvent {
	return WebhookEvent{
		Source:     source,
		EventType:  eventType,
		EventID:    eventID,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
}
