package broker

import (
	"context"
	"time"
)

// RawEvent is the wire shape produced by platform bridges: an untyped SMS or
// notification before normalization. Type selects which fields are meaningful.
type RawEvent struct {
	Type        string                 `json:"type"`
	Body        string                 `json:"body,omitempty"`
	Sender      string                 `json:"sender,omitempty"`
	PackageName string                 `json:"package_name,omitempty"`
	AppLabel    string                 `json:"app_label,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Text        string                 `json:"text,omitempty"`
	Extras      map[string]interface{} `json:"extras,omitempty"`
	Timestamp   time.Time              `json:"timestamp,omitempty"`
}

const (
	RawTypeSMS          = "sms"
	RawTypeNotification = "notification"
)

// OutcomeEvent summarizes one processed event for downstream consumers.
type OutcomeEvent struct {
	EventID    string    `json:"event_id"`
	SourceType string    `json:"source_type"`
	Matched    int       `json:"matched"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Timestamp  time.Time `json:"timestamp"`
}

type Producer interface {
	Publish(ctx context.Context, topic string, msg OutcomeEvent) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
}

type HandlerFunc func(ctx context.Context, raw RawEvent) error
