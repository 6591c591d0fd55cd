// Package dlq republishes events the relay could not turn into a chat
// message, so they can be inspected or replayed by hand.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lsm/relay/internal/source"
)

// Letter describes one failed event.
type Letter struct {
	Channel       string
	Topic         string
	Outcome       string
	Err           error
	CorrelationID string
	Payload       []byte
}

// record is the published form. Payload is embedded as JSON when it is
// valid JSON and as a string otherwise.
type record struct {
	Channel       string          `json:"channel"`
	Topic         string          `json:"topic"`
	Outcome       string          `json:"outcome"`
	Error         string          `json:"error,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	FailedAt      time.Time       `json:"failedAt"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	RawPayload    string          `json:"rawPayload,omitempty"`
}

// Handler publishes letters to "<prefix><channel>". A nil *Handler drops
// everything.
type Handler struct {
	publisher source.Publisher
	prefix    string
	now       func() time.Time
}

// NewHandler creates a handler publishing through pub.
func NewHandler(pub source.Publisher, prefix string) *Handler {
	return &Handler{publisher: pub, prefix: prefix, now: time.Now}
}

// Topic returns the dead-letter topic for channel.
func (h *Handler) Topic(channel string) string {
	return h.prefix + channel
}

// Send publishes l.
func (h *Handler) Send(ctx context.Context, l Letter) error {
	if h == nil {
		return nil
	}
	rec := record{
		Channel:       l.Channel,
		Topic:         l.Topic,
		Outcome:       l.Outcome,
		CorrelationID: l.CorrelationID,
		FailedAt:      h.now().UTC(),
	}
	if l.Err != nil {
		rec.Error = l.Err.Error()
	}
	if json.Valid(l.Payload) {
		rec.Payload = json.RawMessage(l.Payload)
	} else {
		rec.RawPayload = string(l.Payload)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	topic := h.Topic(l.Channel)
	if err := h.publisher.Publish(ctx, topic, data); err != nil {
		return fmt.Errorf("dlq publish to %s: %w", topic, err)
	}
	return nil
}

// Close closes the underlying publisher.
func (h *Handler) Close() error {
	if h == nil {
		return nil
	}
	return h.publisher.Close()
}
