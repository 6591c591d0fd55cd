// Package asay relays admin-chat lines published by the game server.
package asay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lsm/relay/internal/chat"
)

// LoopSource is the source value of lines that originated on the chat
// platform itself. They are never relayed back.
const LoopSource = "discord"

// AccentColor is the embed color of relayed lines.
var AccentColor = chat.RGB(124, 68, 12)

// Payload is the JSON record published on the asay topic.
type Payload struct {
	Source  string `json:"source"`
	RoundID string `json:"round_id"`
	Author  string `json:"author"`
	Message string `json:"message"`
	Admin   uint8  `json:"admin"`
	Rank    string `json:"rank"`
}

// Decode parses and validates a raw payload. Field names match exactly,
// unknown fields are ignored, and a repeated known field is an error.
func Decode(data []byte) (Payload, error) {
	fields, repeated, err := objectFields(data)
	if err != nil {
		return Payload{}, fmt.Errorf("decode asay payload: %w", err)
	}

	var p Payload
	var errs []error
	for _, f := range []struct {
		name     string
		dst      any
		required bool
	}{
		{"source", &p.Source, true},
		{"round_id", &p.RoundID, false},
		{"author", &p.Author, true},
		{"message", &p.Message, true},
		{"admin", &p.Admin, false},
		{"rank", &p.Rank, true},
	} {
		if repeated[f.name] {
			errs = append(errs, fmt.Errorf("duplicate field %q", f.name))
			continue
		}
		raw, ok := fields[f.name]
		if !ok {
			if f.required {
				errs = append(errs, fmt.Errorf("missing field %q", f.name))
			}
			continue
		}
		if bytes.Equal(raw, []byte("null")) {
			errs = append(errs, fmt.Errorf("field %q: null", f.name))
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", f.name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Payload{}, fmt.Errorf("decode asay payload: %w", err)
	}
	return p, nil
}

// objectFields splits a JSON object into its members, keyed by exact name,
// and reports the names that appear more than once.
func objectFields(data []byte) (fields map[string]json.RawMessage, repeated map[string]bool, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected an object, got %v", tok)
	}

	fields = make(map[string]json.RawMessage)
	repeated = make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", key, err)
		}
		if _, seen := fields[key]; seen {
			repeated[key] = true
		}
		fields[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	if dec.More() {
		return nil, nil, errors.New("trailing data after object")
	}
	return fields, repeated, nil
}

// Transformer turns asay payloads into chat messages.
type Transformer struct {
	now func() time.Time
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithClock sets the clock used to timestamp messages.
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// New creates an asay Transformer.
func New(opts ...Option) *Transformer {
	t := &Transformer{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transform implements transform.Transformer.
func (t *Transformer) Transform(data []byte) (*chat.Message, error) {
	p, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if p.Source == LoopSource {
		return nil, nil
	}
	return &chat.Message{
		Title:     p.Author,
		Body:      p.Message,
		Footer:    p.Rank + "@" + p.Source,
		Timestamp: t.now(),
		Color:     AccentColor,
	}, nil
}
