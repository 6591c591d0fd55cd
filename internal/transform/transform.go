// Package transform defines how a raw broker payload becomes a chat message.
package transform

import "github.com/lsm/relay/internal/chat"

// Transformer maps a raw payload to an optional chat message.
//
// Implementations must be pure: no I/O, no blocking and no mutable state
// shared between calls, so one instance can serve concurrent workers.
// A nil message with a nil error means "nothing to deliver". A non-nil error
// is a per-event failure; the caller logs it and moves on.
type Transformer interface {
	Transform(payload []byte) (*chat.Message, error)
}

// Func adapts an ordinary function to a Transformer.
type Func func(payload []byte) (*chat.Message, error)

// Transform calls f(payload).
func (f Func) Transform(payload []byte) (*chat.Message, error) {
	return f(payload)
}

// Noop never produces a message. It backs channels whose payload handling
// has not been written yet.
var Noop Transformer = Func(func([]byte) (*chat.Message, error) { return nil, nil })
