package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Broker systems reported on events.
const (
	SystemRedis = "redis"
	SystemKafka = "kafka"
)

// Event represents a raw payload received from one subscription.
type Event struct {
	Topic         string
	Value         []byte
	Headers       map[string]string
	CorrelationID string
	ReceivedAt    time.Time

	// System is the broker the event came from. Partition and Offset are
	// set for Kafka only.
	System    string
	Partition int32
	Offset    int64
}

// Broker hands out subscription-capable connections.
type Broker interface {
	// Connect acquires a connection that can subscribe to one topic.
	Connect(ctx context.Context) (Conn, error)

	// Close releases resources shared by all connections.
	Close() error
}

// Conn is a connection able to subscribe to a single topic.
type Conn interface {
	// Subscribe subscribes to topic and returns its stream. On success the
	// stream owns the connection; on failure the caller must Close the Conn.
	Subscribe(ctx context.Context, topic string) (Stream, error)

	Close() error
}

// Stream yields the payloads published on one topic in arrival order.
// A stream is not restartable: once Next returns ErrClosed, subscribe again.
type Stream interface {
	// Next blocks until the next payload arrives. It returns ErrNoMessage
	// for an empty poll, a *MessageError when a single event could not be
	// extracted, ErrClosed when the stream has ended, and ctx.Err() when
	// ctx is done. Any other error is unrecoverable.
	Next(ctx context.Context) (Event, error)

	Close() error
}

var (
	// ErrClosed is returned by Next once the stream has terminated.
	ErrClosed = errors.New("stream closed")

	// ErrNoMessage is returned by Next when a poll produced nothing.
	ErrNoMessage = errors.New("no message")
)

// MessageError reports an event whose payload could not be extracted.
// It affects that event only; the stream remains usable.
type MessageError struct {
	Topic string
	Err   error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("extract payload from %s: %v", e.Topic, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }

// IsMessageError reports whether err is a per-event extraction failure.
func IsMessageError(err error) bool {
	var me *MessageError
	return errors.As(err, &me)
}

// Publisher sends a payload to a topic. It backs the test publishing tool;
// the relay itself never publishes.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
