// Package redis adapts Redis pub/sub channels to the relay's broker
// capability.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"github.com/lsm/relay/internal/correlation"
	"github.com/lsm/relay/internal/source"
)

// Broker shares one go-redis client between all subscriptions. Every PubSub
// holds a dedicated connection taken from the client's pool.
type Broker struct {
	client *redis.Client
	logger *slog.Logger
}

var _ source.Broker = (*Broker)(nil)

// NewBroker parses a redis:// or rediss:// URL. It does not dial.
func NewBroker(url string, logger *slog.Logger) (*Broker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewBrokerFromClient(redis.NewClient(opts), logger), nil
}

// NewBrokerFromClient wraps an existing client. Close closes it.
func NewBrokerFromClient(client *redis.Client, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{client: client, logger: logger}
}

// Connect checks the server is reachable.
func (b *Broker) Connect(ctx context.Context) (source.Conn, error) {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &conn{client: b.client, logger: b.logger}, nil
}

func (b *Broker) Close() error {
	return b.client.Close()
}

type conn struct {
	client *redis.Client
	logger *slog.Logger
}

// Subscribe subscribes to topic and waits for the server's confirmation.
func (c *conn) Subscribe(ctx context.Context, topic string) (source.Stream, error) {
	ps := c.client.Subscribe(ctx)
	if err := ps.Subscribe(ctx, topic); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	reply, err := ps.Receive(ctx)
	if err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("confirm subscription to %s: %w", topic, err)
	}
	if sub, ok := reply.(*redis.Subscription); !ok || sub.Channel != topic {
		_ = ps.Close()
		return nil, fmt.Errorf("unexpected reply to subscribe %s: %v", topic, reply)
	}

	// ReceiveMessage only honours deadlines, so closing the PubSub is what
	// unblocks a pending read once ctx is done.
	stop := context.AfterFunc(ctx, func() { _ = ps.Close() })

	c.logger.Info("redis subscription established", "topic", topic)
	return &stream{ps: ps, topic: topic, stop: stop}, nil
}

// Close is a no-op; the shared client is closed by the Broker.
func (c *conn) Close() error { return nil }

type stream struct {
	ps    *redis.PubSub
	topic string
	stop  func() bool
}

func (s *stream) Next(ctx context.Context) (source.Event, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return source.Event{}, ctxErr
		}
		if errors.Is(err, redis.ErrClosed) {
			return source.Event{}, source.ErrClosed
		}
		return source.Event{}, fmt.Errorf("receive from %s: %w", s.topic, err)
	}

	if !utf8.ValidString(msg.Payload) {
		return source.Event{}, &source.MessageError{Topic: s.topic, Err: errors.New("payload is not valid UTF-8")}
	}

	return source.Event{
		Topic:         msg.Channel,
		Value:         []byte(msg.Payload),
		CorrelationID: correlation.Generate().Value,
		ReceivedAt:    time.Now(),
		System:        source.SystemRedis,
	}, nil
}

func (s *stream) Close() error {
	s.stop()
	return s.ps.Close()
}
