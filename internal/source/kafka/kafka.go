// Package kafka adapts Kafka topics to the relay's broker capability.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lsm/relay/internal/correlation"
	"github.com/lsm/relay/internal/kafka"
	"github.com/lsm/relay/internal/source"
)

// Config configures the Kafka broker.
type Config struct {
	Cluster kafka.Cluster

	// ConsumerGroup is optional. Without it every relay process reads every
	// partition directly, which matches pub/sub fan-out semantics.
	ConsumerGroup string
}

// consumer abstracts the kgo client methods used by stream for testing.
type consumer interface {
	Ping(ctx context.Context) error
	PollFetches(ctx context.Context) kgo.Fetches
	Close()
}

// Broker opens one Kafka client per subscription.
type Broker struct {
	cfg    Config
	opts   []kgo.Opt
	logger *slog.Logger

	newClient func(opts ...kgo.Opt) (consumer, error)
}

var _ source.Broker = (*Broker)(nil)

// NewBroker validates cfg and returns a broker.
func NewBroker(cfg Config, logger *slog.Logger) (*Broker, error) {
	opts, err := cfg.Cluster.Options()
	if err != nil {
		return nil, fmt.Errorf("kafka cluster: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		newClient: func(opts ...kgo.Opt) (consumer, error) {
			return kgo.NewClient(opts...)
		},
	}, nil
}

// Connect returns a connection bound to the cluster. No network I/O happens
// until Subscribe, since a franz-go client is tied to its topics.
func (b *Broker) Connect(ctx context.Context) (source.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &conn{broker: b}, nil
}

// Close is a no-op; each stream owns its client.
func (b *Broker) Close() error { return nil }

type conn struct {
	broker *Broker
}

func (c *conn) Subscribe(ctx context.Context, topic string) (source.Stream, error) {
	opts := append([]kgo.Opt{}, c.broker.opts...)
	opts = append(opts,
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if g := c.broker.cfg.ConsumerGroup; g != "" {
		opts = append(opts, kgo.ConsumerGroup(g))
	}

	client, err := c.broker.newClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping kafka cluster: %w", err)
	}

	c.broker.logger.Info("kafka subscription established", "topic", topic)
	return &stream{client: client, topic: topic}, nil
}

func (c *conn) Close() error { return nil }

type stream struct {
	client  consumer
	topic   string
	pending []*kgo.Record
	now     func() time.Time
}

func (s *stream) Next(ctx context.Context) (source.Event, error) {
	if len(s.pending) > 0 {
		rec := s.pending[0]
		s.pending = s.pending[1:]
		return s.event(rec), nil
	}

	fetches := s.client.PollFetches(ctx)
	if err := ctx.Err(); err != nil {
		return source.Event{}, err
	}
	if fetches.IsClientClosed() {
		return source.Event{}, source.ErrClosed
	}

	var errs []error
	fetches.EachError(func(_ string, partition int32, err error) {
		errs = append(errs, fmt.Errorf("partition %d: %w", partition, err))
	})
	s.pending = append(s.pending, fetches.Records()...)

	if len(errs) > 0 {
		return source.Event{}, &source.MessageError{Topic: s.topic, Err: errors.Join(errs...)}
	}
	if len(s.pending) == 0 {
		return source.Event{}, source.ErrNoMessage
	}
	rec := s.pending[0]
	s.pending = s.pending[1:]
	return s.event(rec), nil
}

func (s *stream) event(rec *kgo.Record) source.Event {
	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	received := time.Now()
	if s.now != nil {
		received = s.now()
	}
	return source.Event{
		Topic:         rec.Topic,
		Value:         rec.Value,
		Headers:       headers,
		CorrelationID: correlation.ExtractOrGenerate(headers).Value,
		ReceivedAt:    received,
		System:        source.SystemKafka,
		Partition:     rec.Partition,
		Offset:        rec.Offset,
	}
}

func (s *stream) Close() error {
	s.client.Close()
	return nil
}
