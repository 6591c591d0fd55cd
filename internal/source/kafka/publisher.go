package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lsm/relay/internal/correlation"
	"github.com/lsm/relay/internal/kafka"
	"github.com/lsm/relay/internal/source"
)

// producer abstracts the kgo client methods used by Publisher for testing.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher produces test payloads to Kafka topics.
type Publisher struct {
	client producer
}

var _ source.Publisher = (*Publisher)(nil)

// NewPublisher connects a producer to cluster.
func NewPublisher(cluster kafka.Cluster) (*Publisher, error) {
	opts, err := cluster.Options()
	if err != nil {
		return nil, fmt.Errorf("kafka cluster: %w", err)
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &Publisher{client: client}, nil
}

// Publish sends payload to topic, stamping a fresh correlation header.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	rec := &kgo.Record{
		Topic: topic,
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: correlation.HeaderCorrelationID, Value: []byte(correlation.Generate().Value)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.client.Close()
	return nil
}
