package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lsm/relay/internal/source"
)

// Publisher publishes test payloads with PUBLISH.
type Publisher struct {
	client *redis.Client
}

var _ source.Publisher = (*Publisher)(nil)

// NewPublisher parses url and returns a publisher. It does not dial.
func NewPublisher(url string) (*Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Publisher{client: redis.NewClient(opts)}, nil
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := p.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
