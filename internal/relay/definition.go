// Package relay runs one worker per configured channel: each subscribes to a
// broker topic, transforms every payload and delivers the result to a chat
// destination, independently of the others.
package relay

import (
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lsm/relay/internal/dlq"
	"github.com/lsm/relay/internal/observability"
	"github.com/lsm/relay/internal/transform"
)

// ChannelDefinition binds a topic to a destination and a transform.
type ChannelDefinition struct {
	Name        string
	Topic       string
	Destination string
	Transform   transform.Transformer
}

// label is the name used in logs, metrics and status.
func (d ChannelDefinition) label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Topic
}

// runnable reports why d cannot be started, if it cannot.
func (d ChannelDefinition) runnable() error {
	var errs []error
	if d.Topic == "" {
		errs = append(errs, errors.New("topic is empty"))
	}
	if d.Destination == "" {
		errs = append(errs, errors.New("destination is empty"))
	}
	if d.Transform == nil {
		errs = append(errs, errors.New("transform is nil"))
	}
	return errors.Join(errs...)
}

// Option configures workers and the supervisor.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      trace.Tracer
	observer    func(Status)
	deadLetters *dlq.Handler
	now         func() time.Time
}

func newOptions(opts []Option) options {
	o := options{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("relay"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records events and terminations. nil disables metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithStateObserver is called with a copy of the status on every change.
// It runs on the worker's goroutine and must not block.
func WithStateObserver(fn func(Status)) Option {
	return func(o *options) { o.observer = fn }
}

// WithDeadLetters republishes events whose transform or delivery failed.
func WithDeadLetters(h *dlq.Handler) Option {
	return func(o *options) { o.deadLetters = h }
}
