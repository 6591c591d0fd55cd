package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/relay/internal/chat"
	"github.com/lsm/relay/internal/correlation"
	"github.com/lsm/relay/internal/dlq"
	"github.com/lsm/relay/internal/observability"
	"github.com/lsm/relay/internal/sink"
	"github.com/lsm/relay/internal/source"
	"github.com/lsm/relay/internal/tracing"
)

// Worker owns one channel's subscription for the life of the process.
type Worker struct {
	def    ChannelDefinition
	broker source.Broker
	sink   sink.Sink
	opts   options
	logger *slog.Logger
	status Status
}

// NewWorker returns a worker for def. It does nothing until Run.
func NewWorker(def ChannelDefinition, broker source.Broker, sk sink.Sink, opts ...Option) *Worker {
	o := newOptions(opts)
	return &Worker{
		def:    def,
		broker: broker,
		sink:   sk,
		opts:   o,
		logger: o.logger.With("channel", def.label(), "topic", def.Topic),
		status: Status{Channel: def.label(), Topic: def.Topic},
	}
}

// Run subscribes and relays events until setup fails, the stream ends or ctx
// is done. It never returns early for a single bad event, and it recovers a
// panic raised while handling one.
func (w *Worker) Run(ctx context.Context) (term Termination) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker panicked", "panic", r, "stack", string(debug.Stack()))
			term = Termination{Reason: ReasonPanicked, Err: fmt.Errorf("panic: %v", r)}
		}
		w.finish(term)
	}()

	w.setState(StateStarting)

	dest, err := chat.ParseDestinationID(w.def.Destination)
	if err != nil {
		return Termination{Reason: ReasonInvalidDestination, Err: err}
	}

	conn, err := w.broker.Connect(ctx)
	if err != nil {
		return w.setupFailure(ctx, ReasonConnectFailed, err)
	}

	stream, err := conn.Subscribe(ctx, w.def.Topic)
	if err != nil {
		_ = conn.Close()
		return w.setupFailure(ctx, ReasonSubscribeFailed, err)
	}
	defer func() { _ = stream.Close() }()

	w.setState(StateSubscribed)
	w.logger.Info("subscribed", "destination", dest.String())

	w.setState(StateListening)
	w.opts.metrics.SetListening(w.status.Channel, true)

	for {
		evt, err := stream.Next(ctx)
		switch {
		case err == nil:
			w.process(ctx, dest, evt)
		case errors.Is(err, source.ErrNoMessage):
		case ctx.Err() != nil:
			return Termination{Reason: ReasonCancelled, Err: ctx.Err()}
		case source.IsMessageError(err):
			w.record(ctx, "", OutcomeMalformed, err)
		case errors.Is(err, source.ErrClosed):
			return Termination{Reason: ReasonStreamClosed, Err: err}
		default:
			return Termination{Reason: ReasonStreamFailed, Err: err}
		}
	}
}

func (w *Worker) setupFailure(ctx context.Context, reason Reason, err error) Termination {
	if ctx.Err() != nil {
		return Termination{Reason: ReasonCancelled, Err: err}
	}
	return Termination{Reason: reason, Err: err}
}

// process runs one event under its own span, then logs, counts and
// dead-letters the outcome.
func (w *Worker) process(ctx context.Context, dest chat.DestinationID, evt source.Event) {
	ctx = correlation.ExtractTraceContext(ctx, evt.Headers)
	ctx, span := tracing.StartSpan(ctx, w.opts.tracer, tracing.SpanEvent,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(eventAttrs(w.status.Channel, dest, evt)...),
	)
	defer span.End()

	outcome, err := w.handle(ctx, dest, evt)
	span.SetAttributes(tracing.OutcomeAttr(string(outcome)))
	if err != nil {
		tracing.SetSpanError(span, err)
	} else {
		tracing.SetSpanOK(span)
	}

	w.record(ctx, evt.CorrelationID, outcome, err)
	if err != nil {
		w.deadLetter(ctx, evt, outcome, err)
	}
}

func eventAttrs(channel string, dest chat.DestinationID, evt source.Event) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		tracing.ChannelAttr(channel),
		tracing.TopicAttr(evt.Topic),
		tracing.CorrelationAttr(evt.CorrelationID),
		tracing.DestinationAttr(dest.String()),
	}
	if evt.System != "" {
		attrs = append(attrs, tracing.MessagingSystemAttr(evt.System))
	}
	if evt.System == source.SystemKafka {
		attrs = append(attrs,
			tracing.KafkaPartitionAttr(evt.Partition),
			tracing.KafkaOffsetAttr(evt.Offset),
		)
	}
	return attrs
}

// handle transforms one event and delivers the message, if any.
func (w *Worker) handle(ctx context.Context, dest chat.DestinationID, evt source.Event) (Outcome, error) {
	msg, err := w.def.Transform.Transform(evt.Value)
	if err != nil {
		return OutcomeTransformFailed, err
	}
	if msg == nil {
		return OutcomeSkipped, nil
	}

	start := w.opts.now()
	err = w.sink.Deliver(ctx, dest, msg)
	w.opts.metrics.ObserveDelivery(w.status.Channel, w.opts.now().Sub(start))
	if err != nil {
		return OutcomeDeliveryFailed, err
	}
	return OutcomeDelivered, nil
}

// record is the single place an event outcome is logged and counted.
func (w *Worker) record(ctx context.Context, correlationID string, outcome Outcome, err error) {
	w.opts.metrics.ObserveEvent(w.status.Channel, string(outcome))

	attrs := []any{"outcome", string(outcome)}
	if correlationID != "" {
		attrs = append(attrs, "correlation_id", correlationID)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}

	logger := observability.WithTrace(ctx, w.logger)
	switch outcome {
	case OutcomeDelivered:
		logger.Info("event relayed", attrs...)
	case OutcomeSkipped:
		logger.Debug("event produced no message", attrs...)
	case OutcomeDeliveryFailed:
		logger.Error("delivery failed", attrs...)
	default:
		logger.Warn("event dropped", attrs...)
	}
}

func (w *Worker) deadLetter(ctx context.Context, evt source.Event, outcome Outcome, cause error) {
	if w.opts.deadLetters == nil {
		return
	}
	err := w.opts.deadLetters.Send(ctx, dlq.Letter{
		Channel:       w.status.Channel,
		Topic:         evt.Topic,
		Outcome:       string(outcome),
		Err:           cause,
		CorrelationID: evt.CorrelationID,
		Payload:       evt.Value,
	})
	if err != nil {
		w.logger.Warn("dead letter not published", "correlation_id", evt.CorrelationID, "error", err)
	}
}

func (w *Worker) finish(term Termination) {
	w.opts.metrics.SetListening(w.status.Channel, false)
	w.opts.metrics.ObserveTermination(w.status.Channel, string(term.Reason))

	w.status.Termination = &term
	w.setState(StateTerminated)

	if term.Reason == ReasonCancelled {
		w.logger.Info("worker stopped", "reason", string(term.Reason))
		return
	}
	w.logger.Error("worker terminated", "reason", string(term.Reason), "error", term.Err)
}

func (w *Worker) setState(s State) {
	w.status.State = s
	w.status.Since = w.opts.now()
	if w.opts.observer != nil {
		st := w.status
		if st.Termination != nil {
			t := *st.Termination
			st.Termination = &t
		}
		w.opts.observer(st)
	}
}
