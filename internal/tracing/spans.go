package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys.
const (
	AttrChannel        = "relay.channel"
	AttrCorrelationID  = "relay.correlation_id"
	AttrOutcome        = "relay.outcome"
	AttrDestination    = "relay.destination"
	AttrTopic          = "messaging.destination.name"
	AttrMessagingSys   = "messaging.system"
	AttrKafkaPartition = "messaging.kafka.partition"
	AttrKafkaOffset    = "messaging.kafka.offset"
)

// Span names.
const (
	SpanEvent   = "relay.event"
	SpanDeliver = "relay.deliver"
)

// StartSpan starts a span. A nil tracer yields the span already in ctx.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// SetSpanError records err on the span and marks it failed.
func SetSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span successful.
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

func ChannelAttr(name string) attribute.KeyValue {
	return attribute.String(AttrChannel, name)
}

func CorrelationAttr(id string) attribute.KeyValue {
	return attribute.String(AttrCorrelationID, id)
}

func OutcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(AttrOutcome, outcome)
}

func DestinationAttr(id string) attribute.KeyValue {
	return attribute.String(AttrDestination, id)
}

func TopicAttr(topic string) attribute.KeyValue {
	return attribute.String(AttrTopic, topic)
}

// MessagingSystemAttr names the broker, e.g. "redis" or "kafka".
func MessagingSystemAttr(system string) attribute.KeyValue {
	return attribute.String(AttrMessagingSys, system)
}

func KafkaPartitionAttr(partition int32) attribute.KeyValue {
	return attribute.Int64(AttrKafkaPartition, int64(partition))
}

func KafkaOffsetAttr(offset int64) attribute.KeyValue {
	return attribute.Int64(AttrKafkaOffset, offset)
}
