// Package correlation assigns every relayed event an ID that ties its log
// lines, spans and metrics together.
package correlation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	HeaderCorrelationID  = "relay-correlation-id"
	HeaderXCorrelationID = "x-correlation-id"
	HeaderXRequestID     = "x-request-id"
	HeaderTraceparent    = "traceparent"

	// SourceGenerated marks an ID minted by the relay itself.
	SourceGenerated = "generated"
)

type ID struct {
	Value  string
	Source string
}

// ExtractOrGenerate extracts a correlation ID from headers or generates a new UUID.
// Priority: relay-correlation-id > x-correlation-id > x-request-id > traceparent > new UUID.
// Header names are matched case-insensitively.
func ExtractOrGenerate(headers map[string]string) ID {
	if len(headers) > 0 {
		lower := make(map[string]string, len(headers))
		for k, v := range headers {
			lower[strings.ToLower(k)] = v
		}
		for _, name := range []string{HeaderCorrelationID, HeaderXCorrelationID, HeaderXRequestID} {
			if id := lower[name]; id != "" {
				return ID{Value: id, Source: name}
			}
		}
		if tp := lower[HeaderTraceparent]; tp != "" {
			if traceID := extractTraceID(tp); traceID != "" {
				return ID{Value: traceID, Source: HeaderTraceparent}
			}
		}
	}
	return Generate()
}

// Generate returns a fresh correlation ID.
func Generate() ID {
	return ID{Value: uuid.New().String(), Source: SourceGenerated}
}

// extractTraceID parses W3C traceparent format: version-traceid-parentid-flags
func extractTraceID(traceparent string) string {
	parts := strings.Split(traceparent, "-")
	if len(parts) >= 2 && len(parts[1]) == 32 {
		return parts[1]
	}
	return ""
}

// ExtractTraceContext returns ctx carrying any remote span context found in
// headers, using the globally registered propagator.
func ExtractTraceContext(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}
