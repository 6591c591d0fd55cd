package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestNewLoggerTo_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "relay", slog.LevelInfo)
	logger.Info("hello", "channel", "asay")
	logger.Debug("hidden")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "relay" {
		t.Errorf("expected component=relay, got %v", line["component"])
	}
	if line["channel"] != "asay" {
		t.Errorf("expected channel=asay, got %v", line["channel"])
	}
}

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "relay", slog.LevelInfo)

	if got := WithTrace(context.Background(), logger); got != logger {
		t.Error("expected the same logger without a span")
	}

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	WithTrace(ctx, logger).Info("traced")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("unexpected trace_id %v", line["trace_id"])
	}
	if line["span_id"] != "00f067aa0ba902b7" {
		t.Errorf("unexpected span_id %v", line["span_id"])
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{" warning ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLogLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		name      string
		flagLevel string
		envLevel  string
		expected  slog.Level
	}{
		{"flag takes precedence", "debug", "error", slog.LevelDebug},
		{"env used when flag empty", "", "warn", slog.LevelWarn},
		{"default when both empty", "", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RELAY_LOG_LEVEL", tt.envLevel)
			if got := GetLogLevel(tt.flagLevel); got != tt.expected {
				t.Errorf("GetLogLevel(%q) = %v, want %v", tt.flagLevel, got, tt.expected)
			}
		})
	}
}
