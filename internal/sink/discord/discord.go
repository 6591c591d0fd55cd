// Package discord delivers relay messages to Discord channels as embeds
// through the REST API. No gateway (websocket) connection is opened.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lsm/relay/internal/chat"
	"github.com/lsm/relay/internal/tracing"
)

// Embed field limits enforced by Discord.
const (
	maxTitle       = 256
	maxDescription = 4096
	maxFooter      = 2048
)

// Config holds the configuration for a Discord sink.
type Config struct {
	Token   string
	Timeout time.Duration // per request, default 20s
}

// messageSender abstracts the discordgo session methods used by Sink for testing.
type messageSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sink sends messages with a bot token.
type Sink struct {
	session messageSender
	client  *http.Client
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewSink creates a Discord sink authenticated as a bot.
func NewSink(cfg Config, logger *slog.Logger) (*Sink, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	session.Client = client
	// Deliveries are sent once. 429 responses are still waited out by the
	// session's rate limiter.
	session.MaxRestRetries = 0

	return &Sink{
		session: session,
		client:  client,
		logger:  logger,
		tracer:  noop.NewTracerProvider().Tracer("discord-sink"),
	}, nil
}

// SetTracer sets the tracer for the sink.
func (s *Sink) SetTracer(tracer trace.Tracer) {
	s.tracer = tracer
}

// Deliver posts msg as an embed in the dest channel.
func (s *Sink) Deliver(ctx context.Context, dest chat.DestinationID, msg *chat.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}

	ctx, span := tracing.StartSpan(ctx, s.tracer, tracing.SpanDeliver,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.DestinationAttr(dest.String())),
	)
	defer span.End()

	sent, err := s.session.ChannelMessageSendEmbed(dest.String(), Embed(msg), discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil {
			span.SetAttributes(attribute.Int("http.response.status_code", restErr.Response.StatusCode))
		}
		tracing.SetSpanError(span, err)
		return fmt.Errorf("discord send to %s: %w", dest, err)
	}

	tracing.SetSpanOK(span)
	if sent != nil {
		s.logger.Debug("message delivered", "destination", dest.String(), "message_id", sent.ID)
	}
	return nil
}

// Close releases idle HTTP connections.
func (s *Sink) Close() error {
	if s.client != nil {
		s.client.CloseIdleConnections()
	}
	return nil
}

// Embed converts msg to a Discord embed, truncating fields to Discord's limits.
func Embed(msg *chat.Message) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       truncate(msg.Title, maxTitle),
		Description: truncate(msg.Body, maxDescription),
		Color:       int(msg.Color),
	}
	if msg.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: truncate(msg.Footer, maxFooter)}
	}
	if !msg.Timestamp.IsZero() {
		e.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	return e
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
