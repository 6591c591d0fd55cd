package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lsm/relay/internal/config"
	"github.com/lsm/relay/internal/dlq"
	"github.com/lsm/relay/internal/observability"
	"github.com/lsm/relay/internal/relay"
	"github.com/lsm/relay/internal/sink/discord"
	"github.com/lsm/relay/internal/sink/ratelimit"
	"github.com/lsm/relay/internal/source"
	kafkasource "github.com/lsm/relay/internal/source/kafka"
	redissource "github.com/lsm/relay/internal/source/redis"
	"github.com/lsm/relay/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dotenvLoaded, dotenvErr := config.LoadDotEnv()

	logger := observability.NewLogger("relay", observability.GetLogLevel(""))
	slog.SetDefault(logger)

	switch {
	case dotenvErr != nil:
		logger.Warn("ignoring .env file", "error", dotenvErr)
	case !dotenvLoaded:
		logger.Info("no .env file found, using the process environment")
	}

	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		if config.IsMissing(err) {
			logger.Warn("relay disabled", "error", err)
			return nil
		}
		return fmt.Errorf("load config: %w", err)
	}

	defs, err := config.ResolveChannels(cfg.Channels, os.LookupEnv, logger)
	if err != nil {
		return fmt.Errorf("resolve channels: %w", err)
	}

	tracer, shutdownTracing, err := tracing.Initialize(tracing.GetConfig("relay"), logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(reg)

	broker, err := newBroker(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = broker.Close() }()

	discordSink, err := discord.NewSink(discord.Config{Token: cfg.DiscordToken}, logger)
	if err != nil {
		return fmt.Errorf("discord sink: %w", err)
	}
	discordSink.SetTracer(tracer)
	sk := ratelimit.Wrap(discordSink, cfg.DeliveryRPS, cfg.DeliveryBurst)
	defer func() { _ = sk.Close() }()

	deadLetters, err := newDeadLetters(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = deadLetters.Close() }()

	sup := relay.NewSupervisor(broker, sk,
		relay.WithLogger(logger),
		relay.WithMetrics(metrics),
		relay.WithTracer(tracer),
		relay.WithDeadLetters(deadLetters),
	)

	health := observability.NewHealthServer(
		observability.WithReadiness(func() bool { return sup.Listening() > 0 }),
		observability.WithStatus(func() any { return sup.States() }),
	)

	var httpServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.Handle("GET /", health.Handler())
		httpServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics server starting", "addr", cfg.MetricsAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("relay starting", "broker", cfg.Broker, "channels", len(defs))
	health.SetReady(true)
	reports := sup.Run(ctx, defs)
	health.SetReady(false)

	for _, r := range reports {
		logger.Info("channel finished", "channel", r.Channel, "reason", string(r.Termination.Reason))
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newBroker(cfg *config.Config, logger *slog.Logger) (source.Broker, error) {
	switch cfg.Broker {
	case config.BrokerKafka:
		b, err := kafkasource.NewBroker(kafkasource.Config{
			Cluster:       cfg.Kafka,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("kafka broker: %w", err)
		}
		return b, nil
	default:
		b, err := redissource.NewBroker(cfg.RedisURL, logger)
		if err != nil {
			return nil, fmt.Errorf("redis broker: %w", err)
		}
		return b, nil
	}
}

// newDeadLetters returns nil when dead letters are disabled.
func newDeadLetters(cfg *config.Config) (*dlq.Handler, error) {
	if cfg.DeadLetterPrefix == "" {
		return nil, nil
	}
	var (
		pub source.Publisher
		err error
	)
	switch cfg.Broker {
	case config.BrokerKafka:
		pub, err = kafkasource.NewPublisher(cfg.Kafka)
	default:
		pub, err = redissource.NewPublisher(cfg.RedisURL)
	}
	if err != nil {
		return nil, fmt.Errorf("dead-letter publisher: %w", err)
	}
	return dlq.NewHandler(pub, cfg.DeadLetterPrefix), nil
}
