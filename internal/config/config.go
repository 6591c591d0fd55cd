// Package config resolves the relay's settings from the environment, an
// optional .env file and an optional YAML channel file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/lsm/relay/internal/kafka"
)

// Supported brokers.
const (
	BrokerRedis = "redis"
	BrokerKafka = "kafka"
)

const (
	EnvDiscordToken       = "DISCORD_TOKEN"
	EnvBroker             = "RELAY_BROKER"
	EnvRedisURL           = "REDIS_URL"
	EnvKafkaBrokers       = "KAFKA_BROKERS"
	EnvKafkaSASLMechanism = "KAFKA_SASL_MECHANISM"
	EnvKafkaUsername      = "KAFKA_USERNAME"
	EnvKafkaPassword      = "KAFKA_PASSWORD"
	EnvKafkaTLS           = "KAFKA_TLS"
	EnvKafkaConsumerGroup = "KAFKA_CONSUMER_GROUP"
	EnvMetricsAddr        = "RELAY_METRICS_ADDR"
	EnvChannelsFile       = "RELAY_CHANNELS_FILE"
	EnvDeliveryRPS        = "RELAY_DELIVERY_RPS"
	EnvDeliveryBurst      = "RELAY_DELIVERY_BURST"
	EnvDeadLetterPrefix   = "RELAY_DEAD_LETTER_PREFIX"

	DefaultMetricsAddr = ":9090"
)

// Lookup reads one variable. os.LookupEnv satisfies it.
type Lookup func(key string) (string, bool)

// MissingError reports a required variable that is unset or empty.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s is not set", e.Key)
}

// IsMissing reports whether err is, or wraps, a *MissingError.
func IsMissing(err error) bool {
	var me *MissingError
	return errors.As(err, &me)
}

// Config is the resolved process configuration.
type Config struct {
	DiscordToken string
	Broker       string

	RedisURL string

	Kafka              kafka.Cluster
	KafkaConsumerGroup string

	// MetricsAddr is where /metrics and the health endpoints listen. Empty
	// disables the HTTP server.
	MetricsAddr string

	DeliveryRPS   float64
	DeliveryBurst int

	// DeadLetterPrefix enables dead letters on "<prefix><channel>" topics of
	// the same broker. Empty disables them.
	DeadLetterPrefix string

	ChannelsFile string
	Channels     []ChannelSpec
}

// LoadDotEnv loads a .env file from the working directory when there is
// one. A missing file is not an error; loaded reports whether one was read.
func LoadDotEnv(filenames ...string) (loaded bool, err error) {
	if err := godotenv.Load(filenames...); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("load .env: %w", err)
	}
	return true, nil
}

// Load resolves the configuration. A *MissingError means the relay has
// nothing to do and should exit quietly; any other error is fatal.
func Load(lookup Lookup) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := &Config{
		DiscordToken: get(EnvDiscordToken),
		Broker:       strings.ToLower(get(EnvBroker)),
		MetricsAddr:  DefaultMetricsAddr,
		ChannelsFile: get(EnvChannelsFile),

		DeadLetterPrefix: get(EnvDeadLetterPrefix),
	}
	if cfg.DiscordToken == "" {
		return nil, &MissingError{Key: EnvDiscordToken}
	}

	switch cfg.Broker {
	case "", BrokerRedis:
		cfg.Broker = BrokerRedis
		cfg.RedisURL = get(EnvRedisURL)
		if cfg.RedisURL == "" {
			return nil, &MissingError{Key: EnvRedisURL}
		}
	case BrokerKafka:
		brokers := kafka.ParseBrokers(get(EnvKafkaBrokers))
		if len(brokers) == 0 {
			return nil, &MissingError{Key: EnvKafkaBrokers}
		}
		cfg.Kafka = kafka.Cluster{
			Brokers: brokers,
			Auth: kafka.Auth{
				Mechanism: get(EnvKafkaSASLMechanism),
				Username:  get(EnvKafkaUsername),
				Password:  get(EnvKafkaPassword),
			},
			TLS: kafka.TLS{Enabled: parseBool(get(EnvKafkaTLS))},
		}
		cfg.KafkaConsumerGroup = get(EnvKafkaConsumerGroup)
		if err := cfg.Kafka.Validate(); err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported broker %q (want %s or %s)", EnvBroker, cfg.Broker, BrokerRedis, BrokerKafka)
	}

	if addr, ok := lookup(EnvMetricsAddr); ok {
		cfg.MetricsAddr = strings.TrimSpace(addr)
	}

	var errs []error
	if v := get(EnvDeliveryRPS); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid rate %q", EnvDeliveryRPS, v))
		}
		cfg.DeliveryRPS = rps
	}
	if v := get(EnvDeliveryBurst); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil || burst < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid burst %q", EnvDeliveryBurst, v))
		}
		cfg.DeliveryBurst = burst
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.ChannelsFile != "" {
		specs, err := LoadChannelsFile(cfg.ChannelsFile)
		if err != nil {
			return nil, err
		}
		cfg.Channels = specs
	} else {
		cfg.Channels = DefaultChannels()
	}
	return cfg, nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
