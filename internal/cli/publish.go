package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lsm/relay/internal/config"
	"github.com/lsm/relay/internal/kafka"
	"github.com/lsm/relay/internal/source"
	kafkasource "github.com/lsm/relay/internal/source/kafka"
	redissource "github.com/lsm/relay/internal/source/redis"
)

const publishUsage = `Usage: relayctl publish --topic <name> (--json <data> | --file <path>) [flags]

Publishes test payloads to a topic so a running relay picks them up.

Flags:
  --topic     Topic (Redis channel or Kafka topic) to publish to (required)
  --json      Inline JSON payload
  --file      File with one JSON payload per line
  --count     Times to publish --json, or max lines from --file (default: 1 / all)
  --rate      Pause between publishes, e.g. 250ms
  --broker    redis or kafka (default: $RELAY_BROKER or redis)
  --url       Redis URL (default: $REDIS_URL or redis://localhost:6379)
  --brokers   Kafka brokers, comma separated (default: $KAFKA_BROKERS or localhost:9092)

Examples:
  relayctl publish --topic byond.asay --json '{"source":"game","author":"Alice","message":"hi","rank":"Admin"}'
  relayctl publish --topic byond.asay --file asay.jsonl --rate 200ms`

// target says where publish sends payloads.
type target struct {
	broker  string
	url     string
	brokers []string
}

// newPublisherFunc builds the publisher for a target. Tests replace it.
var newPublisherFunc = func(t target) (source.Publisher, error) {
	switch t.broker {
	case config.BrokerRedis:
		return redissource.NewPublisher(t.url)
	case config.BrokerKafka:
		return kafkasource.NewPublisher(kafka.Cluster{Brokers: t.brokers})
	default:
		return nil, fmt.Errorf("unsupported broker %q", t.broker)
	}
}

// RunPublish publishes test payloads.
func RunPublish(args []string, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	if isHelp(args) {
		fmt.Fprintln(out, publishUsage)
		return nil
	}

	topic, err := parseStringFlag(args, "--topic")
	if err != nil {
		return err
	}
	if topic == "" {
		return fmt.Errorf("--topic flag is required")
	}

	inline, _ := parseStringFlag(args, "--json")
	file, _ := parseStringFlag(args, "--file")
	if inline == "" && file == "" {
		return fmt.Errorf("either --json or --file must be specified")
	}
	if inline != "" && file != "" {
		return fmt.Errorf("cannot specify both --json and --file")
	}

	count, err := parseIntFlag(args, "--count", 0)
	if err != nil {
		return err
	}
	rate, err := parseDurationFlag(args, "--rate")
	if err != nil {
		return err
	}

	t, err := publishTarget(args)
	if err != nil {
		return err
	}

	pub, err := newPublisherFunc(t)
	if err != nil {
		return fmt.Errorf("create %s publisher: %w", t.broker, err)
	}
	defer func() { _ = pub.Close() }()

	ctx := context.Background()
	var n int
	if inline != "" {
		if count == 0 {
			count = 1
		}
		n, err = publishInline(ctx, pub, topic, inline, count, rate, out)
	} else {
		n, err = publishFile(ctx, pub, topic, file, count, rate, out)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Published %d payload(s) to %s via %s\n", n, topic, t.broker)
	return nil
}

func publishTarget(args []string) (target, error) {
	broker, _ := parseStringFlag(args, "--broker")
	if broker == "" {
		broker = envOr(config.EnvBroker, config.BrokerRedis)
	}
	broker = strings.ToLower(broker)

	t := target{broker: broker}
	switch broker {
	case config.BrokerRedis:
		t.url, _ = parseStringFlag(args, "--url")
		if t.url == "" {
			t.url = envOr(config.EnvRedisURL, "redis://localhost:6379")
		}
	case config.BrokerKafka:
		list, _ := parseStringFlag(args, "--brokers")
		if list == "" {
			list = envOr(config.EnvKafkaBrokers, "localhost:9092")
		}
		t.brokers = kafka.ParseBrokers(list)
	default:
		return target{}, fmt.Errorf("--broker must be %s or %s, got %q", config.BrokerRedis, config.BrokerKafka, broker)
	}
	return t, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func publishInline(ctx context.Context, pub source.Publisher, topic, data string, count int, rate time.Duration, out io.Writer) (int, error) {
	if !json.Valid([]byte(data)) {
		return 0, fmt.Errorf("--json is not valid JSON")
	}
	for i := 0; i < count; i++ {
		if err := pub.Publish(ctx, topic, []byte(data)); err != nil {
			return i, fmt.Errorf("publish payload %d: %w", i+1, err)
		}
		fmt.Fprintf(out, "Published payload %d to %s\n", i+1, topic)
		if rate > 0 && i < count-1 {
			time.Sleep(rate)
		}
	}
	return count, nil
}

func publishFile(ctx context.Context, pub source.Publisher, topic, path string, limit int, rate time.Duration, out io.Writer) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	published := 0
	line := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if !json.Valid([]byte(text)) {
			return published, fmt.Errorf("invalid JSON on line %d", line)
		}
		if published > 0 && rate > 0 {
			time.Sleep(rate)
		}
		if err := pub.Publish(ctx, topic, []byte(text)); err != nil {
			return published, fmt.Errorf("publish line %d: %w", line, err)
		}
		published++
		fmt.Fprintf(out, "Published payload %d (line %d) to %s\n", published, line, topic)

		if limit > 0 && published >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return published, fmt.Errorf("read file: %w", err)
	}
	if published == 0 {
		return 0, fmt.Errorf("no payloads found in %s", path)
	}
	return published, nil
}
