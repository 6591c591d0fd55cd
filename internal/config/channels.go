package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lsm/relay/internal/chat"
	"github.com/lsm/relay/internal/relay"
	"github.com/lsm/relay/internal/transform/builtin"
)

// ChannelSpec describes one channel before environment lookups. Topic and
// Destination may be given literally or through the named variable.
type ChannelSpec struct {
	Name           string       `yaml:"name"`
	Topic          string       `yaml:"topic,omitempty"`
	TopicEnv       string       `yaml:"topicEnv,omitempty"`
	Destination    string       `yaml:"destination,omitempty"`
	DestinationEnv string       `yaml:"destinationEnv,omitempty"`
	Transform      builtin.Spec `yaml:"transform"`
}

type channelsFile struct {
	Channels []ChannelSpec `yaml:"channels"`
}

// DefaultChannels returns the four game-server channels, each configured by
// a pair of variables such as REDIS_ASAY_SUBSCRIPTION and
// REDIS_ASAY_SUBSCRIPTION_DISCORD_CHANNEL_OUTPUT.
func DefaultChannels() []ChannelSpec {
	kinds := []string{"asay", "access", "round", "meta"}
	specs := make([]ChannelSpec, 0, len(kinds))
	for _, kind := range kinds {
		env := "REDIS_" + strings.ToUpper(kind) + "_SUBSCRIPTION"
		specs = append(specs, ChannelSpec{
			Name:           kind,
			TopicEnv:       env,
			DestinationEnv: env + "_DISCORD_CHANNEL_OUTPUT",
			Transform:      builtin.Spec{Kind: kind},
		})
	}
	return specs
}

// LoadChannelsFile reads and validates a YAML channel file.
func LoadChannelsFile(path string) ([]ChannelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	specs, err := ParseChannels(data)
	if err != nil {
		return nil, fmt.Errorf("channels file %s: %w", path, err)
	}
	return specs, nil
}

// ParseChannels decodes a channel document and checks its structure.
// Unknown keys are rejected. Literal destinations are not parsed here: a
// malformed one disables only its channel, whose worker ends with
// invalid_destination. ValidateChannels applies the strict check.
func ParseChannels(data []byte) ([]ChannelSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f channelsFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(f.Channels) == 0 {
		return nil, errors.New("no channels defined")
	}
	if err := errors.Join(checkStructure(f.Channels)...); err != nil {
		return nil, err
	}
	return f.Channels, nil
}

// ValidateChannels checks names, sources of topic and destination, literal
// destinations and transforms. All problems are reported together.
func ValidateChannels(specs []ChannelSpec) error {
	errs := checkStructure(specs)
	for i, s := range specs {
		if s.Destination == "" {
			continue
		}
		if _, err := chat.ParseDestinationID(s.Destination); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", specLabel(s, i), err))
		}
	}
	return errors.Join(errs...)
}

func checkStructure(specs []ChannelSpec) []error {
	var errs []error
	seen := make(map[string]bool, len(specs))

	for i, s := range specs {
		label := specLabel(s, i)
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("channel %s: name is required", label))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("channel %s: duplicate name", label))
		}
		seen[s.Name] = true

		if err := exactlyOne("topic", s.Topic, s.TopicEnv); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", label, err))
		}
		if err := exactlyOne("destination", s.Destination, s.DestinationEnv); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", label, err))
		}
		if _, err := builtin.Build(s.Transform); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", label, err))
		}
	}
	return errs
}

func specLabel(s ChannelSpec, i int) string {
	if s.Name == "" {
		return fmt.Sprintf("#%d", i)
	}
	return s.Name
}

func exactlyOne(field, literal, env string) error {
	switch {
	case literal == "" && env == "":
		return fmt.Errorf("one of %s or %sEnv is required", field, field)
	case literal != "" && env != "":
		return fmt.Errorf("only one of %s or %sEnv may be set", field, field)
	}
	return nil
}

// ResolveChannels turns specs into channel definitions. A variable that is
// unset leaves its field empty and is logged, so the supervisor skips that
// channel. A malformed destination is logged and kept; that channel's worker
// stops during setup. A transform that cannot be built is fatal.
func ResolveChannels(specs []ChannelSpec, lookup Lookup, logger *slog.Logger) ([]relay.ChannelDefinition, error) {
	defs := make([]relay.ChannelDefinition, 0, len(specs))
	for _, s := range specs {
		tr, err := builtin.Build(s.Transform)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", s.Name, err)
		}
		dest := resolve(s.Name, s.Destination, s.DestinationEnv, lookup, logger)
		if dest != "" {
			if _, err := chat.ParseDestinationID(dest); err != nil {
				logger.Warn("channel will not start", "channel", s.Name, "error", err.Error())
			}
		}
		defs = append(defs, relay.ChannelDefinition{
			Name:        s.Name,
			Topic:       resolve(s.Name, s.Topic, s.TopicEnv, lookup, logger),
			Destination: dest,
			Transform:   tr,
		})
	}
	return defs, nil
}

func resolve(channel, literal, env string, lookup Lookup, logger *slog.Logger) string {
	if literal != "" || env == "" {
		return literal
	}
	v, _ := lookup(env)
	if strings.TrimSpace(v) == "" {
		v = ""
		logger.Warn("channel disabled, variable not set", "channel", channel, "error", (&MissingError{Key: env}).Error())
	}
	return v
}
