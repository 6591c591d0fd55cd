package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/lsm/relay/internal/config"
)

const validateUsage = `Usage: relayctl validate [file]

Validates a channel file: transform kinds, CEL expressions, envelopes and
literal destination IDs. The file defaults to $RELAY_CHANNELS_FILE, then
channels.yaml. With no file and no channels.yaml the built-in channels are
checked.`

// RunValidate checks a channel file and prints the channels it defines.
func RunValidate(args []string, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	if isHelp(args) {
		fmt.Fprintln(out, validateUsage)
		return nil
	}

	path := positional(args)
	if path == "" {
		path = envOr(config.EnvChannelsFile, "")
	}
	if path == "" {
		if _, err := os.Stat("channels.yaml"); err == nil {
			path = "channels.yaml"
		}
	}

	var specs []config.ChannelSpec
	if path == "" {
		specs = config.DefaultChannels()
		if err := config.ValidateChannels(specs); err != nil {
			return fmt.Errorf("built-in channels: %w", err)
		}
		fmt.Fprintln(out, "No channel file given, checked the built-in channels.")
	} else {
		var err error
		specs, err = config.LoadChannelsFile(path)
		if err != nil {
			return err
		}
		if err := config.ValidateChannels(specs); err != nil {
			return fmt.Errorf("channels file %s: %w", path, err)
		}
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tTOPIC\tDESTINATION\tTRANSFORM")
	for _, s := range specs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, describe(s.Topic, s.TopicEnv), describe(s.Destination, s.DestinationEnv), transformLabel(s))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d channel(s) valid.\n", len(specs))
	return nil
}

func describe(literal, env string) string {
	if literal != "" {
		return literal
	}
	return "$" + env
}

func transformLabel(s config.ChannelSpec) string {
	if s.Transform.Envelope != "" {
		return s.Transform.Kind + "+" + s.Transform.Envelope
	}
	return s.Transform.Kind
}
