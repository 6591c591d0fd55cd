package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lsm/relay/internal/sink/discord"
	"github.com/lsm/relay/internal/transform/builtin"
)

const renderUsage = `Usage: relayctl render --kind <kind> --input <json|file> [--expr <cel>] [--envelope cloudevents]

Runs a transform on one payload and prints the Discord embed it would
produce, without connecting to a broker or to Discord.

Examples:
  relayctl render --kind asay --input '{"source":"game","author":"Alice","message":"hi","rank":"Admin"}'
  relayctl render --kind cel --expr '{"title": payload.ckey, "body": payload.msg}' --input ooc.json`

// RunRender previews a transform's output.
func RunRender(args []string, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	if isHelp(args) {
		fmt.Fprintln(out, renderUsage)
		return nil
	}

	kind, err := parseStringFlag(args, "--kind")
	if err != nil {
		return err
	}
	if kind == "" {
		return fmt.Errorf("--kind is required (one of %s)", strings.Join(builtin.Kinds(), ", "))
	}
	input, err := parseStringFlag(args, "--input")
	if err != nil {
		return err
	}
	if input == "" {
		return fmt.Errorf("--input is required")
	}
	expr, _ := parseStringFlag(args, "--expr")
	env, _ := parseStringFlag(args, "--envelope")

	tr, err := builtin.Build(builtin.Spec{Kind: kind, Expr: expr, Envelope: env})
	if err != nil {
		return err
	}

	payload, err := readInput(input)
	if err != nil {
		return err
	}

	msg, err := tr.Transform(payload)
	if err != nil {
		return fmt.Errorf("transform failed: %w", err)
	}
	if msg == nil {
		fmt.Fprintln(out, "No message: the transform skipped this payload.")
		return nil
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(discord.Embed(msg))
}

// readInput treats input as inline JSON when it looks like JSON, otherwise
// as a path. A file that is not a single JSON document is read as JSONL and
// its first non-empty line is used.
func readInput(input string) ([]byte, error) {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return []byte(trimmed), nil
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if json.Valid(data) {
		return []byte(strings.TrimSpace(string(data))), nil
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return []byte(line), nil
		}
	}
	return nil, fmt.Errorf("input file %s is empty", input)
}
