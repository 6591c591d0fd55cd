// Package cli implements the relayctl subcommands.
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseStringFlag returns the value of flag given as "--flag v" or
// "--flag=v", or "" when absent.
func parseStringFlag(args []string, flag string) (string, error) {
	for i, arg := range args {
		if arg == flag {
			if i+1 < len(args) {
				return args[i+1], nil
			}
			return "", fmt.Errorf("flag %s requires a value", flag)
		}
		if v, ok := strings.CutPrefix(arg, flag+"="); ok {
			return v, nil
		}
	}
	return "", nil
}

func parseIntFlag(args []string, flag string, defaultVal int) (int, error) {
	s, err := parseStringFlag(args, flag)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: must be an integer", flag)
	}
	if v < 1 {
		return 0, fmt.Errorf("invalid value for %s: must be >= 1", flag)
	}
	return v, nil
}

func parseDurationFlag(args []string, flag string) (time.Duration, error) {
	s, err := parseStringFlag(args, flag)
	if err != nil || s == "" {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", flag, err)
	}
	return d, nil
}

// positional returns the first argument that is not a flag or a flag value.
func positional(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--") {
			if !strings.Contains(a, "=") {
				i++
			}
			continue
		}
		return a
	}
	return ""
}

func isHelp(args []string) bool {
	return len(args) > 0 && (args[0] == "-h" || args[0] == "--help")
}
