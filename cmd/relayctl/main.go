package main

import (
	"fmt"
	"os"

	"github.com/lsm/relay/internal/cli"
)

const usage = `relayctl - tools for the relay

Usage:
  relayctl <command> [arguments]

Commands:
  validate [file]   Validate a channel file
  publish           Publish test payloads to a topic
  render            Preview the Discord embed a transform produces

Run 'relayctl <command> -h' for help on a specific command.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		return nil
	}

	switch os.Args[1] {
	case "validate":
		return cli.RunValidate(os.Args[2:], nil)
	case "publish":
		return cli.RunPublish(os.Args[2:], nil)
	case "render":
		return cli.RunRender(os.Args[2:], nil)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\nRun 'relayctl help' for usage", os.Args[1])
	}
}
