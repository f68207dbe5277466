package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `chatlink - terminal client for a persistent authenticated chat channel

Usage:
  chatlink <command> [options]

Commands:
  connect       Connect to a chat server and open the interactive prompt
  discover      List chat servers advertised on the local network
  devserver     Run a scripted local chat server for trying the client
  logout        Remove the stored credential and cached profile
  audit         Show recent session events

Run 'chatlink <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "connect":
		return runConnect(args[2:], stdin, stdout, stderr)
	case "discover":
		return runDiscover(args[2:], stdout, stderr)
	case "devserver":
		return runDevServer(args[2:], stdout, stderr)
	case "logout":
		return runLogout(args[2:], stdout, stderr)
	case "audit":
		return runAudit(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "chatlink %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
