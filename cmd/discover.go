package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/chatlink/client/internal/mdns"
)

// discoveredJSON is the --json form of one discovered server.
type discoveredJSON struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	API     string `json:"api"`
	Version string `json:"version,omitempty"`
}

func runDiscover(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.SetOutput(stderr)

	timeout := fs.Duration("timeout", discoverTimeout, "How long to browse")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: chatlink discover [options]\n\nList chat servers advertised over mDNS on the local network.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if *timeout <= 0 {
		fmt.Fprintln(stderr, "Error: --timeout must be positive")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	servers, err := mdns.Discover(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printServers(stdout, servers, *jsonOutput)
	return 0
}

func printServers(w io.Writer, servers []mdns.DiscoveredServer, asJSON bool) {
	if asJSON {
		out := make([]discoveredJSON, 0, len(servers))
		for _, s := range servers {
			out = append(out, discoveredJSON{Name: s.Name, URL: s.WebSocketURL(), API: s.APIURL(), Version: s.Version})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		return
	}

	if len(servers) == 0 {
		fmt.Fprintln(w, "No chat servers found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURL\tAPI")
	for _, s := range servers {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.WebSocketURL(), s.APIURL())
	}
	tw.Flush()
}
