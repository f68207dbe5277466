package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chatlink/client/internal/config"
	"github.com/chatlink/client/internal/storage"
)

// openStore resolves the data path from --db or the config file and opens
// the store. The caller closes it.
func openStore(configPath, dbPath string) (*storage.SQLiteStore, string, error) {
	path := dbPath
	if path == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, "", err
		}
		if err := cfg.Resolve(); err != nil {
			return nil, "", err
		}
		path = cfg.DataPath
	}
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return nil, path, fmt.Errorf("no client data at %s", path)
		}
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, path, err
	}
	return store, path, nil
}

func runLogout(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.chatlink/config.toml)")
	dbPath := fs.String("db", "", "SQLite file holding the credential (overrides config)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: chatlink logout [options]\n\nRemove the stored credential and cached profile.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	store, path, err := openStore(*configPath, *dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	profile, _, _ := store.LoadProfile()
	_, hadToken, err := store.GetToken()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := store.ClearSession(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if !hadToken {
		fmt.Fprintf(stdout, "Not logged in (%s)\n", path)
		return 0
	}

	store.AppendAudit(&storage.AuditEntry{
		Event:  storage.AuditLogout,
		UID:    profile.UID,
		Detail: "cli",
	}, storage.DefaultAuditRows)
	fmt.Fprintln(stdout, "Logged out")
	return 0
}

func runAudit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.chatlink/config.toml)")
	dbPath := fs.String("db", "", "SQLite file holding the credential (overrides config)")
	limit := fs.Int("limit", 20, "Number of entries to show")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: chatlink audit [options]\n\nShow recent session events, newest first.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if *limit <= 0 {
		fmt.Fprintln(stderr, "Error: --limit must be positive")
		return 1
	}

	store, _, err := openStore(*configPath, *dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	entries, err := store.ListAudit(*limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No session events recorded.")
		return 0
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-14s", e.At.Local().Format("2006-01-02 15:04:05"), e.Event)
		if e.UID != 0 {
			line += fmt.Sprintf("  uid=%d", e.UID)
		}
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Fprintln(stdout, line)
	}
	return 0
}
