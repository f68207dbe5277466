package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chatlink/client/internal/state"
	"github.com/chatlink/client/internal/storage"
)

func runWithArgs(args []string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, out, _ := runWithArgs([]string{"chatlink"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "Usage:") {
		t.Fatalf("expected usage output, got %q", out)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	code, out, _ := runWithArgs([]string{"chatlink", "nope"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out, "Unknown command") {
		t.Fatalf("expected unknown command output, got %q", out)
	}
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runWithArgs([]string{"chatlink", "version"})
	if code != 0 || !strings.Contains(out, "chatlink "+Version) {
		t.Fatalf("version = %d %q", code, out)
	}
}

func TestSubcommandHelp(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"connect", "Usage: chatlink connect"},
		{"discover", "Usage: chatlink discover"},
		{"devserver", "Usage: chatlink devserver"},
		{"logout", "Usage: chatlink logout"},
		{"audit", "Usage: chatlink audit"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			code, _, errOut := runWithArgs([]string{"chatlink", tt.cmd, "--help"})
			if code != 0 {
				t.Fatalf("expected exit code 0, got %d", code)
			}
			if !strings.Contains(errOut, tt.want) {
				t.Fatalf("expected %q, got %q", tt.want, errOut)
			}
		})
	}
}

func TestConnectInvalidServerURL(t *testing.T) {
	code, _, errOut := runWithArgs([]string{"chatlink", "connect", "--server", "http://example.com", "--db", ":memory:"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(errOut, "ws://") {
		t.Fatalf("expected server_url error, got %q", errOut)
	}
}

func TestConnectMissingConfigFile(t *testing.T) {
	code, _, errOut := runWithArgs([]string{"chatlink", "connect", "--config", filepath.Join(t.TempDir(), "missing.toml")})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(errOut, "config file not found") {
		t.Fatalf("expected config error, got %q", errOut)
	}
}

func TestConnectMissingCAFile(t *testing.T) {
	ca := filepath.Join(t.TempDir(), "missing.pem")
	code, _, errOut := runWithArgs([]string{"chatlink", "connect", "--server", "wss://127.0.0.1:1/", "--db", ":memory:", "--ca", ca})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(errOut, "failed to read CA file") {
		t.Fatalf("expected CA error, got %q", errOut)
	}
}

func TestConnectInvalidFingerprint(t *testing.T) {
	code, _, errOut := runWithArgs([]string{"chatlink", "connect", "--server", "wss://127.0.0.1:1/", "--db", ":memory:", "--fingerprint", "abc"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(errOut, "invalid fingerprint") {
		t.Fatalf("expected fingerprint error, got %q", errOut)
	}
}

func TestCertHosts(t *testing.T) {
	hosts := certHosts("0.0.0.0:8090", "192.168.1.5:8080", "localhost:9000", "bad")
	want := []string{"localhost", "127.0.0.1", "::1", "192.168.1.5"}
	if len(hosts) != len(want) {
		t.Fatalf("expected %v, got %v", want, hosts)
	}
	for i := range want {
		if hosts[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, hosts)
		}
	}
}

func TestDiscoverInvalidTimeout(t *testing.T) {
	code, _, errOut := runWithArgs([]string{"chatlink", "discover", "--timeout", "0s"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(errOut, "--timeout") {
		t.Fatalf("expected timeout error, got %q", errOut)
	}
}

func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatlink.db")
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()
	if err := store.SaveSession("t1", state.Profile{UID: 7, Name: "Alice"}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	return path
}

func TestLogoutClearsSession(t *testing.T) {
	path := seedStore(t)

	code, out, errOut := runWithArgs([]string{"chatlink", "logout", "--db", path})
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Logged out") {
		t.Fatalf("expected logout output, got %q", out)
	}

	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, ok, _ := store.GetToken(); ok {
		t.Error("token survived logout")
	}
	if ok, _ := store.HasProfile(); ok {
		t.Error("profile survived logout")
	}

	code, out, _ = runWithArgs([]string{"chatlink", "logout", "--db", path})
	if code != 0 || !strings.Contains(out, "Not logged in") {
		t.Fatalf("second logout = %d %q", code, out)
	}
}

func TestLogoutMissingDatabase(t *testing.T) {
	code, _, errOut := runWithArgs([]string{"chatlink", "logout", "--db", filepath.Join(t.TempDir(), "none.db")})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(errOut, "no client data") {
		t.Fatalf("expected missing data error, got %q", errOut)
	}
}

func TestAuditListsLogout(t *testing.T) {
	path := seedStore(t)
	runWithArgs([]string{"chatlink", "logout", "--db", path})

	code, out, errOut := runWithArgs([]string{"chatlink", "audit", "--db", path})
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, errOut)
	}
	if !strings.Contains(out, storage.AuditLogout) || !strings.Contains(out, "uid=7") {
		t.Fatalf("expected logout entry, got %q", out)
	}
}

func TestAuditInvalidLimit(t *testing.T) {
	code, _, _ := runWithArgs([]string{"chatlink", "audit", "--limit", "0"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}
