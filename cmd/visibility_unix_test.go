//go:build linux || darwin || freebsd || netbsd || openbsd

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func notATerminal(t *testing.T) int {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "stdin"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return int(f.Fd())
}

func TestInForeground_NoTerminal(t *testing.T) {
	if !inForeground(notATerminal(t)) {
		t.Error("inForeground = false without a controlling terminal")
	}
}

func TestWatchVisibility_SIGCONT(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := make(chan struct{}, 1)
	watchVisibility(ctx, notATerminal(t), func() {
		select {
		case called <- struct{}{}:
		default:
		}
	})

	if err := unix.Kill(unix.Getpid(), unix.SIGCONT); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("SIGCONT did not count as visibility")
	}
}
