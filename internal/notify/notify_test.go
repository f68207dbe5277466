package notify

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTerminal_Toasts(t *testing.T) {
	var buf bytes.Buffer
	n := NewTerminal(&buf, false)

	n.Success("Logged in")
	n.Error("bad password")

	out := buf.String()
	if !strings.Contains(out, "[ok] Logged in") || !strings.Contains(out, "[error] bad password") {
		t.Errorf("output = %q", out)
	}
}

func TestTerminal_NotifyOpenLast(t *testing.T) {
	var buf bytes.Buffer
	n := NewTerminal(&buf, false)

	if _, ok := n.OpenLast(); ok {
		t.Fatal("OpenLast with no notification reported an action")
	}

	clicks := 0
	n.Notify("New friend", "request", func() { clicks++ })
	if !strings.Contains(buf.String(), "/open") {
		t.Errorf("notification missing /open hint: %q", buf.String())
	}

	title, ok := n.OpenLast()
	if !ok || title != "New friend" || clicks != 1 {
		t.Errorf("OpenLast = %q, %v; clicks = %d", title, ok, clicks)
	}
	if _, ok := n.OpenLast(); ok || clicks != 1 {
		t.Error("click action ran twice")
	}
}

func TestDisplayQRCode(t *testing.T) {
	var plain, rendered bytes.Buffer
	DisplayQRCode(&plain, "https://chat.example/qr/abc", false)
	DisplayQRCode(&rendered, "https://chat.example/qr/abc", true)

	if !strings.Contains(plain.String(), "URL: https://chat.example/qr/abc") {
		t.Errorf("plain output = %q", plain.String())
	}
	if rendered.Len() <= plain.Len() {
		t.Error("rendered output is not larger than the plain fallback")
	}
	if !strings.ContainsAny(rendered.String(), "█▀▄") {
		t.Error("rendered output has no QR blocks")
	}
}

func TestTitleAlert(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewTitleAlert(&buf, "chatlink", time.Minute)
	a.now = func() time.Time { return now }
	a.blink = time.Hour
	a.Touch()

	a.Flash()
	if a.Unseen() != 0 || buf.Len() != 0 {
		t.Fatal("flashed while the user was present")
	}

	now = now.Add(2 * time.Minute)
	if a.Focused() {
		t.Fatal("still focused after idle window")
	}
	a.Flash()
	a.Flash()
	if a.Unseen() != 2 {
		t.Errorf("Unseen() = %d, want 2", a.Unseen())
	}
	if !strings.Contains(buf.String(), "(2 new) chatlink") {
		t.Errorf("title output = %q", buf.String())
	}

	buf.Reset()
	a.Clear()
	if a.Unseen() != 0 {
		t.Errorf("Unseen() after clear = %d", a.Unseen())
	}
	if buf.String() != "\x1b]0;chatlink\x07" {
		t.Errorf("restore output = %q", buf.String())
	}
	if !a.Focused() {
		t.Error("Clear did not count as interaction")
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTitleAlert_Blinks(t *testing.T) {
	var out lockedBuffer
	a := NewTitleAlert(&out, "chatlink", time.Millisecond)
	a.blink = 10 * time.Millisecond
	time.Sleep(5 * time.Millisecond)

	a.Flash()
	const lit = "\x1b]0;(1 new) chatlink\x07"
	const plain = "\x1b]0;chatlink\x07"
	want := lit + plain + lit
	deadline := time.Now().Add(2 * time.Second)
	for !strings.HasPrefix(out.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("title output = %q, want it to start with %q", out.String(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}

	a.Clear()
	settled := out.String()
	if !strings.HasSuffix(settled, plain) {
		t.Errorf("title after Clear = %q, want plain title last", settled)
	}
	time.Sleep(50 * time.Millisecond)
	if got := out.String(); got != settled {
		t.Errorf("title kept changing after Clear: %q", got[len(settled):])
	}
}
