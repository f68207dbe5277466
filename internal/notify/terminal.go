// Package notify surfaces chat events in a terminal: toasts, clickable
// notifications, login QR codes and the title-bar attention alert.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/skip2/go-qrcode"
)

// Terminal writes user-facing notices to a terminal.
type Terminal struct {
	mu        sync.Mutex
	w         io.Writer
	showQR    bool
	lastClick func()
	lastTitle string
}

// NewTerminal creates a notifier writing to w. When showQR is false login
// challenges are printed as plain URLs.
func NewTerminal(w io.Writer, showQR bool) *Terminal {
	return &Terminal{w: w, showQR: showQR}
}

// Success prints a success toast.
func (t *Terminal) Success(text string) {
	t.printf("[ok] %s\n", text)
}

// Error prints an error toast.
func (t *Terminal) Error(text string) {
	t.printf("[error] %s\n", text)
}

// Info prints a neutral line.
func (t *Terminal) Info(text string) {
	t.printf("%s\n", text)
}

// Notify prints a notification. onClick, when non-nil, becomes the action
// run by OpenLast.
func (t *Terminal) Notify(title, text string, onClick func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastClick = onClick
	t.lastTitle = title
	if onClick != nil {
		fmt.Fprintf(t.w, "[%s] %s (/open to view)\n", title, text)
		return
	}
	fmt.Fprintf(t.w, "[%s] %s\n", title, text)
}

// OpenLast runs the most recent notification's click action once.
// It reports the notification title and whether there was an action.
func (t *Terminal) OpenLast() (string, bool) {
	t.mu.Lock()
	fn, title := t.lastClick, t.lastTitle
	t.lastClick = nil
	t.mu.Unlock()

	if fn == nil {
		return "", false
	}
	fn()
	return title, true
}

// ShowQRCode renders a login challenge with a plain-text fallback.
func (t *Terminal) ShowQRCode(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	DisplayQRCode(t.w, url, t.showQR)
}

func (t *Terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, format, args...)
}

// DisplayQRCode shows a login URL as a QR code followed by the URL itself.
// With render false, or if encoding fails, only the URL is printed.
func DisplayQRCode(w io.Writer, url string, render bool) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         SCAN TO LOG IN")
	fmt.Fprintln(w, "===========================================")

	if render {
		// Medium error correction keeps the code small enough for a terminal.
		qr, err := qrcode.New(url, qrcode.Medium)
		if err != nil {
			fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		} else {
			fmt.Fprintln(w, "")
			fmt.Fprint(w, qr.ToSmallString(false))
		}
	}

	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintf(w, "  URL: %s\n", url)
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}
