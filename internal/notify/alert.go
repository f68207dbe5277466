package notify

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultIdle is how long after the last interaction the user is considered
// away.
const DefaultIdle = 30 * time.Second

// DefaultBlink is the period of the title flash.
const DefaultBlink = time.Second

// TitleAlert flashes the terminal title while messages arrive unseen: the
// title alternates between "(n new) title" and the plain title until Clear.
// The user counts as present for Idle after each Clear or Touch.
type TitleAlert struct {
	mu       sync.Mutex
	w        io.Writer
	title    string
	idle     time.Duration
	blink    time.Duration
	now      func() time.Time
	lastSeen time.Time
	unseen   int
	lit      bool
	stop     chan struct{} // non-nil while blinking
}

// NewTitleAlert creates an alert writing OSC title sequences to w.
func NewTitleAlert(w io.Writer, title string, idle time.Duration) *TitleAlert {
	if idle <= 0 {
		idle = DefaultIdle
	}
	a := &TitleAlert{w: w, title: title, idle: idle, blink: DefaultBlink, now: time.Now}
	a.lastSeen = a.now()
	return a
}

// Touch records user interaction without clearing the alert.
func (a *TitleAlert) Touch() {
	a.mu.Lock()
	a.lastSeen = a.now()
	a.mu.Unlock()
}

// Focused reports whether the user interacted within the idle window.
func (a *TitleAlert) Focused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.focusedLocked()
}

// Flash raises the alert unless the user is present.
func (a *TitleAlert) Flash() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.focusedLocked() {
		return
	}
	a.unseen++
	a.lit = true
	a.setTitleLocked(a.alertTitleLocked())
	if a.stop == nil {
		a.stop = make(chan struct{})
		go a.blinkLoop(a.stop)
	}
}

func (a *TitleAlert) blinkLoop(stop chan struct{}) {
	ticker := time.NewTicker(a.blink)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.mu.Lock()
			if a.stop != stop {
				a.mu.Unlock()
				return
			}
			a.lit = !a.lit
			if a.lit {
				a.setTitleLocked(a.alertTitleLocked())
			} else {
				a.setTitleLocked(a.title)
			}
			a.mu.Unlock()
		}
	}
}

// Clear drops the alert and restores the title. It also counts as
// interaction.
func (a *TitleAlert) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSeen = a.now()
	if a.stop != nil {
		close(a.stop)
		a.stop = nil
	}
	if a.unseen == 0 {
		return
	}
	a.unseen = 0
	a.lit = false
	a.setTitleLocked(a.title)
}

// Unseen returns the number of messages flashed since the last Clear.
func (a *TitleAlert) Unseen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unseen
}

func (a *TitleAlert) focusedLocked() bool {
	return a.now().Sub(a.lastSeen) < a.idle
}

func (a *TitleAlert) alertTitleLocked() string {
	return fmt.Sprintf("(%d new) %s", a.unseen, a.title)
}

func (a *TitleAlert) setTitleLocked(title string) {
	if a.w == nil {
		return
	}
	fmt.Fprintf(a.w, "\x1b]0;%s\x07", title)
}
