package engine

import (
	"sync"
	"time"
)

// watchdog is the login timeout. Expiry is delivered on C as the generation
// that was armed; a stale generation means the timer was disarmed or
// re-armed after it fired.
type watchdog struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	c     chan uint64
}

func newWatchdog() *watchdog {
	return &watchdog{c: make(chan uint64, 1)}
}

// Arm (re)starts the timer.
func (w *watchdog) Arm(d time.Duration) {
	if d <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = time.AfterFunc(d, func() {
		select {
		case w.c <- gen:
		default:
		}
	})
}

// Disarm cancels a pending expiry.
func (w *watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.gen++
}

// Armed reports whether a timer is pending.
func (w *watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil
}

// current reports whether gen is the live arming, and consumes it.
func (w *watchdog) current(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen || w.timer == nil {
		return false
	}
	w.timer = nil
	return true
}

// C delivers expiries.
func (w *watchdog) C() <-chan uint64 {
	return w.c
}
