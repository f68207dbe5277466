// Package reconnect decides when to re-open the channel.
//
// Reconnection is driven by the user coming back, not by timers: a lost
// channel stays down until Visible is called.
package reconnect

import (
	"sync"

	"github.com/rs/zerolog"
)

// State is the policy's view of the channel.
type State int

const (
	StateNeverConnected State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateNeverConnected:
		return "never_connected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Opener opens a channel with the current credential.
type Opener interface {
	Open()
}

// Alert is the attention indicator raised for unseen messages.
type Alert interface {
	Clear()
}

// Policy tracks the channel lifecycle and issues opens.
type Policy struct {
	opener Opener
	alert  Alert
	logger zerolog.Logger

	mu    sync.Mutex
	state State
}

// New creates a policy. alert may be nil.
func New(opener Opener, alert Alert, logger zerolog.Logger) *Policy {
	return &Policy{
		opener: opener,
		alert:  alert,
		logger: logger.With().Str("component", "reconnect").Logger(),
	}
}

// State returns the current policy state.
func (p *Policy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start opens the first channel. Later calls are ignored.
func (p *Policy) Start() {
	if !p.transition(StateNeverConnected, StateConnecting) {
		return
	}
	p.logger.Debug().Msg("initial open")
	p.opener.Open()
}

// Ready records that the channel became ready.
func (p *Policy) Ready() {
	p.mu.Lock()
	p.state = StateConnected
	p.mu.Unlock()
}

// Closed records that the channel was lost.
func (p *Policy) Closed() {
	p.mu.Lock()
	p.state = StateDisconnected
	p.mu.Unlock()
}

// Reopening records an open issued outside the policy, such as after logout.
func (p *Policy) Reopening() {
	p.mu.Lock()
	p.state = StateConnecting
	p.mu.Unlock()
}

// Visible handles the user returning. The attention alert is always cleared;
// a disconnected channel is re-opened exactly once.
func (p *Policy) Visible() {
	if p.alert != nil {
		p.alert.Clear()
	}
	if !p.transition(StateDisconnected, StateConnecting) {
		return
	}
	p.logger.Info().Msg("reconnecting on visibility")
	p.opener.Open()
}

func (p *Policy) transition(from, to State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != from {
		return false
	}
	p.state = to
	return true
}
