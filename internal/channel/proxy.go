// Package channel is the engine's handle on the transport worker.
//
// The Proxy turns engine intent (open, send) into transport envelopes and
// turns the worker's envelopes back into three lifecycle signals: Ready,
// Closed and Data. It never retries; reconnecting is the caller's decision.
package channel

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatlink/client/internal/envelope"
	apperrors "github.com/chatlink/client/internal/errors"
)

// State is the channel lifecycle state.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "closed"
	}
}

// SignalKind identifies a lifecycle signal.
type SignalKind int

const (
	SignalReady SignalKind = iota + 1
	SignalClosed
	SignalData
)

func (k SignalKind) String() string {
	switch k {
	case SignalReady:
		return "ready"
	case SignalClosed:
		return "closed"
	case SignalData:
		return "data"
	default:
		return "unknown"
	}
}

// Signal is one notification raised to the engine.
type Signal struct {
	Kind SignalKind
	Raw  string // server frame, only for SignalData
}

// Port is the transport worker as seen by the proxy.
type Port interface {
	Post(line string)
	Lines() <-chan string
}

// ProfileCache is the locally cached identity. An anonymous open purges it
// so a logged-out client never shows the previous user.
type ProfileCache interface {
	HasProfile() (bool, error)
	ClearProfile() error
}

// Proxy owns the engine side of the transport boundary.
type Proxy struct {
	port    Port
	cache   ProfileCache
	logger  zerolog.Logger
	signals chan Signal

	mu    sync.Mutex
	state State
}

// New creates a Proxy over port. cache may be nil.
func New(port Port, cache ProfileCache, logger zerolog.Logger) *Proxy {
	return &Proxy{
		port:    port,
		cache:   cache,
		logger:  logger.With().Str("component", "channel").Logger(),
		signals: make(chan Signal, 64),
	}
}

// Signals returns the lifecycle signal stream consumed by the engine.
func (p *Proxy) Signals() <-chan Signal {
	return p.signals
}

// State returns the current channel state.
func (p *Proxy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Open asks the transport to establish a channel, presenting the credential
// out of band. It does not wait for the result.
func (p *Proxy) Open(token string, ok bool) {
	if !ok {
		p.purgeStaleProfile()
	}

	p.mu.Lock()
	if p.state == StateReady {
		// The worker replaces a live conn without reporting a close.
		p.logger.Debug().Msg("replacing ready channel")
	}
	p.state = StateConnecting
	p.mu.Unlock()

	p.logger.Debug().Bool("token", ok).Msg("opening channel")
	p.port.Post(envelope.EncodeInit(token, ok))
}

// Send encodes v and forwards it to the transport.
// It refuses to transmit unless the channel is ready.
func (p *Proxy) Send(v any) error {
	if p.State() != StateReady {
		return apperrors.NotReady("send")
	}
	line, err := envelope.EncodeMessage(v)
	if err != nil {
		return err
	}
	p.port.Post(line)
	return nil
}

// Run pumps worker envelopes into signals until ctx is cancelled or the
// worker's line stream closes.
func (p *Proxy) Run(ctx context.Context) {
	lines := p.port.Lines()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			sig, ok := p.translate(line)
			if !ok {
				continue
			}
			select {
			case p.signals <- sig:
			case <-ctx.Done():
				return
			}
		}
	}
}

// translate applies the state change for one worker line and returns the
// signal to raise.
func (p *Proxy) translate(line string) (Signal, bool) {
	c, err := envelope.DecodeControl(line)
	if err != nil {
		p.logger.Error().Err(err).Msg("dropping malformed transport line")
		return Signal{}, false
	}

	switch c.Type {
	case envelope.TypeOpen:
		p.setState(StateReady)
		return Signal{Kind: SignalReady}, true

	case envelope.TypeClose, envelope.TypeError:
		p.setState(StateClosed)
		p.logger.Info().Str("reason", c.Type).Msg("channel closed")
		return Signal{Kind: SignalClosed}, true

	case envelope.TypeMessage:
		raw, err := c.Text()
		if err != nil {
			p.logger.Error().Err(err).Msg("dropping undecodable message line")
			return Signal{}, false
		}
		return Signal{Kind: SignalData, Raw: raw}, true

	default:
		p.logger.Warn().Str("type", c.Type).Msg("unknown transport line")
		return Signal{}, false
	}
}

func (p *Proxy) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Proxy) purgeStaleProfile() {
	if p.cache == nil {
		return
	}
	has, err := p.cache.HasProfile()
	if err != nil {
		p.logger.Warn().Err(err).Msg("profile cache check failed")
		return
	}
	if !has {
		return
	}
	if err := p.cache.ClearProfile(); err != nil {
		p.logger.Warn().Err(err).Msg("failed to purge cached profile")
		return
	}
	p.logger.Info().Msg("purged cached profile for anonymous session")
}
