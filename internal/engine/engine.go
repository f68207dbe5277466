// Package engine wires the connection channel, outbound queue, reconnection
// policy, session and dispatcher into one client.
//
// An Engine applies every lifecycle signal, inbound frame, restoration
// result and login timeout from a single goroutine, in arrival order.
// Public methods may be called from any goroutine.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatlink/client/internal/channel"
	"github.com/chatlink/client/internal/dispatch"
	"github.com/chatlink/client/internal/envelope"
	apperrors "github.com/chatlink/client/internal/errors"
	"github.com/chatlink/client/internal/queue"
	"github.com/chatlink/client/internal/reconnect"
	"github.com/chatlink/client/internal/session"
	"github.com/chatlink/client/internal/state"
)

// Storage is the persistence the engine needs: credential and profile for
// the session, profile purge for the channel and the audit trail.
type Storage interface {
	session.Credentials
	session.Auditor
	HasProfile() (bool, error)
	ClearProfile() error
}

// Alert is the attention indicator.
type Alert interface {
	Flash()
	Clear()
}

// Options configures an Engine.
type Options struct {
	// Port is the transport worker.
	Port channel.Port

	// Storage persists the credential, profile and audit trail.
	Storage Storage

	// Fetcher loads the profile for a credential.
	Fetcher session.ProfileFetcher

	// Notifier surfaces toasts, notifications and QR codes.
	Notifier dispatch.Notifier

	// Alert is flashed for unseen messages. Nil disables it.
	Alert Alert

	// RestoreTimeout bounds session restoration. Zero means 10s.
	RestoreTimeout time.Duration

	// LoginTimeout is the login watchdog period. Zero disables it.
	LoginTimeout time.Duration

	// HistoryLimit bounds the in-memory message history.
	HistoryLimit int

	Logger zerolog.Logger
}

// Engine is the client's ownership root. Build one per process.
type Engine struct {
	logger zerolog.Logger
	opts   Options

	proxy    *channel.Proxy
	queue    *queue.Queue
	policy   *reconnect.Policy
	session  *session.Store
	dispatch *dispatch.Dispatcher
	watchdog *watchdog
	notifier dispatch.Notifier

	login   *state.LoginStore
	history *state.ChatStore
	roster  *state.GroupStore
	global  *state.GlobalStore
	router  *state.Router

	visible chan struct{}
	cmds    chan func()
	stopped chan struct{}
	running atomic.Bool

	// qrWanted is set once the user asked for a login code.
	qrWanted atomic.Bool

	// Owned by the loop goroutine.
	ready        bool
	restored     bool
	readyPending bool
}

// New builds an Engine. Nothing touches the network until Run.
func New(opts Options) *Engine {
	if opts.RestoreTimeout <= 0 {
		opts.RestoreTimeout = 10 * time.Second
	}
	alert := opts.Alert
	if alert == nil {
		alert = nopAlert{}
	}

	e := &Engine{
		logger:   opts.Logger.With().Str("component", "engine").Logger(),
		opts:     opts,
		notifier: opts.Notifier,
		watchdog: newWatchdog(),
		login:    state.NewLoginStore(),
		history:  state.NewChatStore(opts.HistoryLimit),
		roster:   state.NewGroupStore(),
		global:   state.NewGlobalStore(),
		visible:  make(chan struct{}, 1),
		cmds:     make(chan func()),
		stopped:  make(chan struct{}),
	}

	e.proxy = channel.New(opts.Port, opts.Storage, opts.Logger)
	e.queue = queue.New(e.proxy, opts.Logger)

	start := state.RouteHome
	if _, ok, _ := opts.Storage.GetToken(); !ok {
		start = state.RouteLogin
	}
	e.router = state.NewRouter(start)

	e.session = session.New(session.Config{
		Credentials: opts.Storage,
		Fetcher:     opts.Fetcher,
		Navigator:   e.router,
		Auditor:     opts.Storage,
		Logger:      opts.Logger,
	})
	e.policy = reconnect.New(opener{e}, alert, opts.Logger)
	e.dispatch = dispatch.New(dispatch.Config{
		Session:  e.session,
		Login:    e.login,
		History:  e.history,
		Roster:   e.roster,
		Global:   e.global,
		Notifier: opts.Notifier,
		Router:   e.router,
		Alert:    alert,
		Watchdog: e.watchdog,
		Logger:   opts.Logger,
	})
	return e
}

// opener presents the current credential to the channel.
type opener struct{ e *Engine }

func (o opener) Open() {
	token, ok := o.e.session.Token()
	o.e.proxy.Open(token, ok)
}

type nopAlert struct{}

func (nopAlert) Flash() {}
func (nopAlert) Clear() {}

// Run starts restoration and the first open, then consumes events until ctx
// is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return apperrors.Internal("engine already running", nil)
	}
	defer close(e.stopped)

	go e.proxy.Run(ctx)

	restored := make(chan error, 1)
	go func() {
		rctx, cancel := context.WithTimeout(ctx, e.opts.RestoreTimeout)
		defer cancel()
		restored <- e.session.Restore(rctx)
	}()

	e.policy.Start()

	signals := e.proxy.Signals()
	for {
		select {
		case <-ctx.Done():
			e.watchdog.Disarm()
			return nil

		case sig := <-signals:
			e.handleSignal(sig)

		case err := <-restored:
			restored = nil
			e.onRestored(err)

		case <-e.visible:
			e.policy.Visible()

		case gen := <-e.watchdog.C():
			e.onLoginTimeout(gen)

		case fn := <-e.cmds:
			fn()
		}
	}
}

func (e *Engine) handleSignal(sig channel.Signal) {
	switch sig.Kind {
	case channel.SignalReady:
		if e.ready {
			e.logger.Debug().Msg("ignoring duplicate ready")
			return
		}
		e.ready = true
		e.policy.Ready()
		if !e.restored {
			// Hold the ready until restoration has settled.
			e.readyPending = true
			return
		}
		e.afterReady()

	case channel.SignalClosed:
		e.ready = false
		e.readyPending = false
		e.queue.Close()
		e.policy.Closed()

	case channel.SignalData:
		// Errors are logged by the dispatcher; the frame is dropped.
		_ = e.dispatch.Dispatch(sig.Raw)
	}
}

func (e *Engine) onRestored(err error) {
	e.restored = true
	if err != nil {
		e.logger.Warn().Err(err).Str("code", apperrors.GetCode(err)).Msg("restoration failed")
	}
	if e.readyPending {
		e.readyPending = false
		e.afterReady()
	}
}

// afterReady runs once per ready channel, after restoration has settled. The
// queue opens whether or not the session is signed in.
func (e *Engine) afterReady() {
	n, err := e.queue.Flush()
	if err != nil {
		e.logger.Warn().Err(err).Msg("flush failed")
		return
	}
	authenticated := e.session.IsAuthenticated()
	e.logger.Info().Int("flushed", n).Bool("authenticated", authenticated).Msg("channel ready")
	if authenticated {
		return
	}
	if e.qrWanted.Load() || e.login.QrCode() != "" {
		if err := e.sendQrRequest(); err != nil {
			e.logger.Warn().Err(err).Msg("failed to refresh login code")
		}
	}
}

func (e *Engine) onLoginTimeout(gen uint64) {
	if !e.watchdog.current(gen) {
		return
	}
	if e.session.IsAuthenticated() {
		return
	}
	err := apperrors.LoginTimeout()
	e.logger.Warn().Str("code", apperrors.GetCode(err)).Msg("login timed out")
	e.login.SetStatus(state.LoginInit)
	e.notifier.Error(apperrors.GetMessage(err))
}

// Send transmits v while the channel is ready and buffers it otherwise.
func (e *Engine) Send(v any) error {
	return e.queue.Send(v)
}

// Visible reports that the user came back. It may reconnect.
func (e *Engine) Visible() {
	select {
	case e.visible <- struct{}{}:
	default:
	}
}

// RequestLoginQrCode asks the server for a login challenge. When the channel
// is not ready the request is made as soon as it is.
func (e *Engine) RequestLoginQrCode() error {
	e.qrWanted.Store(true)
	e.watchdog.Arm(e.opts.LoginTimeout)
	if e.proxy.State() != channel.StateReady {
		e.logger.Info().Msg("login code requested while offline, will request on connect")
		return nil
	}
	return e.sendQrRequest()
}

func (e *Engine) sendQrRequest() error {
	return e.proxy.Send(envelope.Request{Type: envelope.RequestLoginQrCode})
}

// PasswordLogin submits credentials over the channel.
func (e *Engine) PasswordLogin(username, password string) error {
	if e.proxy.State() != channel.StateReady {
		return apperrors.NotReady("password login")
	}
	e.watchdog.Arm(e.opts.LoginTimeout)
	return e.proxy.Send(envelope.Request{
		Type: envelope.RequestPasswordLogin,
		Data: envelope.PasswordLoginData{Username: username, Password: password},
	})
}

// Logout clears the session and reopens the channel anonymously.
func (e *Engine) Logout() error {
	return e.do(func() error {
		e.queue.Close()
		e.watchdog.Disarm()
		e.qrWanted.Store(false)
		e.login.SetStatus(state.LoginInit)
		e.login.SetQrCode("")

		err := e.session.Logout()
		e.router.Push(state.RouteLogin)

		e.ready = false
		e.readyPending = false
		e.policy.Reopening()
		e.proxy.Open("", false)
		return err
	})
}

// do runs fn on the loop goroutine and returns its result. Outside Run, fn
// runs inline.
func (e *Engine) do(fn func() error) error {
	if !e.running.Load() {
		return fn()
	}
	result := make(chan error, 1)
	select {
	case e.cmds <- func() { result <- fn() }:
		return <-result
	case <-e.stopped:
		return fn()
	}
}

// State returns the channel state.
func (e *Engine) State() channel.State {
	return e.proxy.State()
}

// Status is a snapshot for display.
type Status struct {
	Channel       channel.State
	Reconnect     reconnect.State
	Authenticated bool
	Profile       state.Profile
	LoginStatus   state.LoginStatus
	Pending       int
	Route         string
	Room          state.Room
	OnlineNum     int
	Unread        int
}

// Status returns a snapshot of the client.
func (e *Engine) Status() Status {
	return Status{
		Channel:       e.proxy.State(),
		Reconnect:     e.policy.State(),
		Authenticated: e.session.IsAuthenticated(),
		Profile:       e.session.Profile(),
		LoginStatus:   e.login.Status(),
		Pending:       e.queue.Len(),
		Route:         e.router.Path(),
		Room:          e.global.CurrentRoom(),
		OnlineNum:     e.roster.OnlineNum(),
		Unread:        e.global.NewFriendUnread(),
	}
}

// Router returns the route controller.
func (e *Engine) Router() *state.Router { return e.router }

// History returns the message history.
func (e *Engine) History() *state.ChatStore { return e.history }

// Roster returns the current group roster.
func (e *Engine) Roster() *state.GroupStore { return e.roster }

// Global returns the cross-page state.
func (e *Engine) Global() *state.GlobalStore { return e.global }

// Session returns the session store.
func (e *Engine) Session() *session.Store { return e.session }
