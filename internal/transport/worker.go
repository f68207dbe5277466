// Package transport runs the websocket in its own goroutine.
//
// The rest of the client never touches the connection. It talks to the
// Worker with transport envelopes only: it posts initWS and message lines,
// and reads back open, close, error and message lines. No state is shared
// across that boundary.
package transport

import (
	"context"
	"crypto/tls"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/chatlink/client/internal/envelope"
	apperrors "github.com/chatlink/client/internal/errors"
)

const (
	// lineBufferSize is the capacity of the inbox and outbox.
	lineBufferSize = 256

	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// maxFrameSize caps inbound frames: 512KB.
	maxFrameSize = 512 * 1024
)

// Options configures a Worker.
type Options struct {
	// URL is the websocket endpoint. The credential is added as ?token=.
	URL string

	// HandshakeTimeout bounds the dial. Zero means 10s.
	HandshakeTimeout time.Duration

	// HeartbeatInterval is the period of heartbeat frames. Zero disables them.
	HeartbeatInterval time.Duration

	// SendRate and SendBurst throttle outbound frames. Zero rate means unlimited.
	SendRate  float64
	SendBurst int

	// TLSConfig is used for wss:// endpoints. Nil means the library default.
	TLSConfig *tls.Config

	Logger zerolog.Logger
}

// Worker owns one websocket at a time.
type Worker struct {
	opts    Options
	logger  zerolog.Logger
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	inbox  chan string
	outbox chan string
	reads  chan readEvent

	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}

	// Owned by the run goroutine.
	conn   *websocket.Conn
	connID string
}

// readEvent is produced by a per-connection reader goroutine.
type readEvent struct {
	connID string
	data   []byte
	err    error
}

// New creates a Worker. Call Start to run it.
func New(opts Options) *Worker {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}

	limit := rate.Inf
	burst := opts.SendBurst
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
	}
	if burst <= 0 {
		burst = 1
	}

	return &Worker{
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "transport").Logger(),
		dialer:  &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout, TLSClientConfig: opts.TLSConfig},
		limiter: rate.NewLimiter(limit, burst),
		inbox:   make(chan string, lineBufferSize),
		outbox:  make(chan string, lineBufferSize),
		reads:   make(chan readEvent, lineBufferSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the worker goroutine. It exits when ctx is cancelled or
// Close is called.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Post hands one transport envelope to the worker.
// Lines posted after Close are discarded.
func (w *Worker) Post(line string) {
	select {
	case w.inbox <- line:
	case <-w.done:
	}
}

// Lines returns the worker's outbound envelopes.
func (w *Worker) Lines() <-chan string {
	return w.outbox
}

// Close stops the worker and closes any live connection.
// It is safe to call more than once.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
	})
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.stopped
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.stopped)
	defer w.dropConn(false)

	var heartbeat <-chan time.Time
	if w.opts.HeartbeatInterval > 0 {
		ticker := time.NewTicker(w.opts.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case line := <-w.inbox:
			w.handleLine(ctx, line)

		case ev := <-w.reads:
			if ev.connID != w.connID {
				// A reader from a replaced connection.
				continue
			}
			if ev.err != nil {
				if websocket.IsUnexpectedCloseError(ev.err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure) {
					w.logger.Warn().Err(ev.err).Str("conn", w.connID).Msg("read error")
				}
				w.dropConn(true)
				continue
			}
			w.emit(ctx, envelope.EncodeData(string(ev.data)))

		case <-heartbeat:
			if w.conn != nil {
				w.write(ctx, []byte(envelope.HeartbeatFrame))
			}
		}
	}
}

func (w *Worker) handleLine(ctx context.Context, line string) {
	c, err := envelope.DecodeControl(line)
	if err != nil {
		w.logger.Error().Err(err).Msg("discarding malformed control line")
		return
	}

	switch c.Type {
	case envelope.TypeInitWS:
		token, ok, err := c.Token()
		if err != nil {
			w.logger.Error().Err(err).Msg("discarding initWS")
			return
		}
		w.connect(ctx, token, ok)

	case envelope.TypeMessage:
		if w.conn == nil {
			w.logger.Warn().Int("bytes", len(c.Value)).Msg("no live connection, dropping frame")
			return
		}
		w.write(ctx, c.Value)

	default:
		w.logger.Warn().Str("type", c.Type).Msg("unknown control type")
	}
}

// connect replaces any live connection with a new one.
// The replaced connection is torn down without a close signal since the
// caller asked for it.
func (w *Worker) connect(ctx context.Context, token string, hasToken bool) {
	w.dropConn(false)

	target, err := buildURL(w.opts.URL, token, hasToken)
	if err != nil {
		w.logger.Error().Err(err).Str("url", w.opts.URL).Msg("invalid server url")
		w.emit(ctx, envelope.EncodeSignal(envelope.TypeError))
		return
	}

	connID := uuid.New().String()
	w.logger.Info().Str("conn", connID).Str("url", w.opts.URL).Bool("token", hasToken).Msg("connecting")

	dialCtx, cancel := context.WithTimeout(ctx, w.opts.HandshakeTimeout)
	defer cancel()

	conn, _, err := w.dialer.DialContext(dialCtx, target, nil)
	if err != nil {
		w.logger.Warn().Err(apperrors.DialFailed(w.opts.URL, err)).Str("conn", connID).Msg("dial failed")
		w.emit(ctx, envelope.EncodeSignal(envelope.TypeError))
		return
	}

	conn.SetReadLimit(maxFrameSize)
	w.conn = conn
	w.connID = connID
	go w.readPump(conn, connID)

	w.logger.Info().Str("conn", connID).Msg("connected")
	w.emit(ctx, envelope.EncodeSignal(envelope.TypeOpen))
}

// readPump forwards frames from one connection until it fails.
func (w *Worker) readPump(conn *websocket.Conn, connID string) {
	for {
		_, data, err := conn.ReadMessage()
		select {
		case w.reads <- readEvent{connID: connID, data: data, err: err}:
		case <-w.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (w *Worker) write(ctx context.Context, frame []byte) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		w.logger.Warn().Err(err).Str("conn", w.connID).Msg("write error")
		w.dropConn(true)
	}
}

// dropConn closes the live connection, if any. With signal set the engine
// is told the channel closed.
func (w *Worker) dropConn(signal bool) {
	if w.conn == nil {
		return
	}
	w.conn.SetWriteDeadline(time.Now().Add(time.Second))
	w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.conn.Close()
	w.logger.Info().Str("conn", w.connID).Msg("connection closed")
	w.conn = nil
	w.connID = ""

	if signal {
		w.emit(context.Background(), envelope.EncodeSignal(envelope.TypeClose))
	}
}

func (w *Worker) emit(ctx context.Context, line string) {
	select {
	case w.outbox <- line:
	case <-ctx.Done():
	case <-w.done:
	}
}

func buildURL(raw, token string, hasToken bool) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if hasToken {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
