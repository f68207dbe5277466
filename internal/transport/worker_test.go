package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chatlink/client/internal/envelope"
)

// testServer is a websocket endpoint that records what the client sent.
type testServer struct {
	ts       *httptest.Server
	tokens   chan string
	frames   chan string
	conns    chan *websocket.Conn
	upgrader websocket.Upgrader
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return startTestServer(t, httptest.NewServer)
}

func newTLSTestServer(t *testing.T) *testServer {
	t.Helper()
	return startTestServer(t, httptest.NewTLSServer)
}

func startTestServer(t *testing.T, serve func(http.Handler) *httptest.Server) *testServer {
	t.Helper()
	s := &testServer{
		tokens: make(chan string, 8),
		frames: make(chan string, 64),
		conns:  make(chan *websocket.Conn, 8),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.ts = serve(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.tokens <- r.URL.Query().Get("token")
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.frames <- string(data)
		}
	}))
	t.Cleanup(s.ts.Close)
	return s
}

func (s *testServer) url() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http")
}

func startWorker(t *testing.T, opts Options) *Worker {
	t.Helper()
	opts.Logger = zerolog.Nop()
	w := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	t.Cleanup(func() {
		w.Close()
		cancel()
		<-w.Done()
	})
	return w
}

func nextLine(t *testing.T, w *Worker) envelope.Control {
	t.Helper()
	select {
	case line := <-w.Lines():
		c, err := envelope.DecodeControl(line)
		if err != nil {
			t.Fatalf("worker emitted malformed line %q: %v", line, err)
		}
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for worker line")
	}
	return envelope.Control{}
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
	var zero T
	return zero
}

func TestWorker_OpenWithToken(t *testing.T) {
	srv := newTestServer(t)
	w := startWorker(t, Options{URL: srv.url()})

	w.Post(envelope.EncodeInit("tok-1", true))

	if got := recv(t, srv.tokens, "token"); got != "tok-1" {
		t.Errorf("server saw token %q, want tok-1", got)
	}
	if c := nextLine(t, w); c.Type != envelope.TypeOpen {
		t.Errorf("first line = %q, want open", c.Type)
	}
}

func TestWorker_OpenWithoutToken(t *testing.T) {
	srv := newTestServer(t)
	w := startWorker(t, Options{URL: srv.url()})

	w.Post(envelope.EncodeInit("", false))

	if got := recv(t, srv.tokens, "token"); got != "" {
		t.Errorf("server saw token %q, want none", got)
	}
	if c := nextLine(t, w); c.Type != envelope.TypeOpen {
		t.Errorf("first line = %q, want open", c.Type)
	}
}

func TestWorker_MessageBothWays(t *testing.T) {
	srv := newTestServer(t)
	w := startWorker(t, Options{URL: srv.url()})

	w.Post(envelope.EncodeInit("", false))
	nextLine(t, w)
	conn := recv(t, srv.conns, "server conn")

	line, err := envelope.EncodeMessage(envelope.Request{Type: envelope.RequestLoginQrCode})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	w.Post(line)
	if got := recv(t, srv.frames, "frame"); got != `{"type":1}` {
		t.Errorf("server frame = %s, want {\"type\":1}", got)
	}

	raw := `{"type":1,"data":{"loginUrl":"http://qr"}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	c := nextLine(t, w)
	if c.Type != envelope.TypeMessage {
		t.Fatalf("line type = %q, want message", c.Type)
	}
	text, err := c.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != raw {
		t.Errorf("data = %s, want %s", text, raw)
	}
}

func TestWorker_ServerCloseEmitsClose(t *testing.T) {
	srv := newTestServer(t)
	w := startWorker(t, Options{URL: srv.url()})

	w.Post(envelope.EncodeInit("", false))
	nextLine(t, w)
	conn := recv(t, srv.conns, "server conn")

	conn.Close()

	if c := nextLine(t, w); c.Type != envelope.TypeClose {
		t.Errorf("line = %q, want close", c.Type)
	}
}

func TestWorker_DialFailureEmitsError(t *testing.T) {
	srv := newTestServer(t)
	u := srv.url()
	srv.ts.Close()

	w := startWorker(t, Options{URL: u, HandshakeTimeout: time.Second})
	w.Post(envelope.EncodeInit("", false))

	if c := nextLine(t, w); c.Type != envelope.TypeError {
		t.Errorf("line = %q, want error", c.Type)
	}
}

func TestWorker_TLS(t *testing.T) {
	srv := newTLSTestServer(t)
	tlsConfig := srv.ts.Client().Transport.(*http.Transport).TLSClientConfig
	w := startWorker(t, Options{URL: srv.url(), TLSConfig: tlsConfig})

	w.Post(envelope.EncodeInit("tok-tls", true))

	if got := recv(t, srv.tokens, "token"); got != "tok-tls" {
		t.Errorf("server saw token %q, want tok-tls", got)
	}
	if c := nextLine(t, w); c.Type != envelope.TypeOpen {
		t.Errorf("first line = %q, want open", c.Type)
	}
}

func TestWorker_TLSUntrustedEmitsError(t *testing.T) {
	srv := newTLSTestServer(t)
	w := startWorker(t, Options{URL: srv.url(), HandshakeTimeout: time.Second})

	w.Post(envelope.EncodeInit("", false))

	if c := nextLine(t, w); c.Type != envelope.TypeError {
		t.Errorf("line = %q, want error", c.Type)
	}
}

func TestWorker_Heartbeat(t *testing.T) {
	srv := newTestServer(t)
	w := startWorker(t, Options{URL: srv.url(), HeartbeatInterval: 20 * time.Millisecond})

	w.Post(envelope.EncodeInit("", false))
	nextLine(t, w)

	if got := recv(t, srv.frames, "heartbeat"); got != envelope.HeartbeatFrame {
		t.Errorf("frame = %s, want %s", got, envelope.HeartbeatFrame)
	}
}

func TestWorker_MessageWithoutConnectionDropped(t *testing.T) {
	srv := newTestServer(t)
	w := startWorker(t, Options{URL: srv.url()})

	line, _ := envelope.EncodeMessage(map[string]int{"n": 1})
	w.Post(line)
	w.Post("garbage")

	w.Post(envelope.EncodeInit("", false))
	if c := nextLine(t, w); c.Type != envelope.TypeOpen {
		t.Fatalf("line = %q, want open", c.Type)
	}

	select {
	case f := <-srv.frames:
		t.Errorf("frame posted before open was delivered: %s", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWorker_ReinitReplacesConnection(t *testing.T) {
	srv := newTestServer(t)
	w := startWorker(t, Options{URL: srv.url()})

	w.Post(envelope.EncodeInit("", false))
	nextLine(t, w)
	recv(t, srv.tokens, "first token")

	w.Post(envelope.EncodeInit("second", true))
	if got := recv(t, srv.tokens, "second token"); got != "second" {
		t.Errorf("token = %q, want second", got)
	}
	if c := nextLine(t, w); c.Type != envelope.TypeOpen {
		t.Errorf("line after reinit = %q, want open (no close for a replaced conn)", c.Type)
	}
}

func TestBuildURL(t *testing.T) {
	got, err := buildURL("ws://host:1/ws?room=2", "a b", true)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	if got != "ws://host:1/ws?room=2&token=a+b" {
		t.Errorf("buildURL = %s", got)
	}

	got, _ = buildURL("ws://host:1/ws", "", false)
	if got != "ws://host:1/ws" {
		t.Errorf("buildURL without token = %s", got)
	}
}
