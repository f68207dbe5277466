package devserver_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatlink/client/internal/api"
	"github.com/chatlink/client/internal/devserver"
	"github.com/chatlink/client/internal/engine"
	"github.com/chatlink/client/internal/envelope"
	"github.com/chatlink/client/internal/reconnect"
	"github.com/chatlink/client/internal/state"
	"github.com/chatlink/client/internal/storage"
	"github.com/chatlink/client/internal/transport"
)

type quietNotifier struct{}

func (quietNotifier) Success(string)                {}
func (quietNotifier) Error(string)                  {}
func (quietNotifier) Notify(string, string, func()) {}
func (quietNotifier) ShowQRCode(string)             {}

type client struct {
	engine *engine.Engine
	db     *storage.SQLiteStore
	stop   func()
}

func startClient(t *testing.T, ts *httptest.Server, db *storage.SQLiteStore) *client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	worker := transport.New(transport.Options{
		URL:    "ws" + strings.TrimPrefix(ts.URL, "http") + "/",
		Logger: zerolog.Nop(),
	})
	worker.Start(ctx)

	eng := engine.New(engine.Options{
		Port:         worker,
		Storage:      db,
		Fetcher:      api.NewClient(ts.URL, time.Second, zerolog.Nop()),
		Notifier:     quietNotifier{},
		LoginTimeout: 5 * time.Second,
		Logger:       zerolog.Nop(),
	})
	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()

	c := &client{engine: eng, db: db}
	c.stop = func() {
		cancel()
		worker.Close()
		<-done
	}
	t.Cleanup(c.stop)
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	db, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func chat(text string) envelope.ChatMessageRequest {
	return envelope.ChatMessageRequest{
		RoomID:  1,
		MsgType: state.MsgText,
		Body:    []byte(`{"content":"` + text + `"}`),
	}
}

func TestEndToEnd_QrLoginThenChat(t *testing.T) {
	srv := devserver.New(devserver.Options{LoginDelay: 20 * time.Millisecond, Logger: zerolog.Nop()})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()

	db := newStore(t)
	c := startClient(t, ts, db)

	if err := c.engine.RequestLoginQrCode(); err != nil {
		t.Fatalf("RequestLoginQrCode: %v", err)
	}

	waitFor(t, "sign-in", func() bool { return c.engine.Status().Authenticated })
	if token, ok, _ := db.GetToken(); !ok || token == "" {
		t.Fatal("credential not persisted")
	}

	c.engine.Send(chat("early"))
	c.engine.Send(chat("late"))
	waitFor(t, "echo", func() bool { return c.engine.History().Len() >= 2 })
	msgs := c.engine.History().Messages()
	if msgs[0].Text() != "early" || msgs[1].Text() != "late" {
		t.Errorf("history = %q, %q", msgs[0].Text(), msgs[1].Text())
	}
	if c.engine.Router().Path() != state.RouteHome {
		t.Errorf("route = %q", c.engine.Router().Path())
	}
}

func TestEndToEnd_RestoresStoredSession(t *testing.T) {
	srv := devserver.New(devserver.Options{Logger: zerolog.Nop()})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()

	token, u := srv.Register("frank")
	db := newStore(t)
	if err := db.SaveSession(token, state.Profile{UID: u.UID}); err != nil {
		t.Fatal(err)
	}

	c := startClient(t, ts, db)
	waitFor(t, "restored", func() bool {
		st := c.engine.Status()
		return st.Authenticated && st.Profile.Name == "frank"
	})

	c.engine.Send(chat("back"))
	waitFor(t, "echo", func() bool { return c.engine.History().Len() == 1 })
}

func TestEndToEnd_DropReconnectsOnVisible(t *testing.T) {
	srv := devserver.New(devserver.Options{Logger: zerolog.Nop()})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()

	token, _ := srv.Register("gina")
	db := newStore(t)
	db.SaveSession(token, state.Profile{})
	c := startClient(t, ts, db)
	waitFor(t, "signed in", func() bool { return c.engine.Status().Authenticated })

	srv.DisconnectAll()
	waitFor(t, "disconnected", func() bool {
		return c.engine.Status().Reconnect == reconnect.StateDisconnected
	})

	// Nothing reconnects until the user comes back.
	c.engine.Send(chat("queued"))
	time.Sleep(50 * time.Millisecond)
	if c.engine.Status().Pending != 1 || srv.ClientCount() != 0 {
		t.Fatalf("pending = %d, clients = %d", c.engine.Status().Pending, srv.ClientCount())
	}

	c.engine.Visible()
	waitFor(t, "flushed echo", func() bool { return c.engine.History().Len() == 1 })
	if got := c.engine.History().Messages()[0].Text(); got != "queued" {
		t.Errorf("echo = %q", got)
	}
	if srv.ClientCount() != 1 {
		t.Errorf("clients = %d, want exactly one reconnect", srv.ClientCount())
	}
}
