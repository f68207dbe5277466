package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatlink/client/internal/api"
	"github.com/chatlink/client/internal/config"
	"github.com/chatlink/client/internal/engine"
	"github.com/chatlink/client/internal/envelope"
	apperrors "github.com/chatlink/client/internal/errors"
	"github.com/chatlink/client/internal/logging"
	"github.com/chatlink/client/internal/mdns"
	"github.com/chatlink/client/internal/notify"
	"github.com/chatlink/client/internal/state"
	"github.com/chatlink/client/internal/storage"
	chattls "github.com/chatlink/client/internal/tls"
	"github.com/chatlink/client/internal/transport"
)

const replHelp = `Commands:
  <text>                 Send a message to the current room
  /qr                    Request a login QR code
  /login <user> <pass>   Log in with a password
  /logout                Log out and forget the stored credential
  /room <id> [friend]    Switch room (group by default)
  /open                  Open the last notification
  /status                Show connection and session state
  /quit                  Exit
`

// discoverTimeout bounds the mDNS browse done by connect --discover.
const discoverTimeout = 3 * time.Second

func runConnect(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.chatlink/config.toml)")
	server := fs.String("server", "", "Chat server websocket URL (overrides config)")
	apiURL := fs.String("api", "", "HTTP API base URL (overrides config)")
	dbPath := fs.String("db", "", "SQLite file holding the credential (overrides config)")
	discover := fs.Bool("discover", false, "Find the chat server over mDNS")
	qr := fs.Bool("qr", true, "Render login codes as terminal QR codes")
	caCert := fs.String("ca", "", "PEM file of extra certificates to trust (overrides config)")
	fingerprint := fs.String("fingerprint", "", "Pin the server certificate by SHA-256 fingerprint (overrides config)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: chatlink connect [options]\n\nConnect to a chat server and open the interactive prompt.\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\n%s", replHelp)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if set["server"] {
		cfg.ServerURL = *server
	}
	if set["api"] {
		cfg.APIURL = *apiURL
	}
	if set["db"] {
		cfg.DataPath = *dbPath
	}
	if set["discover"] {
		cfg.Discover = *discover
	}
	if set["qr"] {
		cfg.QR = qr
	}
	if set["ca"] {
		cfg.CACert = *caCert
	}
	if set["fingerprint"] {
		cfg.CertFingerprint = *fingerprint
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	apiExplicit := cfg.APIURL != ""
	if err := cfg.Resolve(); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", apperrors.GetMessage(err))
		return 1
	}

	tlsConfig, err := chattls.ClientConfig(cfg.CACert, cfg.CertFingerprint)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logger := logging.Init(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.ServerURL == "" {
		srv, err := discoverOne(ctx, stdout)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		cfg.ServerURL = srv.WebSocketURL()
		if !apiExplicit {
			cfg.APIURL = srv.APIURL()
		}
	}

	if cfg.DataPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DataPath), 0700); err != nil {
			fmt.Fprintf(stderr, "Error: failed to create data directory: %v\n", err)
			return 1
		}
	}
	db, err := storage.NewSQLiteStore(cfg.DataPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	worker := transport.New(transport.Options{
		URL:               cfg.ServerURL,
		HandshakeTimeout:  cfg.HandshakeTimeout(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
		SendRate:          cfg.SendRate,
		SendBurst:         cfg.SendBurst,
		TLSConfig:         tlsConfig,
		Logger:            logger,
	})
	worker.Start(ctx)
	defer worker.Close()

	term := notify.NewTerminal(stdout, cfg.QREnabled())
	alert := notify.NewTitleAlert(stdout, "chatlink", notify.DefaultIdle)

	apiClient := api.NewClient(cfg.APIURL, cfg.RestoreTimeout(), logger)
	apiClient.SetTLSConfig(tlsConfig)

	eng := engine.New(engine.Options{
		Port:           worker,
		Storage:        db,
		Fetcher:        apiClient,
		Notifier:       term,
		Alert:          alert,
		RestoreTimeout: cfg.RestoreTimeout(),
		LoginTimeout:   cfg.LoginTimeout(),
		Logger:         logger,
	})
	watchTerminal(eng, term)
	watchVisibility(ctx, int(os.Stdin.Fd()), eng.Visible)

	fmt.Fprintf(stdout, "Connecting to %s (type /help for commands)\n", cfg.ServerURL)

	errc := make(chan error, 1)
	go func() { errc <- eng.Run(ctx) }()

	r := &repl{
		client: eng,
		rooms:  eng.Global(),
		notes:  term,
		alert:  alert,
		out:    stdout,
		logger: logger,
	}
	lines := readLines(stdin)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || r.handle(line) {
				break loop
			}
		}
	}

	stop()
	if err := <-errc; err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// watchTerminal prints inbound messages and route changes.
func watchTerminal(eng *engine.Engine, term *notify.Terminal) {
	eng.History().OnPush(func(m state.ChatMessage) {
		text := m.Text()
		if text == "" {
			text = fmt.Sprintf("(message type %d)", m.Message.Type)
		}
		term.Info(fmt.Sprintf("#%d <%d> %s", m.Message.RoomID, m.FromUser.UID, text))
	})
	eng.Router().OnChange(func(_, to string) {
		switch to {
		case state.RouteLogin:
			term.Info("Not signed in. Use /qr or /login <user> <pass>.")
		case state.RouteContact:
			term.Info("New friend requests are waiting.")
		}
	})
}

func discoverOne(ctx context.Context, stdout io.Writer) (mdns.DiscoveredServer, error) {
	dctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	servers, err := mdns.Discover(dctx)
	if err != nil {
		return mdns.DiscoveredServer{}, fmt.Errorf("discovery failed: %w", err)
	}
	if len(servers) == 0 {
		return mdns.DiscoveredServer{}, errors.New("no chat server found on the local network")
	}
	srv := servers[0]
	fmt.Fprintf(stdout, "Discovered %s at %s\n", srv.Name, srv.WebSocketURL())
	return srv, nil
}

// readLines feeds stdin lines to a channel, closed at EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// chatClient is the part of the engine the prompt drives.
type chatClient interface {
	Send(v any) error
	Visible()
	RequestLoginQrCode() error
	PasswordLogin(username, password string) error
	Logout() error
	Status() engine.Status
}

type roomSelector interface {
	SetCurrentRoom(r state.Room)
	CurrentRoom() state.Room
}

type notificationOpener interface {
	OpenLast() (string, bool)
}

type interactionTracker interface {
	Touch()
}

// repl interprets one prompt line at a time.
type repl struct {
	client chatClient
	rooms  roomSelector
	notes  notificationOpener
	alert  interactionTracker
	out    io.Writer
	logger zerolog.Logger
}

// handle runs one input line and reports whether the prompt should exit.
// Every line counts as the user coming back.
func (r *repl) handle(line string) bool {
	r.alert.Touch()
	r.client.Visible()

	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.say(line)
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Fprint(r.out, replHelp)

	case "/qr":
		r.report(r.client.RequestLoginQrCode(), "Requested a login code")

	case "/login":
		if len(fields) != 3 {
			fmt.Fprintln(r.out, "Usage: /login <user> <pass>")
			return false
		}
		r.report(r.client.PasswordLogin(fields[1], fields[2]), "Logging in...")

	case "/logout":
		r.report(r.client.Logout(), "Logged out")

	case "/room":
		r.switchRoom(fields[1:])

	case "/open":
		if title, ok := r.notes.OpenLast(); ok {
			fmt.Fprintf(r.out, "Opened %q\n", title)
		} else {
			fmt.Fprintln(r.out, "Nothing to open")
		}

	case "/status":
		printStatus(r.out, r.client.Status())

	default:
		fmt.Fprintf(r.out, "Unknown command: %s (try /help)\n", fields[0])
	}
	return false
}

func (r *repl) say(text string) {
	body, err := json.Marshal(struct {
		Content string `json:"content"`
	}{text})
	if err != nil {
		r.report(err, "")
		return
	}
	msg := envelope.ChatMessageRequest{
		RoomID:  r.rooms.CurrentRoom().ID,
		MsgType: state.MsgText,
		Body:    body,
	}
	if err := r.client.Send(msg); err != nil {
		r.report(err, "")
		return
	}
	if st := r.client.Status(); st.Pending > 0 {
		fmt.Fprintf(r.out, "Queued (%d pending until connected)\n", st.Pending)
	}
}

func (r *repl) switchRoom(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(r.out, "Usage: /room <id> [friend]")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintf(r.out, "Invalid room id: %s\n", args[0])
		return
	}
	kind := state.RoomGroup
	if len(args) == 2 {
		switch args[1] {
		case "friend":
			kind = state.RoomFriend
		case "group":
		default:
			fmt.Fprintf(r.out, "Invalid room type: %s (use group or friend)\n", args[1])
			return
		}
	}
	r.rooms.SetCurrentRoom(state.Room{ID: id, Type: kind})
	fmt.Fprintf(r.out, "Now in room %d (%s)\n", id, roomTypeName(kind))
}

func (r *repl) report(err error, ok string) {
	if err != nil {
		r.logger.Debug().Err(err).Str("code", apperrors.GetCode(err)).Msg("command failed")
		fmt.Fprintf(r.out, "Error: %s\n", apperrors.GetMessage(err))
		return
	}
	if ok != "" {
		fmt.Fprintln(r.out, ok)
	}
}

func printStatus(w io.Writer, st engine.Status) {
	fmt.Fprintf(w, "Channel:   %s (%s)\n", st.Channel, st.Reconnect)
	if st.Authenticated {
		fmt.Fprintf(w, "Signed in: %s (uid %d)\n", displayName(st.Profile), st.Profile.UID)
	} else {
		fmt.Fprintf(w, "Signed in: no (login %s)\n", st.LoginStatus)
	}
	fmt.Fprintf(w, "Room:      %d (%s), %d online\n", st.Room.ID, roomTypeName(st.Room.Type), st.OnlineNum)
	fmt.Fprintf(w, "Pending:   %d\n", st.Pending)
	if st.Unread > 0 {
		fmt.Fprintf(w, "Friend requests: %d\n", st.Unread)
	}
	fmt.Fprintf(w, "Route:     %s\n", st.Route)
}

func displayName(p state.Profile) string {
	if p.Name == "" {
		return "unknown"
	}
	return p.Name
}

func roomTypeName(t state.RoomType) string {
	if t == state.RoomFriend {
		return "friend"
	}
	return "group"
}
