// Package devserver is a scripted chat server that speaks the client's wire
// protocol. It exists for trying the client and for end-to-end tests; it
// keeps users and tokens in memory only.
//
// Login by QR code is simulated: a requested challenge is "scanned" after
// one LoginDelay and "confirmed" after another, at which point a guest user
// is created. Password login accepts any non-empty password. Chat messages
// are echoed to every signed-in connection.
package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chatlink/client/internal/api"
	"github.com/chatlink/client/internal/dispatch"
	"github.com/chatlink/client/internal/envelope"
	"github.com/chatlink/client/internal/state"
)

const (
	// DefaultLoginDelay is the pause before each simulated QR login step.
	DefaultLoginDelay = 2 * time.Second

	// LoginURLPrefix prefixes every issued login challenge.
	LoginURLPrefix = "https://chatlink.local/login?code="

	// sendBufferSize is the per-connection outbound frame buffer.
	sendBufferSize = 64

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 512 * 1024
)

// User is a registered account.
type User struct {
	UID    int64
	Name   string
	Avatar string
}

// Options configures a Server.
type Options struct {
	// LoginDelay is the pause before each QR login step. Zero means
	// DefaultLoginDelay.
	LoginDelay time.Duration

	Logger zerolog.Logger
}

// Server holds connections, users and tokens.
type Server struct {
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
	loginDelay time.Duration

	mu      sync.RWMutex
	clients map[*client]bool
	tokens  map[string]User
	names   map[string]User
	nextUID int64
	nextMsg int64
	stopped bool
}

// New creates a Server. Serve it with Handler.
func New(opts Options) *Server {
	if opts.LoginDelay <= 0 {
		opts.LoginDelay = DefaultLoginDelay
	}
	return &Server{
		logger:     opts.Logger.With().Str("component", "devserver").Logger(),
		loginDelay: opts.LoginDelay,
		upgrader: websocket.Upgrader{
			// Any origin: this server only ever runs on a developer machine.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]bool),
		tokens:  make(map[string]User),
		names:   make(map[string]User),
		nextUID: 10000,
	}
}

// Handler serves the websocket endpoint at "/" and the profile endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(api.UserInfoPath, s.handleUserInfo)
	mux.HandleFunc("/", s.handleWebSocket)
	return mux
}

// Register creates or finds the user called name and issues a fresh token
// for it.
func (s *Server) Register(name string) (string, User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.names[name]
	if !ok {
		s.nextUID++
		u = User{UID: s.nextUID, Name: name}
		s.names[name] = u
	}
	token := uuid.NewString()
	s.tokens[token] = u
	return token, u
}

// Revoke invalidates a token. Live connections using it are told the token
// expired.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	var affected []*client
	for c := range s.clients {
		if c.token() == token {
			affected = append(affected, c)
		}
	}
	s.mu.Unlock()

	for _, c := range affected {
		c.signOut()
		c.sendEvent(dispatch.TokenExpired{})
	}
}

func (s *Server) lookup(token string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.tokens[token]
	return u, ok
}

// ClientCount returns the number of open connections.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// OnlineCount returns the number of signed-in connections.
func (s *Server) OnlineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onlineLocked()
}

func (s *Server) onlineLocked() int {
	n := 0
	for c := range s.clients {
		if c.token() != "" {
			n++
		}
	}
	return n
}

// DisconnectAll drops every open connection. New connections are still
// accepted and tokens stay valid.
func (s *Server) DisconnectAll() {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.closeSend()
	}
}

// Close disconnects every client and refuses new ones.
func (s *Server) Close() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.DisconnectAll()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		http.Error(w, "server stopped", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		server: s,
	}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	s.logger.Info().Int("clients", s.ClientCount()).Msg("client connected")

	go c.writePump()

	if token := r.URL.Query().Get("token"); token != "" {
		if u, ok := s.lookup(token); ok {
			s.signIn(c, token, u)
		} else {
			s.logger.Info().Msg("rejected unknown token")
			c.sendEvent(dispatch.TokenExpired{})
		}
	}

	c.readPump()
}

// handleFrame applies one client frame.
func (s *Server) handleFrame(c *client, data []byte) {
	var f struct {
		Type envelope.RequestKind `json:"type"`
		Data json.RawMessage      `json:"data"`
		envelope.ChatMessageRequest
	}
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Warn().Err(err).Msg("discarding malformed frame")
		return
	}

	if f.RoomID != 0 {
		s.handleChat(c, f.ChatMessageRequest)
		return
	}

	switch f.Type {
	case envelope.RequestLoginQrCode:
		s.startQrLogin(c)
	case envelope.RequestHeartbeat:
	case envelope.RequestAuthorize:
		var auth struct {
			Token string `json:"token"`
		}
		json.Unmarshal(f.Data, &auth)
		if u, ok := s.lookup(auth.Token); ok {
			s.signIn(c, auth.Token, u)
		} else {
			c.sendEvent(dispatch.TokenExpired{})
		}
	case envelope.RequestPasswordLogin:
		var creds envelope.PasswordLoginData
		json.Unmarshal(f.Data, &creds)
		name := strings.TrimSpace(creds.Username)
		if name == "" || creds.Password == "" {
			c.sendEvent(dispatch.LoginError{Msg: "invalid username or password"})
			return
		}
		token, u := s.Register(name)
		s.signIn(c, token, u)
	default:
		s.logger.Debug().Int("type", int(f.Type)).Msg("ignoring request")
	}
}

// startQrLogin issues a challenge and scripts the scan and confirmation.
func (s *Server) startQrLogin(c *client) {
	code := uuid.NewString()
	c.sendEvent(dispatch.LoginQrCode{LoginURL: LoginURLPrefix + code})

	go func() {
		steps := []func(){
			func() { c.sendEvent(dispatch.WaitingAuthorize{}) },
			func() {
				token, u := s.Register(fmt.Sprintf("guest-%s", code[:8]))
				s.signIn(c, token, u)
			},
		}
		for _, step := range steps {
			select {
			case <-time.After(s.loginDelay):
			case <-c.done:
				return
			}
			step()
		}
	}()
}

func (s *Server) signIn(c *client, token string, u User) {
	c.setToken(token, u)
	c.sendEvent(dispatch.LoginSuccess{Token: token, UID: u.UID, Name: u.Name, Avatar: u.Avatar})
	s.logger.Info().Int64("uid", u.UID).Str("name", u.Name).Msg("signed in")
	s.broadcastPresence(u, true)
}

func (s *Server) handleChat(c *client, f envelope.ChatMessageRequest) {
	u, ok := c.user()
	if !ok {
		s.logger.Warn().Int64("room", f.RoomID).Msg("chat from unauthenticated client")
		c.sendEvent(dispatch.TokenExpired{})
		return
	}

	s.mu.Lock()
	s.nextMsg++
	id := s.nextMsg
	s.mu.Unlock()

	msgType := f.MsgType
	if msgType == 0 {
		msgType = state.MsgText
	}
	ev := dispatch.ReceiveMessage{}
	ev.FromUser.UID = u.UID
	ev.Message.ID = id
	ev.Message.RoomID = f.RoomID
	ev.Message.SendTime = time.Now().UnixMilli()
	ev.Message.Type = msgType
	ev.Message.Body = f.Body
	s.broadcast(ev)
}

func (s *Server) broadcastPresence(u User, online bool) {
	status := state.Online
	if !online {
		status = state.Offline
	}
	s.mu.RLock()
	n := s.onlineLocked()
	s.mu.RUnlock()

	change := state.Member{
		UID:          u.UID,
		Name:         u.Name,
		Avatar:       u.Avatar,
		ActiveStatus: status,
		LastOptTime:  time.Now().UnixMilli(),
	}
	s.broadcast(dispatch.OnOffLine{OnlineNum: n, ChangeList: []state.Member{change}})
}

// broadcast sends ev to every signed-in connection.
func (s *Server) broadcast(ev dispatch.Event) {
	s.mu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if c.token() != "" {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		c.sendEvent(ev)
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()

	if u, ok := c.user(); ok {
		s.broadcastPresence(u, false)
	}
	s.logger.Info().Int("clients", s.ClientCount()).Msg("client disconnected")
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	u, ok := s.lookup(token)
	if token == "" || !ok {
		writeResult(w, api.Result{Success: false, ErrCode: http.StatusUnauthorized, ErrMsg: "token expired"})
		return
	}

	data, _ := json.Marshal(api.UserInfo{ID: u.UID, Name: u.Name, Avatar: u.Avatar})
	writeResult(w, api.Result{Success: true, Data: data})
}

func writeResult(w http.ResponseWriter, res api.Result) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}
