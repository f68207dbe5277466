package devserver

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatlink/client/internal/dispatch"
)

// client is one websocket connection.
type client struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	sendOnce sync.Once
	server   *Server

	mu  sync.Mutex
	tok string
	usr User
}

func (c *client) setToken(token string, u User) {
	c.mu.Lock()
	c.tok, c.usr = token, u
	c.mu.Unlock()
}

func (c *client) signOut() {
	c.setToken("", User{})
}

func (c *client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tok
}

func (c *client) user() (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usr, c.tok != ""
}

// closeSend signals writePump to close the connection. Safe to call more
// than once.
func (c *client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

func (c *client) sendEvent(ev dispatch.Event) {
	raw, err := dispatch.Encode(ev)
	if err != nil {
		c.server.logger.Error().Err(err).Stringer("kind", ev.Kind()).Msg("failed to encode event")
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- []byte(raw):
	case <-c.done:
	default:
		c.server.logger.Warn().Stringer("kind", ev.Kind()).Msg("send buffer full, dropping event")
	}
}

// writePump drains the send buffer to the socket and pings periodically.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.server.logger.Debug().Err(err).Msg("write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump applies client frames until the connection fails.
func (c *client) readPump() {
	defer func() {
		c.closeSend()
		c.server.remove(c)
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				c.server.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.server.handleFrame(c, data)
	}
}
