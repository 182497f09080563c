package network

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dragonsvault/server/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 4096
	// Upper bound on one command, tutor calls included.
	commandTimeout = 30 * time.Second
)

// Client is one WebSocket connection bound to a session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  string
	session *session.Session
	exec    Executor
	limiter *rateLimiter
}

// NewClient creates a client for sess. sendBuffer bounds queued outbound
// messages; maxPerSecond bounds incoming commands (0 disables the limit).
func NewClient(hub *Hub, conn *websocket.Conn, sess *session.Session, exec Executor, sendBuffer, maxPerSecond int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		userID:  sess.UserID,
		session: sess,
		exec:    exec,
		limiter: newRateLimiter(maxPerSecond, time.Second),
	}
}

// ReadPump reads commands until the connection fails, executing each one
// and replying to this client only.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.String("user", c.userID), zap.Error(err))
				c.hub.metrics.RecordWSError()
			}
			return
		}
		c.hub.metrics.RecordWSMessage(true)

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.reply(Outbound{Type: MessageError, Error: &ErrorBody{Code: "VALIDATION", Message: "malformed command"}})
			continue
		}
		if !c.limiter.Allow() {
			c.hub.logger.Warn("rate limit exceeded", zap.String("user", c.userID), zap.String("command", cmd.Type))
			c.reply(Outbound{Type: MessageError, RequestID: cmd.RequestID, Error: &ErrorBody{Code: "RATE_LIMITED", Message: "too many commands, slow down"}})
			continue
		}
		c.handle(ctx, cmd)
	}
}

func (c *Client) handle(ctx context.Context, cmd Command) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	result, err := c.exec.Execute(ctx, c.session, cmd)
	if err != nil {
		c.reply(Outbound{Type: MessageError, RequestID: cmd.RequestID, Error: errorBody(err)})
		return
	}
	c.reply(Outbound{Type: MessageResult, RequestID: cmd.RequestID, Data: result})
}

func (c *Client) reply(msg Outbound) {
	c.hub.sendTo(c, msg)
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One JSON document per frame.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// rateLimiter allows limit calls per fixed window. Used from one goroutine.
type rateLimiter struct {
	limit  int
	window time.Duration
	start  time.Time
	count  int
	now    func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{limit: limit, window: window, now: time.Now}
}

func (r *rateLimiter) Allow() bool {
	if r.limit <= 0 {
		return true
	}
	now := r.now()
	if now.Sub(r.start) >= r.window {
		r.start = now
		r.count = 0
	}
	if r.count >= r.limit {
		return false
	}
	r.count++
	return true
}
