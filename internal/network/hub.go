package network

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/dragonsvault/server/internal/events"
	"github.com/dragonsvault/server/internal/platform/logger"
	"github.com/dragonsvault/server/internal/platform/metrics"
)

// Outbound message types.
const (
	MessageEvent  = "EVENT"
	MessageState  = "STATE"
	MessageResult = "RESULT"
	MessageError  = "ERROR"
)

// Outbound is every message the server writes to a WebSocket.
type Outbound struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
}

type userMessage struct {
	userID string
	data   []byte
}

type directMessage struct {
	client *Client
	data   []byte
}

// Hub tracks connected clients by user and routes messages to them. Only
// the Run goroutine touches the client maps or writes to a send channel.
type Hub struct {
	clients map[*Client]bool
	byUser  map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan userMessage
	direct     chan directMessage
	counts     chan countRequest
	done       chan struct{}

	logger  *logger.Logger
	metrics *metrics.Collector
}

type countRequest struct {
	userID string
	reply  chan int
}

// NewHub initializes a new WebSocket Hub.
func NewHub(log *logger.Logger, m *metrics.Collector) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.Get()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan userMessage),
		direct:     make(chan directMessage),
		counts:     make(chan countRequest),
		done:       make(chan struct{}),
		logger:     log,
		metrics:    m,
	}
}

// Run handles registration and delivery until ctx is done. On exit every
// client's send channel is closed so its write pump hangs up.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		close(h.done)
		h.logger.Info("websocket hub shutting down")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = true
			if h.byUser[c.userID] == nil {
				h.byUser[c.userID] = make(map[*Client]bool)
			}
			h.byUser[c.userID][c] = true
			h.metrics.RecordWSConnection(1)
			h.logger.Debug("websocket client connected", zap.String("user", c.userID))
		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				h.logger.Debug("websocket client disconnected", zap.String("user", c.userID))
			}
		case m := <-h.broadcast:
			for c := range h.byUser[m.userID] {
				h.deliver(c, m.data)
			}
		case m := <-h.direct:
			if h.clients[m.client] {
				h.deliver(m.client, m.data)
			}
		case q := <-h.counts:
			q.reply <- len(h.byUser[q.userID])
		}
	}
}

// deliver queues data for c, dropping c when its buffer is full.
func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
		h.metrics.RecordWSMessage(false)
	default:
		h.logger.Warn("websocket client too slow, dropping", zap.String("user", c.userID))
		h.metrics.RecordWSError()
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	if set := h.byUser[c.userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.userID)
		}
	}
	close(c.send)
	h.metrics.RecordWSConnection(-1)
}

// Register adds c. It returns false if the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes c.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns how many connections userID has.
func (h *Hub) ClientCount(userID string) int {
	q := countRequest{userID: userID, reply: make(chan int, 1)}
	select {
	case h.counts <- q:
		return <-q.reply
	case <-h.done:
		return 0
	}
}

// SendToUser writes msg to every connection of userID.
func (h *Hub) SendToUser(userID string, msg Outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode websocket message", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- userMessage{userID: userID, data: data}:
	case <-h.done:
	}
}

func (h *Hub) sendTo(c *Client, msg Outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode websocket message", zap.Error(err))
		return
	}
	select {
	case h.direct <- directMessage{client: c, data: data}:
	case <-h.done:
	}
}

// RunEventPoller pushes new event log entries to the owning user's clients
// until ctx is done.
func (h *Hub) RunEventPoller(ctx context.Context, eventLog *events.EventLog, interval time.Duration) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	offset := eventLog.Len()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			var batch []events.Event
			batch, offset = eventLog.Since(offset)
			for _, ev := range batch {
				h.SendToUser(ev.UserID, Outbound{Type: MessageEvent, Data: ev})
			}
		}
	}
}
