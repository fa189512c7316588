package ws

import (
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingEvery   = pongWait * 9 / 10
	maxReadSize = 4096
	queueSize   = 256
)

// control is what a client sends to change its subscriptions, e.g.
// {"action":"subscribe","channels":["ch:project:3"]}.
type control struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// conn is one client. The queue is never closed; done signals the writer to
// stop so late enqueues from the hub cannot panic.
type conn struct {
	ws     *websocket.Conn
	remote string
	queue  chan []byte
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	topics map[string]struct{}
}

func newConn(ws *websocket.Conn, remote string, topics []string) *conn {
	c := &conn{
		ws:     ws,
		remote: remote,
		queue:  make(chan []byte, queueSize),
		done:   make(chan struct{}),
		topics: make(map[string]struct{}, len(topics)),
	}
	for _, t := range topics {
		c.topics[t] = struct{}{}
	}
	return c
}

// enqueue reports false when the client's queue is full.
func (c *conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.queue <- data:
		return true
	default:
		return false
	}
}

func (c *conn) kick() {
	c.once.Do(func() { close(c.done) })
}

// subscribed matches exact channels and "prefix*" patterns such as
// "ch:project:*".
func (c *conn) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.topics[channel]; ok {
		return true
	}
	for t := range c.topics {
		if prefix, ok := strings.CutSuffix(t, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// apply updates the subscription set and returns the resulting channels.
func (c *conn) apply(msg control) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.topics[ch] = struct{}{}
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.topics, ch)
		}
	default:
		return nil, false
	}
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	slices.Sort(out)
	return out, true
}

func (c *conn) readLoop(logger *slog.Logger) {
	defer c.kick()
	c.ws.SetReadLimit(maxReadSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("ws: read failed", slog.String("remote", c.remote), slog.String("error", err.Error()))
			}
			return
		}
		var msg control
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if topics, ok := c.apply(msg); ok {
			ack, _ := json.Marshal(frame{Type: "subscriptions", Payload: topics})
			c.enqueue(ack)
		}
	}
}

func (c *conn) writeLoop() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case data := <-c.queue:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.kick()
				return
			}
		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.kick()
				return
			}
		}
	}
}
