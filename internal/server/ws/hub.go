// Package ws streams committed ledger events to WebSocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checks happen in the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// frame is every message the hub writes.
type frame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Payload any    `json:"payload"`
}

// SeqReader reports ledger progress for the hello frame.
type SeqReader interface {
	Seq() (commandSeq, eventSeq uint64)
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	Ledger    SeqReader
}

// Hub is an events.Sink that fans each committed batch out to connected
// clients. Every event goes to "ch:ledger"; project events also go to
// "ch:project:{id}". A client whose queue fills up is disconnected and is
// expected to reconnect and catch up from the history endpoints.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	conns  map[*conn]struct{}
	closed bool

	evicted atomic.Uint64
}

// NewHub creates a hub. Run must be started for shutdown to reach clients.
func NewHub(logger *slog.Logger, cfg Config) *Hub {
	if strings.TrimSpace(cfg.Mode) == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ws")),
		conns:  make(map[*conn]struct{}),
	}
}

func (h *Hub) Name() string { return "ws_hub" }

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Deliver encodes each event once per channel and queues it on every
// subscribed client without blocking.
func (h *Hub) Deliver(ctx context.Context, evts []domain.Event) error {
	for _, e := range evts {
		if err := ctx.Err(); err != nil {
			return err
		}
		channels := []string{events.ChannelLedger}
		if e.ProjectID != 0 {
			channels = append(channels, events.ProjectChannel(e.ProjectID))
		}
		for _, ch := range channels {
			data, err := json.Marshal(frame{Type: "event", Channel: ch, Payload: e})
			if err != nil {
				return err
			}
			h.fanout(ch, data)
		}
	}
	return nil
}

func (h *Hub) fanout(channel string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if !c.subscribed(channel) {
			continue
		}
		if !c.enqueue(data) {
			n := h.evicted.Add(1)
			h.logger.Warn("ws: evicting slow client",
				slog.String("remote", c.remote),
				slog.Uint64("evicted_total", n),
			)
			c.kick()
		}
	}
}

// Run blocks until ctx is cancelled, then disconnects every client and
// refuses new ones.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.mu.Lock()
	h.closed = true
	for c := range h.conns {
		c.kick()
	}
	h.mu.Unlock()
	return ctx.Err()
}

// HandleWS upgrades the request and registers the client. ?channels=a,b
// replaces the default "ch:ledger" subscription.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	topics := parseChannels(r.URL.Query().Get("channels"))
	if len(topics) == 0 {
		topics = []string{events.ChannelLedger}
	}
	c := newConn(wsConn, r.RemoteAddr, topics)
	c.enqueue(h.hello())

	if !h.add(c) {
		c.kick()
	}
	go c.writeLoop()
	go func() {
		c.readLoop(h.logger)
		h.remove(c)
	}()
}

func (h *Hub) add(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	h.logger.Info("ws: client connected", slog.String("remote", c.remote), slog.Int("clients", len(h.conns)))
	return true
}

func (h *Hub) remove(c *conn) {
	c.kick()
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	h.logger.Info("ws: client disconnected", slog.String("remote", c.remote), slog.Int("clients", len(h.conns)))
}

// hello tells the client where the ledger is so it can fetch history up to
// the first streamed event.
func (h *Hub) hello() []byte {
	payload := map[string]any{
		"mode":           h.cfg.Mode,
		"uptime_seconds": max(int64(time.Since(h.cfg.StartedAt).Seconds()), 0),
	}
	if h.cfg.Ledger != nil {
		cmdSeq, evtSeq := h.cfg.Ledger.Seq()
		payload["commandSeq"] = cmdSeq
		payload["eventSeq"] = evtSeq
	}
	data, _ := json.Marshal(frame{Type: "hello", Payload: payload})
	return data
}

func parseChannels(raw string) []string {
	var out []string
	for _, ch := range strings.Split(raw, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}
