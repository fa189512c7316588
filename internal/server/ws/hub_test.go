package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixedSeq struct{}

func (fixedSeq) Seq() (uint64, uint64) { return 12, 30 }

type received struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func next(t *testing.T, c *websocket.Conn) received {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	var r received
	require.NoError(t, c.ReadJSON(&r))
	return r
}

func TestHubRoutesByChannel(t *testing.T) {
	h := NewHub(discard, Config{Mode: "server", Ledger: fixedSeq{}})
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	c := dial(t, srv, "?channels=ch:project:*")

	hello := next(t, c)
	assert.Equal(t, "hello", hello.Type)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(hello.Payload, &meta))
	assert.Equal(t, "server", meta["mode"])
	assert.EqualValues(t, 12, meta["commandSeq"])
	assert.EqualValues(t, 30, meta["eventSeq"])

	ctx := context.Background()
	require.NoError(t, h.Deliver(ctx, []domain.Event{
		{Seq: 1, Type: domain.EventTransfer},
		{Seq: 2, Type: domain.EventTicketPurchased, ProjectID: 1},
	}))

	got := next(t, c)
	assert.Equal(t, "event", got.Type)
	assert.Equal(t, "ch:project:1", got.Channel)

	require.NoError(t, c.WriteJSON(control{Action: "subscribe", Channels: []string{"ch:ledger"}}))
	ack := next(t, c)
	assert.Equal(t, "subscriptions", ack.Type)
	assert.JSONEq(t, `["ch:ledger","ch:project:*"]`, string(ack.Payload))

	require.NoError(t, h.Deliver(ctx, []domain.Event{{Seq: 3, Type: domain.EventTransfer}}))
	got = next(t, c)
	assert.Equal(t, "ch:ledger", got.Channel)
	var evt map[string]any
	require.NoError(t, json.Unmarshal(got.Payload, &evt))
	assert.EqualValues(t, 3, evt["seq"])
}

func TestHubEvictsSlowClient(t *testing.T) {
	h := NewHub(discard, Config{})
	c := newConn(nil, "slow", []string{"ch:ledger"})
	h.conns[c] = struct{}{}

	evts := make([]domain.Event, queueSize+1)
	require.NoError(t, h.Deliver(context.Background(), evts))

	select {
	case <-c.done:
	default:
		t.Fatal("slow client was not kicked")
	}
	assert.EqualValues(t, 1, h.evicted.Load())
}

func TestHubShutdown(t *testing.T) {
	h := NewHub(discard, Config{})
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	c := dial(t, srv, "")
	next(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Eventually(t, func() bool { return h.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	h.HandleWS(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestParseChannels(t *testing.T) {
	assert.Equal(t, []string{"ch:ledger", "ch:project:2"}, parseChannels(" ch:ledger,,ch:project:2 "))
	assert.Empty(t, parseChannels(""))
}
