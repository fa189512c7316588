package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingSender struct {
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return "rec" }

func TestNotifierFilterAndFanOut(t *testing.T) {
	a, b := &recordingSender{}, &recordingSender{err: errors.New("down")}
	n := NewNotifier([]Sender{b, a}, []string{"ProjectSettled", " "}, discard)

	require.NoError(t, n.Notify(context.Background(), "Transfer", "t", "m"))
	assert.Empty(t, a.titles)

	err := n.Notify(context.Background(), "ProjectSettled", "settled", "m")
	require.Error(t, err)
	assert.Equal(t, []string{"settled"}, a.titles, "a failing sender must not block the rest")

	assert.True(t, NewNotifier(nil, nil, discard).Allows("anything"))
}

type countingLimiter struct {
	keys []string
	err  error
}

func (c *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (c *countingLimiter) Wait(_ context.Context, key string) error {
	c.keys = append(c.keys, key)
	return c.err
}

func TestNotifierPacesThroughLimiter(t *testing.T) {
	rec := &recordingSender{}
	lim := &countingLimiter{}
	n := NewNotifier([]Sender{rec}, nil, discard, WithLimiter(lim))

	require.NoError(t, n.NotifyAll(context.Background(), "lease lost", "m"))
	assert.Equal(t, []string{"notify:rec"}, lim.keys)
	assert.Equal(t, []string{"lease lost"}, rec.titles)

	lim.err = context.DeadlineExceeded
	err := n.NotifyAll(context.Background(), "again", "m")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, rec.titles, 1, "a throttled send is skipped")
}

func TestEventSinkFormatsSelectedEvents(t *testing.T) {
	rec := &recordingSender{err: errors.New("down")}
	sink := NewEventSink(NewNotifier([]Sender{rec}, DefaultEvents, discard))

	err := sink.Deliver(context.Background(), []domain.Event{
		{Type: domain.EventTransfer},
		{Type: domain.EventProjectCreated, ProjectID: 1, Title: "Final", Amount: domain.Tokens(100)},
		{Type: domain.EventProjectSettled, ProjectID: 1, Option: 2},
	})
	require.NoError(t, err, "notification failures are not retried")
	assert.Equal(t, []string{"New project", "Project settled"}, rec.titles)
}

func TestFormat(t *testing.T) {
	_, msg, ok := Format(domain.Event{
		Type: domain.EventPrizeDistributed, ProjectID: 3, TicketID: 9,
		To: common.HexToAddress("0x1"), Amount: domain.Tokens(5),
	})
	require.True(t, ok)
	assert.Contains(t, msg, "#3 ticket 9")

	_, _, ok = Format(domain.Event{Type: domain.EventApproval})
	assert.False(t, ok)
}

func TestTelegramAndDiscordPost(t *testing.T) {
	var got []map[string]string
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = append(got, body)
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, NewTelegramSender(srv.URL, "TOKEN", "42").Send(ctx, "T", "M"))
	require.NoError(t, NewDiscordSender(srv.URL+"/hook").Send(ctx, "T", "M"))
	err := NewDiscordSender(srv.URL + "/fail").Send(ctx, "T", "M")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 400")

	assert.Equal(t, "/botTOKEN/sendMessage", paths[0])
	assert.Equal(t, "42", got[0]["chat_id"])
	assert.Equal(t, "*T*\nM", got[0]["text"])
	assert.Equal(t, "**T**\nM", got[1]["content"])
}
