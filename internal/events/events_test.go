package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

func seqEvents(from, to uint64) []domain.Event {
	var out []domain.Event
	for s := from; s <= to; s++ {
		out = append(out, domain.Event{Seq: s, Type: domain.EventTransfer, ProjectID: s % 2})
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOutboxFIFOAndLimit(t *testing.T) {
	o := NewOutbox(3)
	o.Push(seqEvents(1, 5)...)

	assert.Equal(t, 3, o.Len())
	assert.Equal(t, 2, o.TakeDropped())
	assert.Zero(t, o.TakeDropped())

	batch := o.Drain(2)
	require.Len(t, batch, 2)
	assert.Equal(t, uint64(3), batch[0].Seq)
	assert.Equal(t, uint64(4), batch[1].Seq)

	select {
	case <-o.Ready():
	default:
		t.Fatal("push did not signal ready")
	}
}

type fakeSink struct {
	name     string
	mu       sync.Mutex
	failures int
	always   bool
	got      []uint64
	calls    int
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Deliver(_ context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.always || s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	for _, e := range events {
		s.got = append(s.got, e.Seq)
	}
	return nil
}

func TestDispatcherRetriesAndIsolatesSinks(t *testing.T) {
	o := NewOutbox(0)
	flaky := &fakeSink{name: "flaky", failures: 2}
	dead := &fakeSink{name: "dead", always: true}
	good := &fakeSink{name: "good"}

	d := NewDispatcher(o, DispatcherConfig{
		BatchSize:        2,
		MaxRetryElapsed:  200 * time.Millisecond,
		MaxRetryInterval: 5 * time.Millisecond,
	}, nil, discardLogger(), flaky, dead, good)

	o.Push(seqEvents(1, 3)...)
	d.Flush(context.Background())

	assert.Equal(t, []uint64{1, 2, 3}, good.got)
	assert.Equal(t, []uint64{1, 2, 3}, flaky.got)
	assert.Empty(t, dead.got)
	assert.Greater(t, dead.calls, 1)
	assert.Zero(t, o.Len())
}

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	o := NewOutbox(0)
	good := &fakeSink{name: "good"}
	d := NewDispatcher(o, DispatcherConfig{FlushInterval: time.Hour}, nil, discardLogger(), good)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	o.Push(seqEvents(1, 2)...)
	require.Eventually(t, func() bool {
		good.mu.Lock()
		defer good.mu.Unlock()
		return len(good.got) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

type fakeBus struct {
	published map[string]int
	streamed  int
}

func (b *fakeBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.published[channel]++
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error {
	b.streamed++
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestBusSinkFansOutByProject(t *testing.T) {
	bus := &fakeBus{published: map[string]int{}}
	sink := NewBusSink(bus)

	require.NoError(t, sink.Deliver(context.Background(), seqEvents(1, 4)))
	assert.Equal(t, 4, bus.streamed)
	assert.Equal(t, 4, bus.published[ChannelLedger])
	assert.Equal(t, 2, bus.published[ProjectChannel(1)])
	assert.Zero(t, bus.published[ProjectChannel(0)])
}

type fakeReader struct{}

func (fakeReader) Project(id uint64) (domain.Project, error) { return domain.Project{ID: id}, nil }

func (fakeReader) Order(id uint64) (domain.Order, error) {
	if id == 99 {
		return domain.Order{}, domain.ErrNotFound
	}
	return domain.Order{ID: id}, nil
}

type fakeCache struct {
	projects []uint64
	orders   []uint64
}

func (c *fakeCache) SetProject(_ context.Context, p domain.Project) error {
	c.projects = append(c.projects, p.ID)
	return nil
}

func (c *fakeCache) GetProject(context.Context, uint64) (domain.Project, error) {
	return domain.Project{}, domain.ErrNotFound
}

func (c *fakeCache) SetOrder(_ context.Context, o domain.Order) error {
	c.orders = append(c.orders, o.ID)
	return nil
}

func (c *fakeCache) GetOrder(context.Context, uint64) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}

func (c *fakeCache) ActiveOrders(context.Context, uint64) ([]uint64, error) { return nil, nil }

func TestProjectionSinkRefreshesEachEntityOnce(t *testing.T) {
	cache := &fakeCache{}
	sink := NewProjectionSink(cache, fakeReader{})

	batch := []domain.Event{
		{Seq: 1, ProjectID: 7, OrderID: 3},
		{Seq: 2, ProjectID: 7, OrderID: 3},
		{Seq: 3, ProjectID: 8},
	}
	require.NoError(t, sink.Deliver(context.Background(), batch))
	assert.ElementsMatch(t, []uint64{7, 8}, cache.projects)
	assert.Equal(t, []uint64{3}, cache.orders)

	err := sink.Deliver(context.Background(), []domain.Event{{Seq: 4, OrderID: 99}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
