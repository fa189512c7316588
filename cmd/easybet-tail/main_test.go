package main

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// memBus keeps one stream and wakes subscribers on append.
type memBus struct {
	mu      sync.Mutex
	entries []domain.StreamMessage
	subs    []chan []byte
}

func (b *memBus) append(payload string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := strconv.Itoa(len(b.entries)+1) + "-0"
	b.entries = append(b.entries, domain.StreamMessage{ID: id, Payload: []byte(payload)})
	for _, s := range b.subs {
		select {
		case s <- []byte(payload):
		default:
		}
	}
}

func (b *memBus) Publish(context.Context, string, []byte) error { return nil }

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 8)
	b.subs = append(b.subs, ch)
	return ch, nil
}

func (b *memBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *memBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := 0
	if lastID != "0" {
		for i, e := range b.entries {
			if e.ID == lastID {
				start = i + 1
			}
		}
	}
	end := min(start+count, len(b.entries))
	return append([]domain.StreamMessage(nil), b.entries[start:end]...), nil
}

func TestTailPagesThroughStream(t *testing.T) {
	bus := &memBus{}
	for i := range 5 {
		bus.append(`{"seq":` + strconv.Itoa(i+1) + `}`)
	}

	var out bytes.Buffer
	require.NoError(t, tail(context.Background(), bus, tailOptions{from: "0", batch: 2}, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "1-0\t{\"seq\":1}", lines[0])
	assert.Equal(t, "5-0\t{\"seq\":5}", lines[4])

	out.Reset()
	require.NoError(t, tail(context.Background(), bus, tailOptions{from: "3-0", batch: 10}, &out))
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))
}

func TestTailFiltersByProject(t *testing.T) {
	bus := &memBus{}
	bus.append(`{"seq":1,"projectId":3}`)
	bus.append(`{"seq":2}`)
	bus.append(`{"seq":3,"projectId":4}`)

	var out bytes.Buffer
	require.NoError(t, tail(context.Background(), bus, tailOptions{from: "0", project: 3}, &out))
	assert.Equal(t, "1-0\t{\"seq\":1,\"projectId\":3}\n", out.String())
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestTailFollowWakesOnPublish(t *testing.T) {
	bus := &memBus{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- tail(ctx, bus, tailOptions{from: "0", follow: true, poll: time.Hour}, out) }()

	assert.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs) == 1
	}, time.Second, 5*time.Millisecond)

	bus.append(`{"seq":1}`)
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "1-0") }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
