package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/easybet/internal/domain"
)

const (
	// defaultStreamMaxLen caps the ledger stream via XADD MAXLEN ~. Readers
	// further behind than this catch up from the event store.
	defaultStreamMaxLen int64 = 10000
	defaultReadCount          = 100
	payloadField              = "payload"
	subscriberBuffer          = 128
)

// SignalBus implements domain.SignalBus. Pub/Sub carries live wake-ups; the
// stream is the ordered, resumable feed.
type SignalBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewSignalBus creates a SignalBus. maxLen <= 0 uses the default stream cap.
func NewSignalBus(c *Client, maxLen int64) *SignalBus {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &SignalBus{rdb: c.rdb, maxLen: maxLen}
}

func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe streams payloads published on channel, which may be a glob such
// as "ch:project:*". The returned channel closes when ctx ends or the
// subscription drops.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	subscribe := sb.rdb.Subscribe
	if hasPattern(channel) {
		subscribe = sb.rdb.PSubscribe
	}
	ps := subscribe(ctx, channel)
	// Receive waits for the confirmation so callers never miss a publish
	// that happens right after Subscribe returns.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go forward(ctx, ps, out)
	return out, nil
}

func forward(ctx context.Context, ps *redis.PubSub, out chan<- []byte) {
	defer close(out)
	defer ps.Close()
	in := ps.Channel(redis.WithChannelSize(subscriberBuffer))
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			msg = m
		}
		select {
		case out <- []byte(msg.Payload):
		case <-ctx.Done():
			return
		}
	}
}

func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend adds payload to stream and trims it to roughly the cap.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: sb.maxLen,
		Approx: true,
		Values: []any{payloadField, payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: xadd %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries strictly after lastID. "" and "0"
// read from the start. It never blocks.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	if count <= 0 {
		count = defaultReadCount
	}
	msgs, err := sb.rdb.XRangeN(ctx, stream, rangeStart(lastID), "+", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: xrange %s: %w", stream, err)
	}
	out := make([]domain.StreamMessage, 0, len(msgs))
	for _, m := range msgs {
		if data, ok := payloadOf(m.Values); ok {
			out = append(out, domain.StreamMessage{ID: m.ID, Payload: data})
		}
	}
	return out, nil
}

// rangeStart turns a last-seen ID into an exclusive XRANGE start.
func rangeStart(lastID string) string {
	if lastID == "" || lastID == "0" || lastID == "-" {
		return "-"
	}
	return "(" + lastID
}

func payloadOf(values map[string]any) ([]byte, bool) {
	switch v := values[payloadField].(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}

var _ domain.SignalBus = (*SignalBus)(nil)
