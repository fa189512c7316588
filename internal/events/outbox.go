// Package events carries committed ledger events from the engine to the
// sinks that persist, publish and project them.
package events

import (
	"sync"

	"github.com/gammazero/deque"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// Outbox is an unbounded-by-default FIFO between the engine and the
// dispatcher. Push never blocks, so it is safe to call under the engine lock.
type Outbox struct {
	mu      sync.Mutex
	queue   deque.Deque[domain.Event]
	limit   int
	dropped int
	ready   chan struct{}
}

// NewOutbox creates an outbox. With limit > 0 the oldest events are dropped
// once more than limit are waiting.
func NewOutbox(limit int) *Outbox {
	o := &Outbox{limit: limit, ready: make(chan struct{}, 1)}
	o.queue.SetMinCapacity(8)
	return o
}

// Push enqueues events and wakes the dispatcher.
func (o *Outbox) Push(events ...domain.Event) {
	if len(events) == 0 {
		return
	}
	o.mu.Lock()
	for _, e := range events {
		o.queue.PushBack(e)
	}
	for o.limit > 0 && o.queue.Len() > o.limit {
		o.queue.PopFront()
		o.dropped++
	}
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// Drain removes up to max events from the front of the queue.
func (o *Outbox) Drain(max int) []domain.Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := o.queue.Len()
	if max > 0 && n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]domain.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, o.queue.PopFront())
	}
	return out
}

// Len returns the number of waiting events.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.Len()
}

// TakeDropped returns and resets the count of events dropped since the last
// call.
func (o *Outbox) TakeDropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := o.dropped
	o.dropped = 0
	return n
}

// Ready is signalled after every Push.
func (o *Outbox) Ready() <-chan struct{} { return o.ready }
