// Package notify announces selected ledger events (new projects,
// settlements, payouts, admin changes) to operator chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier delivers a message to every Sender in parallel. Notify drops
// events whose type is not in the allowed set; an empty set allows
// everything.
type Notifier struct {
	senders []Sender
	allowed map[string]struct{}
	limiter domain.RateLimiter
	logger  *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLimiter paces each sender through l, keyed "notify:{sender}", so a
// burst of settlements stays under the chat APIs' own limits.
func WithLimiter(l domain.RateLimiter) Option {
	return func(n *Notifier) { n.limiter = l }
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		senders: senders,
		allowed: make(map[string]struct{}, len(events)),
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			n.allowed[e] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	if len(n.allowed) == 0 {
		return true
	}
	_, ok := n.allowed[event]
	return ok
}

// Notify sends title and message if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "notifier: event filtered out", slog.String("event", event))
		return nil
	}
	return n.broadcast(ctx, title, message)
}

// NotifyAll sends regardless of the filter. Operational alerts use it.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.broadcast(ctx, title, message)
}

func (n *Notifier) broadcast(ctx context.Context, title, message string) error {
	errs := make([]error, len(n.senders))
	var wg sync.WaitGroup
	for i, s := range n.senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = n.send(ctx, s, title, message)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, s Sender, title, message string) error {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx, "notify:"+s.Name()); err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	if err := s.Send(ctx, title, message); err != nil {
		n.logger.ErrorContext(ctx, "notifier: send failed",
			slog.String("sender", s.Name()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	n.logger.DebugContext(ctx, "notifier: sent", slog.String("sender", s.Name()), slog.String("title", title))
	return nil
}
