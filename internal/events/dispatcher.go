package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/metrics"
)

// Sink consumes batches of events in sequence order. Deliver may be retried
// with the same batch, so it must be idempotent on Event.Seq.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, events []domain.Event) error
}

// DispatcherConfig tunes batching and retries.
type DispatcherConfig struct {
	BatchSize        int
	FlushInterval    time.Duration
	MaxRetryElapsed  time.Duration
	MaxRetryInterval time.Duration
}

func (c *DispatcherConfig) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 256
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.MaxRetryElapsed <= 0 {
		c.MaxRetryElapsed = 30 * time.Second
	}
	if c.MaxRetryInterval <= 0 {
		c.MaxRetryInterval = 5 * time.Second
	}
}

// Dispatcher drains the outbox and fans each batch out to every sink. A sink
// that keeps failing past MaxRetryElapsed loses that batch; the others are
// unaffected. The journal, not the event stream, is the source of truth.
type Dispatcher struct {
	outbox  *Outbox
	sinks   []Sink
	cfg     DispatcherConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(outbox *Outbox, cfg DispatcherConfig, m *metrics.Metrics, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	cfg.defaults()
	return &Dispatcher{
		outbox:  outbox,
		sinks:   sinks,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(slog.String("component", "dispatcher")),
	}
}

// AddSink registers another sink. It must be called before Run.
func (d *Dispatcher) AddSink(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Run delivers events until ctx is cancelled, then makes one final attempt
// to flush what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", slog.Int("sinks", len(d.sinks)))
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			d.Flush(flushCtx)
			cancel()
			d.logger.Info("dispatcher stopped", slog.Int("pending", d.outbox.Len()))
			return ctx.Err()
		case <-d.outbox.Ready():
		case <-ticker.C:
		}
		d.Flush(ctx)
	}
}

// Flush delivers everything currently in the outbox.
func (d *Dispatcher) Flush(ctx context.Context) {
	if n := d.outbox.TakeDropped(); n > 0 {
		d.metrics.OutboxDropped(n)
		d.logger.Warn("outbox overflow, events dropped", slog.Int("dropped", n))
	}
	for ctx.Err() == nil {
		batch := d.outbox.Drain(d.cfg.BatchSize)
		if len(batch) == 0 {
			break
		}
		for _, s := range d.sinks {
			d.deliver(ctx, s, batch)
		}
	}
	d.metrics.SetOutboxDepth(d.outbox.Len())
}

func (d *Dispatcher) deliver(ctx context.Context, s Sink, batch []domain.Event) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = d.cfg.MaxRetryElapsed
	b.MaxInterval = d.cfg.MaxRetryInterval

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := s.Deliver(ctx, batch)
		if errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		d.logger.Warn("sink delivery failed, retrying",
			slog.String("sink", s.Name()),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	})
	if err != nil {
		d.metrics.DeliveryFailed(s.Name())
		d.logger.Error("sink gave up on batch",
			slog.String("sink", s.Name()),
			slog.Uint64("first_seq", batch[0].Seq),
			slog.Uint64("last_seq", batch[len(batch)-1].Seq),
			slog.String("error", err.Error()),
		)
		return
	}
	d.metrics.EventsDelivered(s.Name(), len(batch))
}
