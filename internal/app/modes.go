package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/easybet/internal/archive"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/events"
	"github.com/alanyoungcy/easybet/internal/ledger"
	"github.com/alanyoungcy/easybet/internal/metrics"
	"github.com/alanyoungcy/easybet/internal/notify"
	"github.com/alanyoungcy/easybet/internal/server"
	"github.com/alanyoungcy/easybet/internal/server/handler"
	"github.com/alanyoungcy/easybet/internal/server/middleware"
	"github.com/alanyoungcy/easybet/internal/server/ws"
	"github.com/alanyoungcy/easybet/internal/service"
)

const (
	// writerLockKey guards the journal: exactly one process may append.
	writerLockKey = "lock:ledger:writer"

	idempotencySweepInterval = time.Minute
)

// errLeaseLost stops every goroutine when another process may have taken
// over the journal.
var errLeaseLost = errors.New("app: writer lease lost")

// StandaloneMode runs the ledger purely in memory behind the HTTP API. State
// does not survive a restart.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting standalone mode (in-memory ledger)")
	return a.runLedger(ctx, deps, false)
}

// ServerMode journals every command to Postgres, recovers from the journal on
// start, and publishes events through Redis. It holds the writer lease for
// its whole lifetime.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting server mode")
	return a.runLedger(ctx, deps, false)
}

// FullMode is ServerMode plus scheduled snapshot archival to S3.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting full mode")
	return a.runLedger(ctx, deps, true)
}

func (a *App) runLedger(ctx context.Context, deps *Dependencies, withArchive bool) error {
	var lost <-chan struct{}
	if deps.LockManager != nil {
		l, release, err := deps.LockManager.Hold(ctx, writerLockKey, a.cfg.Redis.WriterLockTTL.Duration)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("app: another instance holds the writer lease: %w", err)
			}
			return fmt.Errorf("app: acquire writer lease: %w", err)
		}
		defer release()
		lost = l
		a.logger.InfoContext(ctx, "app: writer lease acquired", slog.String("key", writerLockKey))
	}

	outbox := events.NewOutbox(a.cfg.Events.OutboxLimit)
	engine, err := a.newEngine(deps, outbox)
	if err != nil {
		return err
	}
	if deps.Journal != nil {
		if _, err := service.Recover(ctx, engine, deps.Journal, a.logger); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}
	cmdSeq, evtSeq := engine.Seq()
	deps.Metrics.SetCommandSeq(cmdSeq)
	deps.Metrics.WatchLedger(func() metrics.LedgerTotals {
		supply, escrow, projects, active := engine.Totals()
		return metrics.LedgerTotals{
			Supply:         supply.TokensFloat(),
			Escrow:         escrow.TokensFloat(),
			Projects:       projects,
			ActiveProjects: active,
		}
	})
	a.logger.InfoContext(ctx, "app: ledger ready",
		slog.Uint64("command_seq", cmdSeq),
		slog.Uint64("event_seq", evtSeq),
	)

	svc := service.NewMarketService(engine, deps.Events, deps.Audit, deps.Metrics, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
		Ledger:    engine,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	dispatcher := a.newDispatcher(deps, outbox, engine, hub)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	if lost != nil {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-lost:
				a.logger.ErrorContext(ctx, "app: writer lease lost, stopping")
				// The original ctx may already be winding down; the alert
				// still needs to go out.
				alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				if err := deps.Notifier.NotifyAll(alertCtx, "EasyBet writer lease lost",
					"The ledger writer stopped because its Redis lease could not be renewed."); err != nil {
					a.logger.WarnContext(ctx, "app: lease alert failed", slog.String("error", err.Error()))
				}
				return errLeaseLost
			}
		})
	}

	if withArchive {
		if err := a.startArchive(ctx, g, deps, engine); err != nil {
			return err
		}
	}

	if deps.memIdempotency != nil {
		g.Go(func() error {
			ticker := time.NewTicker(idempotencySweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					deps.memIdempotency.Cleanup()
				}
			}
		})
	}

	a.startHTTPServer(ctx, g, deps, svc, hub)

	return g.Wait()
}

// newEngine builds an empty ledger from the market configuration, journaling
// to Postgres when available and pushing events into outbox.
func (a *App) newEngine(deps *Dependencies, outbox *events.Outbox) (*ledger.Engine, error) {
	faucet, err := a.cfg.FaucetAmount()
	if err != nil {
		return nil, fmt.Errorf("app: faucet amount: %w", err)
	}
	cfg := ledger.Config{
		Admin:        a.cfg.AdminAddress(),
		Market:       a.cfg.MarketAddress(),
		TokenName:    a.cfg.Token.Name,
		TokenSymbol:  a.cfg.Token.Symbol,
		FaucetAmount: faucet,
		Sink:         outbox,
	}
	if deps.Journal != nil {
		cfg.Journal = deps.Journal
	}
	engine, err := ledger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return engine, nil
}

// newDispatcher registers every sink the mode has. The event store goes first
// so history is written before clients are told about it.
func (a *App) newDispatcher(deps *Dependencies, outbox *events.Outbox, engine *ledger.Engine, hub *ws.Hub) *events.Dispatcher {
	d := events.NewDispatcher(outbox, events.DispatcherConfig{
		BatchSize:        a.cfg.Events.BatchSize,
		FlushInterval:    a.cfg.Events.FlushInterval.Duration,
		MaxRetryElapsed:  a.cfg.Events.MaxRetryElapsed.Duration,
		MaxRetryInterval: a.cfg.Events.MaxRetryInterval.Duration,
	}, deps.Metrics, a.logger)

	if deps.Events != nil {
		d.AddSink(events.NewStoreSink(deps.Events))
	}
	if deps.SignalBus != nil {
		d.AddSink(events.NewBusSink(deps.SignalBus))
	}
	if deps.Projections != nil {
		d.AddSink(events.NewProjectionSink(deps.Projections, engine))
	}
	d.AddSink(hub)
	if deps.Notifier.Enabled() {
		d.AddSink(notify.NewEventSink(deps.Notifier))
	}
	return d
}

// startArchive schedules snapshot archival. The job is primed from the
// snapshot index so a restart does not re-upload an unchanged ledger, unless
// the indexed object has gone missing from the bucket.
func (a *App) startArchive(ctx context.Context, g *errgroup.Group, deps *Dependencies, engine *ledger.Engine) error {
	if deps.Archiver == nil {
		a.logger.WarnContext(ctx, "app: archive requested but no archiver is wired")
		return nil
	}
	job := archive.NewJob(engine, deps.Archiver, a.logger)
	if deps.Snapshots != nil {
		latest, err := deps.Snapshots.Latest(ctx)
		switch {
		case err == nil:
			if cmdSeq, _ := engine.Seq(); latest.CommandSeq > cmdSeq {
				a.logger.WarnContext(ctx, "app: snapshot index is ahead of the journal",
					slog.Uint64("snapshot_seq", latest.CommandSeq),
					slog.Uint64("journal_seq", cmdSeq),
				)
			}
			if a.snapshotPresent(ctx, deps, latest) {
				job.Prime(latest.CommandSeq)
			}
		case errors.Is(err, domain.ErrNotFound):
		default:
			a.logger.WarnContext(ctx, "app: read latest snapshot failed", slog.String("error", err.Error()))
		}
	}

	sched, err := archive.NewScheduler(job, a.cfg.Archive.Schedule, a.cfg.Archive.Timeout.Duration, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.logger.InfoContext(ctx, "app: snapshot archive scheduled",
		slog.String("schedule", a.cfg.Archive.Schedule),
		slog.Time("next", sched.Next(time.Now().UTC())),
	)
	g.Go(func() error {
		return sched.Run(ctx)
	})
	return nil
}

func (a *App) snapshotPresent(ctx context.Context, deps *Dependencies, rec domain.SnapshotRecord) bool {
	if deps.Objects == nil {
		return true
	}
	ok, err := deps.Objects.Verify(ctx, rec)
	if err != nil {
		a.logger.WarnContext(ctx, "app: verify latest snapshot failed", slog.String("error", err.Error()))
		return true
	}
	if !ok {
		a.logger.WarnContext(ctx, "app: latest snapshot object missing, re-archiving",
			slog.String("path", rec.Path),
		)
	}
	return ok
}

// startHTTPServer registers the API on the server and ties its lifetime to
// ctx.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svc *service.MarketService,
	hub *ws.Hub,
) {
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(svc, a.cfg.Mode, a.logger),
		Token:    handler.NewTokenHandler(svc, a.logger),
		Projects: handler.NewProjectHandler(svc, a.logger),
		Tickets:  handler.NewTicketHandler(svc, a.logger),
		Orders:   handler.NewOrderHandler(svc, a.logger),
		Accounts: handler.NewAccountHandler(svc, a.logger),
		Admin:    handler.NewAdminHandler(svc, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AdminAPIKey: a.cfg.Auth.AdminAPIKey,
		Auth: middleware.AuthConfig{
			Mode:    a.cfg.Auth.Mode,
			MaxSkew: a.cfg.Auth.MaxSkew.Duration,
		},
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		IdempotencyTTL:  a.cfg.Server.IdempotencyTTL.Duration,
	}, handlers, server.Deps{
		Hub:         hub,
		Metrics:     deps.Metrics,
		Limiter:     deps.RateLimiter,
		Idempotency: deps.Idempotency,
	}, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout.Duration
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
