package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/easybet/internal/blob/s3"
	"github.com/alanyoungcy/easybet/internal/cache/redis"
	"github.com/alanyoungcy/easybet/internal/config"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/metrics"
	"github.com/alanyoungcy/easybet/internal/notify"
	"github.com/alanyoungcy/easybet/internal/server/middleware"
	"github.com/alanyoungcy/easybet/internal/store/postgres"
)

// localLimiterKeys bounds the in-process limiter's per-client table.
const localLimiterKeys = 10000

// Dependencies bundles every infrastructure dependency the modes need. Fields
// for services the mode does not use are nil. It is constructed by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	// Postgres
	Journal   domain.JournalStore
	Events    domain.EventStore
	Audit     domain.AuditStore
	Snapshots domain.SnapshotStore

	// Redis, or in-process stand-ins in standalone mode
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	Projections domain.ProjectionCache
	RateLimiter domain.RateLimiter
	Idempotency domain.IdempotencyStore

	// S3
	Archiver domain.SnapshotArchiver
	Objects  snapshotVerifier

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// memIdempotency is set when Idempotency is in-process and needs sweeping.
	memIdempotency *middleware.MemoryIdempotencyStore
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Metrics: metrics.New()}

	// --- PostgreSQL ---
	if cfg.UsesPostgres() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Journal = postgres.NewJournalStore(pool)
		deps.Events = postgres.NewEventStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Snapshots = postgres.NewSnapshotStore(pool)
	}

	// --- Redis ---
	if cfg.UsesRedis() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.Projections = redis.NewProjectionCache(redisClient, cfg.Redis.ProjectionTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimit, cfg.Server.RateLimitWindow.Duration)
		deps.Idempotency = redis.NewIdempotencyStore(redisClient)
	} else {
		mem := middleware.NewMemoryIdempotencyStore()
		deps.memIdempotency = mem
		deps.Idempotency = mem
		deps.RateLimiter = middleware.NewLocalLimiter(localLimiterKeys)
	}

	// --- S3 snapshot archive ---
	if cfg.UsesS3() && deps.Snapshots != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		archiver := s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Snapshots,
			deps.Audit,
		)
		deps.Archiver = meteredArchiver{next: archiver, metrics: deps.Metrics}
		deps.Objects = archiver
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPIURL,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	events := cfg.Notify.Events
	if len(events) == 0 {
		events = notify.DefaultEvents
	}
	deps.Notifier = notify.NewNotifier(senders, events, logger, notify.WithLimiter(deps.RateLimiter))

	return deps, cleanup, nil
}

// snapshotVerifier checks that an indexed snapshot object still exists.
type snapshotVerifier interface {
	Verify(ctx context.Context, rec domain.SnapshotRecord) (bool, error)
}

// meteredArchiver counts archive outcomes.
type meteredArchiver struct {
	next    domain.SnapshotArchiver
	metrics *metrics.Metrics
}

func (m meteredArchiver) ArchiveSnapshot(ctx context.Context, snap domain.LedgerSnapshot) (domain.SnapshotRecord, error) {
	rec, err := m.next.ArchiveSnapshot(ctx, snap)
	m.metrics.SnapshotArchived(err == nil)
	return rec, err
}
