// Package archive periodically copies a consistent ledger snapshot to cold
// storage.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// SnapshotSource produces a consistent copy of the ledger.
type SnapshotSource interface {
	Snapshot() domain.LedgerSnapshot
}

// Job archives one snapshot per run, skipping runs where no command has been
// applied since the last successful archive.
type Job struct {
	source   SnapshotSource
	archiver domain.SnapshotArchiver
	logger   *slog.Logger

	mu      sync.Mutex
	lastSeq uint64
	primed  bool
}

// NewJob creates an archive Job.
func NewJob(source SnapshotSource, archiver domain.SnapshotArchiver, logger *slog.Logger) *Job {
	return &Job{
		source:   source,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "archive")),
	}
}

// Prime marks seq as already archived, typically from the snapshot index at
// startup.
func (j *Job) Prime(seq uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastSeq, j.primed = seq, true
}

// Run archives the current snapshot. It reports whether a snapshot was
// written. Concurrent calls are serialised.
func (j *Job) Run(ctx context.Context) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := j.source.Snapshot()
	if j.primed && snap.CommandSeq == j.lastSeq {
		j.logger.Debug("archive: ledger unchanged, skipping", slog.Uint64("command_seq", snap.CommandSeq))
		return false, nil
	}

	start := time.Now()
	rec, err := j.archiver.ArchiveSnapshot(ctx, snap)
	if err != nil {
		return false, fmt.Errorf("archive: snapshot %d: %w", snap.CommandSeq, err)
	}
	j.lastSeq, j.primed = snap.CommandSeq, true
	j.logger.Info("archive: snapshot written",
		slog.Uint64("command_seq", rec.CommandSeq),
		slog.String("path", rec.Path),
		slog.Int64("size_bytes", rec.SizeBytes),
		slog.Duration("elapsed", time.Since(start)),
	)
	return true, nil
}

// Scheduler runs a Job on a cron schedule.
type Scheduler struct {
	job      *Job
	schedule cron.Schedule
	spec     string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScheduler parses spec, a standard 5-field cron expression or a
// descriptor such as "@hourly" or "@every 15m".
func NewScheduler(job *Job, spec string, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("archive: parse schedule %q: %w", spec, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		job:      job,
		schedule: schedule,
		spec:     spec,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "archive")),
	}, nil
}

// Next returns the first run time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run blocks until ctx is cancelled. A final snapshot is attempted on the
// way out so a clean shutdown always leaves a current archive.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.NewWithLocation(time.UTC)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.runOnce(ctx) }))
	c.Start()
	s.logger.Info("archive: scheduler started", slog.String("schedule", s.spec))

	<-ctx.Done()
	c.Stop()

	s.runOnce(context.WithoutCancel(ctx))
	s.logger.Info("archive: scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.job.Run(ctx); err != nil {
		s.logger.Error("archive: run failed", slog.String("error", err.Error()))
	}
}
