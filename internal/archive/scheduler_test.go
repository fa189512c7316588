package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSource struct{ seq uint64 }

func (f *fakeSource) Snapshot() domain.LedgerSnapshot {
	return domain.LedgerSnapshot{CommandSeq: f.seq}
}

type fakeArchiver struct {
	seqs []uint64
	fail bool
}

func (f *fakeArchiver) ArchiveSnapshot(_ context.Context, snap domain.LedgerSnapshot) (domain.SnapshotRecord, error) {
	if f.fail {
		return domain.SnapshotRecord{}, errors.New("bucket gone")
	}
	f.seqs = append(f.seqs, snap.CommandSeq)
	return domain.SnapshotRecord{CommandSeq: snap.CommandSeq, Path: "p"}, nil
}

func TestJobSkipsUnchangedLedger(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{seq: 3}
	arch := &fakeArchiver{}
	job := NewJob(src, arch, discard)

	wrote, err := job.Run(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = job.Run(ctx)
	require.NoError(t, err)
	assert.False(t, wrote)

	src.seq = 4
	wrote, _ = job.Run(ctx)
	assert.True(t, wrote)
	assert.Equal(t, []uint64{3, 4}, arch.seqs)
}

func TestJobPrimeAndFailure(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{seq: 7}
	arch := &fakeArchiver{fail: true}
	job := NewJob(src, arch, discard)
	job.Prime(7)

	wrote, err := job.Run(ctx)
	require.NoError(t, err)
	assert.False(t, wrote)

	src.seq = 8
	_, err = job.Run(ctx)
	require.Error(t, err)

	// A failed run must be retried next time.
	arch.fail = false
	wrote, err = job.Run(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)
}

func TestSchedulerParsesSpecs(t *testing.T) {
	job := NewJob(&fakeSource{}, &fakeArchiver{}, discard)

	s, err := NewScheduler(job, "0 3 * * *", 0, discard)
	require.NoError(t, err)
	from := time.Date(2026, 5, 1, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC), s.Next(from))

	s, err = NewScheduler(job, "@every 15m", 0, discard)
	require.NoError(t, err)
	assert.Equal(t, from.Add(15*time.Minute), s.Next(from))

	_, err = NewScheduler(job, "not a cron", 0, discard)
	assert.Error(t, err)
}
