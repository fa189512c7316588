package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/config"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/metrics"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func standaloneConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Market.Admin = "0x00000000000000000000000000000000000000a1"
	cfg.Market.Address = "0x00000000000000000000000000000000000000b2"
	cfg.Server.Port = 0
	return &cfg
}

func TestWireStandaloneUsesInProcessStandIns(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), standaloneConfig(), discard)
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Journal)
	assert.Nil(t, deps.Events)
	assert.Nil(t, deps.LockManager)
	assert.Nil(t, deps.Archiver)
	assert.NotNil(t, deps.RateLimiter)
	assert.NotNil(t, deps.Idempotency)
	assert.NotNil(t, deps.memIdempotency)
	assert.False(t, deps.Notifier.Enabled())
}

func TestStandaloneModeRunsUntilCancelled(t *testing.T) {
	a := New(standaloneConfig(), discard)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}

func TestRunRejectsBadFaucet(t *testing.T) {
	cfg := standaloneConfig()
	cfg.Token.FaucetAmount = "many"
	err := New(cfg, discard).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "faucet amount")
}

type stubArchiver struct {
	err   error
	calls int
}

func (s *stubArchiver) ArchiveSnapshot(_ context.Context, snap domain.LedgerSnapshot) (domain.SnapshotRecord, error) {
	s.calls++
	return domain.SnapshotRecord{CommandSeq: snap.CommandSeq}, s.err
}

func TestMeteredArchiverPassesThrough(t *testing.T) {
	stub := &stubArchiver{}
	m := meteredArchiver{next: stub, metrics: metrics.New()}

	rec, err := m.ArchiveSnapshot(context.Background(), domain.LedgerSnapshot{CommandSeq: 7})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rec.CommandSeq)

	stub.err = errors.New("bucket gone")
	_, err = m.ArchiveSnapshot(context.Background(), domain.LedgerSnapshot{})
	assert.ErrorIs(t, err, stub.err)
	assert.Equal(t, 2, stub.calls)
}

type stubVerifier struct {
	ok  bool
	err error
}

func (s stubVerifier) Verify(context.Context, domain.SnapshotRecord) (bool, error) {
	return s.ok, s.err
}

func TestSnapshotPresent(t *testing.T) {
	a := New(standaloneConfig(), discard)
	ctx := context.Background()
	rec := domain.SnapshotRecord{CommandSeq: 4, Path: "snapshots/x.json"}

	assert.True(t, a.snapshotPresent(ctx, &Dependencies{}, rec))
	assert.True(t, a.snapshotPresent(ctx, &Dependencies{Objects: stubVerifier{ok: true}}, rec))
	assert.False(t, a.snapshotPresent(ctx, &Dependencies{Objects: stubVerifier{}}, rec))
	assert.True(t, a.snapshotPresent(ctx, &Dependencies{Objects: stubVerifier{err: errors.New("timeout")}}, rec),
		"a failed check keeps the index as the source of truth")
}
