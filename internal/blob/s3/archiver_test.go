package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/domain"
)

type memBlobs struct {
	objects   map[string][]byte
	multipart int
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: make(map[string][]byte)} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	m.objects[path] = b
	return err
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.multipart++
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(context.Context, string) ([]domain.BlobInfo, error) { return nil, nil }

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type memIndex struct{ recs []domain.SnapshotRecord }

func (m *memIndex) Record(_ context.Context, rec domain.SnapshotRecord) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memIndex) Latest(context.Context) (domain.SnapshotRecord, error) {
	if len(m.recs) == 0 {
		return domain.SnapshotRecord{}, domain.ErrNotFound
	}
	return m.recs[len(m.recs)-1], nil
}

func (m *memIndex) List(context.Context, domain.ListOpts) ([]domain.SnapshotRecord, error) {
	return m.recs, nil
}

func TestSnapshotPath(t *testing.T) {
	at := time.Date(2026, 3, 14, 23, 59, 0, 0, time.FixedZone("x", -3600))
	assert.Equal(t, "snapshots/2026/03/15/000000000042-abc.json", SnapshotPath(42, at, "abc"))
}

func TestArchiveAndLoadLatest(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	index := &memIndex{}
	a := NewArchiver(blobs, blobs, index, nil)

	_, err := a.LatestSnapshot(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	snap := domain.LedgerSnapshot{
		CommandSeq: 9,
		EventSeq:   20,
		TakenAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Admin:      common.HexToAddress("0xa"),
		Balances:   map[common.Address]domain.Amount{common.HexToAddress("0xb"): domain.Tokens(5)},
	}
	rec, err := a.ArchiveSnapshot(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), rec.CommandSeq)
	assert.True(t, strings.HasPrefix(rec.Path, "snapshots/2026/01/02/000000000009-"))
	assert.Equal(t, int64(len(blobs.objects[rec.Path])), rec.SizeBytes)
	assert.Zero(t, blobs.multipart)

	got, err := a.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), got.EventSeq)
	assert.True(t, got.Balances[common.HexToAddress("0xb")].Eq(domain.Tokens(5)))
}

func TestVerifyDetectsMissingObject(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, &memIndex{}, nil)

	rec, err := a.ArchiveSnapshot(ctx, domain.LedgerSnapshot{CommandSeq: 3, TakenAt: time.Now()})
	require.NoError(t, err)

	ok, err := a.Verify(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)

	delete(blobs.objects, rec.Path)
	ok, err = a.Verify(ctx, rec)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = a.Verify(ctx, domain.SnapshotRecord{})
	assert.False(t, ok)
}

func TestClientKeys(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"", ""},
		{"easybet", "easybet/"},
		{"/prod//easybet/", "prod/easybet/"},
	} {
		assert.Equal(t, tc.want, cleanPrefix(tc.in), tc.in)
	}

	c := newClient(nil, "bucket", "prod/easybet")
	assert.Equal(t, "prod/easybet/snapshots/a.json", *c.key("snapshots/a.json"))
	assert.Equal(t, "snapshots/a.json", c.relative("prod/easybet/snapshots/a.json"))
	assert.Equal(t, "snapshots/a.json", *newClient(nil, "bucket", "").key("snapshots/a.json"))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
}
