package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/easybet/internal/domain"
)

const (
	snapshotContentType = "application/json"
	// multipartThreshold switches large snapshots to the multipart uploader.
	multipartThreshold int64 = 16 * 1024 * 1024
	partSize           int64 = 8 * 1024 * 1024
)

// Archiver implements domain.SnapshotArchiver. Each snapshot becomes one JSON
// object; the index row in the snapshot store is written only after the
// upload succeeds, so every indexed path exists.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	index  domain.SnapshotStore
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, index domain.SnapshotStore, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, reader: reader, index: index, audit: audit}
}

// ArchiveSnapshot uploads snap and records it in the index.
func (a *Archiver) ArchiveSnapshot(ctx context.Context, snap domain.LedgerSnapshot) (domain.SnapshotRecord, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return domain.SnapshotRecord{}, fmt.Errorf("s3blob: marshal snapshot %d: %w", snap.CommandSeq, err)
	}

	path := SnapshotPath(snap.CommandSeq, snap.TakenAt, uuid.NewString())
	size := int64(len(data))
	if size >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(data), partSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(data), snapshotContentType)
	}
	if err != nil {
		return domain.SnapshotRecord{}, fmt.Errorf("s3blob: upload snapshot %d: %w", snap.CommandSeq, err)
	}

	rec := domain.SnapshotRecord{
		CommandSeq: snap.CommandSeq,
		Path:       path,
		SizeBytes:  size,
		TakenAt:    snap.TakenAt,
	}
	if err := a.index.Record(ctx, rec); err != nil {
		return rec, fmt.Errorf("s3blob: index snapshot %d: %w", snap.CommandSeq, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.snapshot", map[string]any{
			"path":       path,
			"commandSeq": snap.CommandSeq,
			"sizeBytes":  size,
		}); err != nil {
			return rec, fmt.Errorf("s3blob: audit snapshot %d: %w", snap.CommandSeq, err)
		}
	}
	return rec, nil
}

// LoadSnapshot downloads and decodes the snapshot at path.
func (a *Archiver) LoadSnapshot(ctx context.Context, path string) (domain.LedgerSnapshot, error) {
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return domain.LedgerSnapshot{}, err
	}
	defer body.Close()

	var snap domain.LedgerSnapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("s3blob: decode snapshot %s: %w", path, err)
	}
	return snap, nil
}

// LatestSnapshot loads the most recently indexed snapshot.
func (a *Archiver) LatestSnapshot(ctx context.Context) (domain.LedgerSnapshot, error) {
	rec, err := a.index.Latest(ctx)
	if err != nil {
		return domain.LedgerSnapshot{}, err
	}
	return a.LoadSnapshot(ctx, rec.Path)
}

// Verify reports whether the object behind an index record is still in the
// bucket. Lifecycle rules or manual cleanup can remove objects the index
// still lists.
func (a *Archiver) Verify(ctx context.Context, rec domain.SnapshotRecord) (bool, error) {
	if rec.Path == "" {
		return false, nil
	}
	return a.reader.Exists(ctx, rec.Path)
}

// SnapshotPath builds the object key for a snapshot, partitioned by day:
//
//	snapshots/2026/03/14/000000000042-<uuid>.json
//
// The zero-padded seq keeps a day's objects listing in ledger order.
func SnapshotPath(commandSeq uint64, takenAt time.Time, id string) string {
	return fmt.Sprintf("snapshots/%s/%012d-%s.json", takenAt.UTC().Format("2006/01/02"), commandSeq, id)
}

// Compile-time interface check.
var _ domain.SnapshotArchiver = (*Archiver)(nil)
