package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// JournalStore persists the ordered command journal. Append must be durable
// before it returns; the ledger applies a command only after that.
type JournalStore interface {
	Append(ctx context.Context, cmd Command) error
	Load(ctx context.Context, afterSeq uint64, limit int) ([]Command, error)
	LastSeq(ctx context.Context) (uint64, error)
}

// EventStore persists the event log for history queries. InsertBatch is
// idempotent on Event.Seq.
type EventStore interface {
	InsertBatch(ctx context.Context, events []Event) error
	ListAfter(ctx context.Context, afterSeq uint64, limit int) ([]Event, error)
	ListByProject(ctx context.Context, projectID uint64, opts ListOpts) ([]Event, error)
	ListByAccount(ctx context.Context, account common.Address, opts ListOpts) ([]Event, error)
}

// SnapshotRecord indexes a snapshot object stored in blob storage.
type SnapshotRecord struct {
	CommandSeq uint64    `json:"commandSeq"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"sizeBytes"`
	TakenAt    time.Time `json:"takenAt"`
}

// SnapshotStore indexes archived snapshots.
type SnapshotStore interface {
	Record(ctx context.Context, rec SnapshotRecord) error
	Latest(ctx context.Context) (SnapshotRecord, error)
	List(ctx context.Context, opts ListOpts) ([]SnapshotRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
