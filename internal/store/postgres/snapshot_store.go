package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Record indexes an archived snapshot. Re-archiving the same command seq
// replaces the previous row.
func (s *SnapshotStore) Record(ctx context.Context, rec domain.SnapshotRecord) error {
	const query = `
		INSERT INTO ledger_snapshots (command_seq, path, size_bytes, taken_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (command_seq) DO UPDATE SET
			path = EXCLUDED.path,
			size_bytes = EXCLUDED.size_bytes,
			taken_at = EXCLUDED.taken_at`

	if _, err := s.pool.Exec(ctx, query, int64(rec.CommandSeq), rec.Path, rec.SizeBytes, utc(rec.TakenAt)); err != nil {
		return fmt.Errorf("postgres: record snapshot %d: %w", rec.CommandSeq, err)
	}
	return nil
}

// Latest returns the snapshot with the highest command seq, or
// domain.ErrNotFound when none exists.
func (s *SnapshotStore) Latest(ctx context.Context) (domain.SnapshotRecord, error) {
	const query = `
		SELECT command_seq, path, size_bytes, taken_at
		FROM ledger_snapshots ORDER BY command_seq DESC LIMIT 1`

	rec, err := scanSnapshot(s.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SnapshotRecord{}, fmt.Errorf("postgres: latest snapshot: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.SnapshotRecord{}, fmt.Errorf("postgres: latest snapshot: %w", err)
	}
	return rec, nil
}

// List returns snapshots newest first.
func (s *SnapshotStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.SnapshotRecord, error) {
	q := newListQuery(`SELECT command_seq, path, size_bytes, taken_at FROM ledger_snapshots`)
	q.timeRange("taken_at", opts)
	query, args := q.build("command_seq DESC", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()

	var recs []domain.SnapshotRecord
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots rows: %w", err)
	}
	return recs, nil
}

func scanSnapshot(row pgx.Row) (domain.SnapshotRecord, error) {
	var (
		rec domain.SnapshotRecord
		seq int64
	)
	if err := row.Scan(&seq, &rec.Path, &rec.SizeBytes, &rec.TakenAt); err != nil {
		return domain.SnapshotRecord{}, err
	}
	rec.CommandSeq = uint64(seq)
	rec.TakenAt = utc(rec.TakenAt)
	return rec, nil
}
