package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// pgUniqueViolation is the SQLSTATE for a duplicate primary key.
const pgUniqueViolation = "23505"

// JournalStore implements domain.JournalStore using PostgreSQL.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a new JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Append writes cmd. A second writer reusing a sequence number gets
// domain.ErrSeqConflict; the journal never overwrites.
func (s *JournalStore) Append(ctx context.Context, cmd domain.Command) error {
	const query = `
		INSERT INTO ledger_commands (seq, op, actor, payload, at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		int64(cmd.Seq), string(cmd.Op), cmd.Actor.Hex(), []byte(cmd.Payload), utc(cmd.At),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("postgres: append command %d: %w", cmd.Seq, domain.ErrSeqConflict)
		}
		return fmt.Errorf("postgres: append command %d: %w", cmd.Seq, err)
	}
	return nil
}

// Load returns up to limit commands with seq greater than afterSeq, in
// order. limit <= 0 returns everything.
func (s *JournalStore) Load(ctx context.Context, afterSeq uint64, limit int) ([]domain.Command, error) {
	query := `SELECT seq, op, actor, payload, at FROM ledger_commands WHERE seq > $1 ORDER BY seq`
	args := []any{int64(afterSeq)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: load commands after %d: %w", afterSeq, err)
	}
	defer rows.Close()

	var cmds []domain.Command
	for rows.Next() {
		var (
			seq     int64
			op      string
			actor   string
			payload []byte
			cmd     domain.Command
		)
		if err := rows.Scan(&seq, &op, &actor, &payload, &cmd.At); err != nil {
			return nil, fmt.Errorf("postgres: scan command: %w", err)
		}
		cmd.Seq = uint64(seq)
		cmd.Op = domain.CommandOp(op)
		cmd.Actor = common.HexToAddress(actor)
		cmd.Payload = payload
		cmd.At = utc(cmd.At)
		cmds = append(cmds, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load commands rows: %w", err)
	}
	return cmds, nil
}

// LastSeq returns the highest journaled sequence, or 0 for an empty journal.
func (s *JournalStore) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_commands`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("postgres: last command seq: %w", err)
	}
	return uint64(seq), nil
}
