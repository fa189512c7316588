package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The full event
// is kept as JSONB; the scalar columns exist for filtering.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// InsertBatch writes events in one round trip. Rows already present are
// skipped, so redelivery after a crash is harmless.
func (s *EventStore) InsertBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	const query = `
		INSERT INTO ledger_events (
			seq, command_seq, type, topic, at, project_id, ticket_id, order_id,
			from_addr, to_addr, amount, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::numeric, $12)
		ON CONFLICT (seq) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("postgres: marshal event %d: %w", e.Seq, err)
		}
		batch.Queue(query,
			int64(e.Seq), int64(e.CommandSeq), string(e.Type), e.Topic.Hex(), utc(e.At),
			idParam(e.ProjectID), idParam(e.TicketID), idParam(e.OrderID),
			addrParam(e.From), addrParam(e.To), e.Amount.String(), payload,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, e := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert event %d: %w", e.Seq, err)
		}
	}
	return nil
}

// ListAfter returns events with seq greater than afterSeq in ascending order.
func (s *EventStore) ListAfter(ctx context.Context, afterSeq uint64, limit int) ([]domain.Event, error) {
	q := newListQuery(`SELECT payload FROM ledger_events`)
	q.and("seq > $%d", int64(afterSeq))
	query, args := q.build("seq", domain.ListOpts{Limit: limit})
	return s.query(ctx, "list events after", query, args)
}

// ListByProject returns a project's events, oldest first.
func (s *EventStore) ListByProject(ctx context.Context, projectID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	q := newListQuery(`SELECT payload FROM ledger_events`)
	q.and("project_id = $%d", int64(projectID))
	q.timeRange("at", opts)
	query, args := q.build("seq", opts)
	return s.query(ctx, "list project events", query, args)
}

// ListByAccount returns events where account is either party, oldest first.
func (s *EventStore) ListByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Event, error) {
	q := newListQuery(`SELECT payload FROM ledger_events`)
	q.and("(from_addr = $%d OR to_addr = $%d)", addrParam(account))
	q.timeRange("at", opts)
	query, args := q.build("seq", opts)
	return s.query(ctx, "list account events", query, args)
}

func (s *EventStore) query(ctx context.Context, op, query string, args []any) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		var e domain.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return events, nil
}
