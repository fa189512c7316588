package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// Bus channel and stream names.
const (
	ChannelLedger        = "ch:ledger"
	ChannelProjectPrefix = "ch:project:"
	StreamLedger         = "stream:ledger"
)

// ProjectChannel returns the pub/sub channel for one project's events.
func ProjectChannel(projectID uint64) string {
	return ChannelProjectPrefix + strconv.FormatUint(projectID, 10)
}

// StoreSink appends events to the persistent event log.
type StoreSink struct {
	store domain.EventStore
}

func NewStoreSink(store domain.EventStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "event_store" }

func (s *StoreSink) Deliver(ctx context.Context, events []domain.Event) error {
	return s.store.InsertBatch(ctx, events)
}

// BusSink publishes each event on the ledger channel, on its project's
// channel, and on the durable ledger stream.
type BusSink struct {
	bus domain.SignalBus
}

func NewBusSink(bus domain.SignalBus) *BusSink {
	return &BusSink{bus: bus}
}

func (s *BusSink) Name() string { return "signal_bus" }

func (s *BusSink) Deliver(ctx context.Context, events []domain.Event) error {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("events: marshal event %d: %w", e.Seq, err)
		}
		if err := s.bus.StreamAppend(ctx, StreamLedger, payload); err != nil {
			return err
		}
		if err := s.bus.Publish(ctx, ChannelLedger, payload); err != nil {
			return err
		}
		if e.ProjectID != 0 {
			if err := s.bus.Publish(ctx, ProjectChannel(e.ProjectID), payload); err != nil {
				return err
			}
		}
	}
	return nil
}

// StateReader is the read side of the ledger needed to refresh projections.
type StateReader interface {
	Project(id uint64) (domain.Project, error)
	Order(id uint64) (domain.Order, error)
}

// ProjectionSink refreshes cached copies of every project and order touched
// by a batch, reading their current state from the ledger.
type ProjectionSink struct {
	cache  domain.ProjectionCache
	reader StateReader
}

func NewProjectionSink(cache domain.ProjectionCache, reader StateReader) *ProjectionSink {
	return &ProjectionSink{cache: cache, reader: reader}
}

func (s *ProjectionSink) Name() string { return "projection_cache" }

func (s *ProjectionSink) Deliver(ctx context.Context, events []domain.Event) error {
	projects := make(map[uint64]struct{})
	orders := make(map[uint64]struct{})
	for _, e := range events {
		if e.ProjectID != 0 {
			projects[e.ProjectID] = struct{}{}
		}
		if e.OrderID != 0 {
			orders[e.OrderID] = struct{}{}
		}
	}

	for id := range projects {
		p, err := s.reader.Project(id)
		if err != nil {
			return fmt.Errorf("events: read project %d: %w", id, err)
		}
		if err := s.cache.SetProject(ctx, p); err != nil {
			return err
		}
	}
	for id := range orders {
		o, err := s.reader.Order(id)
		if err != nil {
			return fmt.Errorf("events: read order %d: %w", id, err)
		}
		if err := s.cache.SetOrder(ctx, o); err != nil {
			return err
		}
	}
	return nil
}
