package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// Journal receives every accepted command before it is applied. If Append
// fails the command is rejected and state is unchanged.
type Journal interface {
	Append(ctx context.Context, cmd domain.Command) error
}

// journalHead is implemented by journals that can report their last
// sequence number. The engine uses it to settle an Append whose outcome is
// unknown, such as a timeout after the row was committed.
type journalHead interface {
	LastSeq(ctx context.Context) (uint64, error)
}

// journalTimeout bounds one Append. Appends run detached from the caller's
// context so a cancelled request cannot abandon a write mid-flight.
const journalTimeout = 10 * time.Second

// EventSink receives committed events in sequence order. Push is called with
// the engine lock held and must not block.
type EventSink interface {
	Push(events ...domain.Event)
}

// Config is the genesis configuration of a ledger. Replaying a journal is
// only meaningful against the same Admin, Market and FaucetAmount.
type Config struct {
	Admin        common.Address
	Market       common.Address
	TokenName    string
	TokenSymbol  string
	FaucetAmount domain.Amount
	Clock        Clock
	Journal      Journal
	Sink         EventSink
}

// Engine serialises every state-changing operation across the token ledger,
// ticket registry, project registry, order book and settlement engine.
//
// Each operation runs in three phases under a single lock: validate against
// current state without mutating, append the command to the journal, then
// apply. Apply cannot fail, so an operation either takes full effect or none.
type Engine struct {
	mu      sync.RWMutex
	clock   Clock
	journal Journal
	sink    EventSink
	roles   Roles
	market  common.Address

	token      *TokenLedger
	tickets    *TicketRegistry
	projects   *ProjectRegistry
	orders     *OrderBook
	settlement *SettlementEngine

	cmdSeq    uint64
	eventSeq  uint64
	txSeq     uint64
	txAt      time.Time
	pending   []domain.Event
	replaying bool

	// halted is set when the journal may hold a command the engine did not
	// apply. Every later write is refused until the process restarts and
	// replays the journal.
	halted error
}

// command is a journaled operation. prepare validates against current state
// and returns the mutation to run once the command is durable.
type command interface {
	op() domain.CommandOp
	prepare(e *Engine, actor common.Address, now time.Time) (apply func(), err error)
}

// New creates an empty ledger.
func New(cfg Config) (*Engine, error) {
	if cfg.Admin == (common.Address{}) {
		return nil, errors.New("ledger: admin address is required")
	}
	if cfg.Market == (common.Address{}) {
		return nil, errors.New("ledger: market address is required")
	}
	if cfg.Admin == cfg.Market {
		return nil, errors.New("ledger: admin and market addresses must differ")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.TokenName == "" {
		cfg.TokenName = "EasyBet Token"
	}
	if cfg.TokenSymbol == "" {
		cfg.TokenSymbol = "EBT"
	}

	e := &Engine{
		clock:    cfg.Clock,
		journal:  cfg.Journal,
		sink:     cfg.Sink,
		roles:    Roles{Admin: cfg.Admin},
		market:   cfg.Market,
		token:    newTokenLedger(cfg.TokenName, cfg.TokenSymbol, cfg.FaucetAmount),
		tickets:  newTicketRegistry(),
		projects: newProjectRegistry(),
		orders:   newOrderBook(),
	}
	e.settlement = &SettlementEngine{
		projects: e.projects,
		tickets:  e.tickets,
		orders:   e.orders,
		token:    e.token,
	}
	return e, nil
}

func (e *Engine) submit(ctx context.Context, actor common.Address, c command) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ledger: %s: %w", c.op(), err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted != nil {
		return fmt.Errorf("ledger: %s: %w: %v", c.op(), domain.ErrLedgerHalted, e.halted)
	}
	// The market identity only spends allowances inside purchases and fills.
	// Nobody may act as it directly.
	if actor == e.market {
		return fmt.Errorf("ledger: %s: %w: market identity cannot act", c.op(), domain.ErrUnauthorized)
	}
	return e.run(ctx, actor, c, e.clock.Now().UTC().Truncate(time.Second), true)
}

func (e *Engine) run(ctx context.Context, actor common.Address, c command, now time.Time, journal bool) error {
	op := c.op()
	if actor == (common.Address{}) {
		return fmt.Errorf("ledger: %s: %w: missing actor", op, domain.ErrUnauthorized)
	}

	apply, err := c.prepare(e, actor, now)
	if err != nil {
		return fmt.Errorf("ledger: %s: %w", op, err)
	}

	seq := e.cmdSeq + 1
	if journal && e.journal != nil {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("ledger: %s: encode payload: %w", op, err)
		}
		cmd := domain.Command{Seq: seq, Op: op, Actor: actor, Payload: payload, At: now}
		if err := e.record(ctx, cmd); err != nil {
			return fmt.Errorf("ledger: %s: journal: %w", op, err)
		}
	}

	e.cmdSeq = seq
	e.txSeq, e.txAt = seq, now
	apply()
	e.commit()
	return nil
}

// record journals cmd. On an Append error it asks the journal where its head
// is: at cmd.Seq the command is durable and counts as written, at cmd.Seq-1
// it was definitely not written and the error is returned. Any other answer
// halts the engine.
func (e *Engine) record(ctx context.Context, cmd domain.Command) error {
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	appendErr := e.journal.Append(jctx, cmd)
	if appendErr == nil {
		return nil
	}
	head, ok := e.journal.(journalHead)
	switch {
	case errors.Is(appendErr, domain.ErrSeqConflict):
		// Another writer owns this sequence number; live state is stale.
		e.halted = appendErr
		return appendErr
	case errors.Is(appendErr, context.DeadlineExceeded), !ok:
		// A timed-out write may still commit after any head check.
		e.halted = appendErr
		return appendErr
	}

	hctx, hcancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer hcancel()
	last, err := head.LastSeq(hctx)
	switch {
	case err != nil:
		e.halted = fmt.Errorf("%w (journal head unknown: %v)", appendErr, err)
		return appendErr
	case last == cmd.Seq:
		return nil
	case last == cmd.Seq-1:
		return appendErr
	default:
		e.halted = fmt.Errorf("%w (journal head %d, expected %d)", appendErr, last, cmd.Seq-1)
		return appendErr
	}
}

// Halted reports why the engine stopped accepting writes, or nil.
func (e *Engine) Halted() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.halted
}

func (e *Engine) emit(evt domain.Event) {
	e.eventSeq++
	evt.Seq = e.eventSeq
	evt.CommandSeq = e.txSeq
	evt.At = e.txAt
	evt.Topic = evt.Type.Topic()
	e.pending = append(e.pending, evt)
}

func (e *Engine) commit() {
	if len(e.pending) == 0 {
		return
	}
	if e.sink != nil && !e.replaying {
		e.sink.Push(e.pending...)
	}
	e.pending = nil
}

// Replay re-applies journaled commands at their recorded times without
// journaling them again. Events produced during replay are numbered but not
// pushed to the sink. Commands must continue the current sequence.
func (e *Engine) Replay(ctx context.Context, cmds []domain.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.replaying = true
	defer func() { e.replaying = false }()

	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ledger: replay: %w", err)
		}
		if cmd.Seq != e.cmdSeq+1 {
			return fmt.Errorf("ledger: replay: expected seq %d, got %d", e.cmdSeq+1, cmd.Seq)
		}
		c, err := decodeCommand(cmd.Op, cmd.Payload)
		if err != nil {
			return fmt.Errorf("ledger: replay seq %d: %w", cmd.Seq, err)
		}
		if err := e.run(ctx, cmd.Actor, c, cmd.At.UTC(), false); err != nil {
			return fmt.Errorf("ledger: replay seq %d: %w", cmd.Seq, err)
		}
	}
	return nil
}

// Seq returns the last applied command and event sequence numbers.
func (e *Engine) Seq() (commandSeq, eventSeq uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cmdSeq, e.eventSeq
}

// Admin returns the current admin identity.
func (e *Engine) Admin() common.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.roles.Admin
}

// Market returns the spender identity used for ticket payments.
func (e *Engine) Market() common.Address { return e.market }

// Now returns the engine clock reading used for expiry checks.
func (e *Engine) Now() time.Time { return e.clock.Now().UTC().Truncate(time.Second) }

// Snapshot returns a deep copy of the whole ledger.
func (e *Engine) Snapshot() domain.LedgerSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := domain.LedgerSnapshot{
		CommandSeq: e.cmdSeq,
		EventSeq:   e.eventSeq,
		TakenAt:    e.clock.Now().UTC(),
		Admin:      e.roles.Admin,
		Market:     e.market,
	}
	e.token.snapshot(&s)
	e.projects.snapshot(&s)
	e.tickets.snapshot(&s)
	e.orders.snapshot(&s)
	return s
}

// Audit checks the cross-component invariants and returns the first
// violation found.
func (e *Engine) Audit() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.token.audit(); err != nil {
		return fmt.Errorf("ledger: audit token: %w", err)
	}
	if err := e.tickets.audit(); err != nil {
		return fmt.Errorf("ledger: audit tickets: %w", err)
	}

	for i := range e.projects.projects {
		p := &e.projects.projects[i]
		ids := e.tickets.byProject[p.ID]
		if uint64(len(ids)) != p.SoldTickets {
			return fmt.Errorf("ledger: audit project %d: %d tickets indexed, %d sold", p.ID, len(ids), p.SoldTickets)
		}
		if p.SoldTickets > p.MaxTickets {
			return fmt.Errorf("ledger: audit project %d: sold %d > max %d", p.ID, p.SoldTickets, p.MaxTickets)
		}
		var counted uint64
		for _, c := range p.OptionCounts {
			counted += c
		}
		if counted != p.SoldTickets {
			return fmt.Errorf("ledger: audit project %d: option counts sum %d, sold %d", p.ID, counted, p.SoldTickets)
		}
		escrow := e.token.EscrowOf(p.ID)
		switch {
		case p.Status == domain.ProjectSettled && !escrow.IsZero():
			return fmt.Errorf("ledger: audit project %d: settled with escrow %s", p.ID, escrow)
		case p.Status != domain.ProjectSettled && !escrow.Eq(p.TotalPrize):
			return fmt.Errorf("ledger: audit project %d: escrow %s != prize %s", p.ID, escrow, p.TotalPrize)
		}
	}

	active := 0
	for i := range e.orders.orders {
		o := &e.orders.orders[i]
		if !o.Active {
			continue
		}
		active++
		if id, ok := e.orders.activeByTicket[o.TicketID]; !ok || id != o.ID {
			return fmt.Errorf("ledger: audit order %d: not indexed as active for ticket %d", o.ID, o.TicketID)
		}
		t := &e.tickets.tickets[o.TicketID-1]
		if t.Owner != o.Seller {
			return fmt.Errorf("ledger: audit order %d: seller %s does not own ticket %d", o.ID, o.Seller.Hex(), o.TicketID)
		}
	}
	if active != len(e.orders.activeByTicket) {
		return fmt.Errorf("ledger: audit: %d active orders, %d indexed", active, len(e.orders.activeByTicket))
	}
	return nil
}
