package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/ledger"
	"github.com/alanyoungcy/easybet/internal/metrics"
)

// MarketService is the application boundary around the ledger engine. It
// adds logging, metrics, the audit trail for privileged operations, and
// history queries backed by the event store.
//
// Read queries are promoted from the embedded engine. Every mutating engine
// method is shadowed here so no command bypasses logging and metrics.
type MarketService struct {
	*ledger.Engine
	events  domain.EventStore
	audit   domain.AuditStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. events and audit may be nil when
// running without Postgres.
func NewMarketService(
	engine *ledger.Engine,
	events domain.EventStore,
	audit domain.AuditStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		Engine:  engine,
		events:  events,
		audit:   audit,
		metrics: m,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// observe logs, counts and optionally audits one command.
func (s *MarketService) observe(ctx context.Context, op domain.CommandOp, actor common.Address, start time.Time, err error, attrs ...any) {
	code := "OK"
	if err != nil {
		code = domain.CodeOf(err)
	}
	s.metrics.ObserveCommand(string(op), code, time.Since(start))

	attrs = append(attrs, slog.String("op", string(op)), slog.String("actor", actor.Hex()))
	switch {
	case err == nil:
		seq, _ := s.Engine.Seq()
		s.metrics.SetCommandSeq(seq)
		s.logger.InfoContext(ctx, "command applied", append(attrs, slog.Uint64("seq", seq))...)
	case domain.KindOf(err) == domain.KindInternal:
		s.logger.ErrorContext(ctx, "command failed", append(attrs, slog.String("error", err.Error()))...)
	default:
		s.logger.DebugContext(ctx, "command rejected", append(attrs, slog.String("code", code), slog.String("error", err.Error()))...)
	}
}

// record writes an audit entry for a privileged command. Audit failures are
// logged and never fail the command, which is already durable.
func (s *MarketService) record(ctx context.Context, op domain.CommandOp, actor common.Address, detail map[string]any) {
	if s.audit == nil {
		return
	}
	detail["actor"] = actor.Hex()
	if err := s.audit.Log(ctx, string(op), detail); err != nil {
		s.logger.WarnContext(ctx, "failed to write audit log",
			slog.String("op", string(op)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) Approve(ctx context.Context, actor, spender common.Address, amt domain.Amount) error {
	start := time.Now()
	err := s.Engine.Approve(ctx, actor, spender, amt)
	s.observe(ctx, domain.OpApprove, actor, start, err, slog.String("spender", spender.Hex()), slog.String("amount", amt.String()))
	return err
}

func (s *MarketService) IncreaseAllowance(ctx context.Context, actor, spender common.Address, amt domain.Amount) error {
	start := time.Now()
	err := s.Engine.IncreaseAllowance(ctx, actor, spender, amt)
	s.observe(ctx, domain.OpIncreaseAllowance, actor, start, err, slog.String("spender", spender.Hex()))
	return err
}

func (s *MarketService) DecreaseAllowance(ctx context.Context, actor, spender common.Address, amt domain.Amount) error {
	start := time.Now()
	err := s.Engine.DecreaseAllowance(ctx, actor, spender, amt)
	s.observe(ctx, domain.OpDecreaseAllowance, actor, start, err, slog.String("spender", spender.Hex()))
	return err
}

func (s *MarketService) Transfer(ctx context.Context, actor, to common.Address, amt domain.Amount) error {
	start := time.Now()
	err := s.Engine.Transfer(ctx, actor, to, amt)
	s.observe(ctx, domain.OpTransfer, actor, start, err, slog.String("to", to.Hex()), slog.String("amount", amt.String()))
	return err
}

func (s *MarketService) TransferFrom(ctx context.Context, actor, from, to common.Address, amt domain.Amount) error {
	start := time.Now()
	err := s.Engine.TransferFrom(ctx, actor, from, to, amt)
	s.observe(ctx, domain.OpTransferFrom, actor, start, err,
		slog.String("from", from.Hex()), slog.String("to", to.Hex()), slog.String("amount", amt.String()))
	return err
}

func (s *MarketService) ClaimTokens(ctx context.Context, actor common.Address) (domain.Amount, error) {
	start := time.Now()
	amt, err := s.Engine.ClaimTokens(ctx, actor)
	s.observe(ctx, domain.OpClaimTokens, actor, start, err)
	return amt, err
}

func (s *MarketService) Mint(ctx context.Context, actor, to common.Address, amt domain.Amount) error {
	start := time.Now()
	err := s.Engine.Mint(ctx, actor, to, amt)
	s.observe(ctx, domain.OpMint, actor, start, err, slog.String("to", to.Hex()), slog.String("amount", amt.String()))
	if err == nil {
		s.record(ctx, domain.OpMint, actor, map[string]any{"to": to.Hex(), "amount": amt.String()})
	}
	return err
}

func (s *MarketService) TransferAdmin(ctx context.Context, actor, newAdmin common.Address) error {
	start := time.Now()
	err := s.Engine.TransferAdmin(ctx, actor, newAdmin)
	s.observe(ctx, domain.OpTransferAdmin, actor, start, err, slog.String("new_admin", newAdmin.Hex()))
	if err == nil {
		s.record(ctx, domain.OpTransferAdmin, actor, map[string]any{"new_admin": newAdmin.Hex()})
	}
	return err
}

func (s *MarketService) CreateProject(ctx context.Context, actor common.Address, params ledger.CreateProjectParams) (uint64, error) {
	start := time.Now()
	id, err := s.Engine.CreateProject(ctx, actor, params)
	s.observe(ctx, domain.OpCreateProject, actor, start, err, slog.Uint64("project_id", id), slog.String("title", params.Title))
	return id, err
}

func (s *MarketService) FundProject(ctx context.Context, actor common.Address, projectID uint64, amt domain.Amount) error {
	start := time.Now()
	err := s.Engine.FundProject(ctx, actor, projectID, amt)
	s.observe(ctx, domain.OpFundProject, actor, start, err, slog.Uint64("project_id", projectID), slog.String("amount", amt.String()))
	return err
}

func (s *MarketService) CloseProject(ctx context.Context, actor common.Address, projectID uint64) error {
	start := time.Now()
	err := s.Engine.CloseProject(ctx, actor, projectID)
	s.observe(ctx, domain.OpCloseProject, actor, start, err, slog.Uint64("project_id", projectID))
	if err == nil {
		s.record(ctx, domain.OpCloseProject, actor, map[string]any{"project_id": projectID})
	}
	return err
}

func (s *MarketService) PurchaseTicket(ctx context.Context, actor common.Address, projectID, option uint64) (uint64, error) {
	start := time.Now()
	id, err := s.Engine.PurchaseTicket(ctx, actor, projectID, option)
	s.observe(ctx, domain.OpPurchaseTicket, actor, start, err,
		slog.Uint64("project_id", projectID), slog.Uint64("option", option), slog.Uint64("ticket_id", id))
	return id, err
}

func (s *MarketService) SettleProject(ctx context.Context, actor common.Address, projectID, winning uint64) (ledger.SettlementPlan, error) {
	start := time.Now()
	plan, err := s.Engine.SettleProject(ctx, actor, projectID, winning)
	s.observe(ctx, domain.OpSettleProject, actor, start, err,
		slog.Uint64("project_id", projectID), slog.Uint64("winning_option", winning))
	if err == nil {
		s.record(ctx, domain.OpSettleProject, actor, map[string]any{
			"project_id":     projectID,
			"winning_option": winning,
			"pool":           plan.Pool.String(),
			"winners":        plan.Winners,
			"refund":         plan.Refund,
		})
	}
	return plan, err
}

func (s *MarketService) TransferTicket(ctx context.Context, actor common.Address, ticketID uint64, to common.Address) error {
	start := time.Now()
	err := s.Engine.TransferTicket(ctx, actor, ticketID, to)
	s.observe(ctx, domain.OpTransferTicket, actor, start, err, slog.Uint64("ticket_id", ticketID), slog.String("to", to.Hex()))
	return err
}

func (s *MarketService) ListTicket(ctx context.Context, actor common.Address, ticketID uint64, price domain.Amount) (uint64, error) {
	start := time.Now()
	id, err := s.Engine.ListTicket(ctx, actor, ticketID, price)
	s.observe(ctx, domain.OpListTicket, actor, start, err,
		slog.Uint64("ticket_id", ticketID), slog.Uint64("order_id", id), slog.String("price", price.String()))
	return id, err
}

func (s *MarketService) CancelOrder(ctx context.Context, actor common.Address, orderID uint64) error {
	start := time.Now()
	err := s.Engine.CancelOrder(ctx, actor, orderID)
	s.observe(ctx, domain.OpCancelOrder, actor, start, err, slog.Uint64("order_id", orderID))
	if err == nil && actor == s.Engine.Admin() {
		s.record(ctx, domain.OpCancelOrder, actor, map[string]any{"order_id": orderID})
	}
	return err
}

func (s *MarketService) BuyListedTicket(ctx context.Context, actor common.Address, orderID uint64) (uint64, error) {
	start := time.Now()
	id, err := s.Engine.BuyListedTicket(ctx, actor, orderID)
	s.observe(ctx, domain.OpBuyListedTicket, actor, start, err, slog.Uint64("order_id", orderID), slog.Uint64("ticket_id", id))
	return id, err
}

// ProjectHistory returns persisted events for one project.
func (s *MarketService) ProjectHistory(ctx context.Context, projectID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	if s.events == nil {
		return nil, fmt.Errorf("service: project history: %w", domain.ErrUnavailable)
	}
	if _, err := s.Engine.Project(projectID); err != nil {
		return nil, err
	}
	evts, err := s.events.ListByProject(ctx, projectID, opts)
	if err != nil {
		return nil, fmt.Errorf("service: project history: %w", err)
	}
	return evts, nil
}

// AccountHistory returns persisted events involving one account.
func (s *MarketService) AccountHistory(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Event, error) {
	if s.events == nil {
		return nil, fmt.Errorf("service: account history: %w", domain.ErrUnavailable)
	}
	evts, err := s.events.ListByAccount(ctx, account, opts)
	if err != nil {
		return nil, fmt.Errorf("service: account history: %w", err)
	}
	return evts, nil
}

// AuditLog returns recent audit entries.
func (s *MarketService) AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.audit == nil {
		return nil, fmt.Errorf("service: audit log: %w", domain.ErrUnavailable)
	}
	return s.audit.List(ctx, opts)
}

// IsUnavailable reports whether err means the backing store is not wired.
func IsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrUnavailable)
}
