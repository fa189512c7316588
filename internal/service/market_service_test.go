package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/ledger"
	"github.com/alanyoungcy/easybet/internal/metrics"
)

var (
	admin  = common.HexToAddress("0xa1")
	market = common.HexToAddress("0xb2")
	alice  = common.HexToAddress("0x11")
	bob    = common.HexToAddress("0x22")
)

type memJournal struct {
	mu   sync.Mutex
	cmds []domain.Command
}

func (j *memJournal) Append(_ context.Context, cmd domain.Command) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cmds = append(j.cmds, cmd)
	return nil
}

func (j *memJournal) Load(_ context.Context, after uint64, limit int) ([]domain.Command, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.Command
	for _, c := range j.cmds {
		if c.Seq > after && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (j *memJournal) LastSeq(context.Context) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.cmds) == 0 {
		return 0, nil
	}
	return j.cmds[len(j.cmds)-1].Seq, nil
}

type memAudit struct {
	entries []domain.AuditEntry
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.entries = append(a.entries, domain.AuditEntry{ID: int64(len(a.entries) + 1), Event: event, Detail: detail})
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return a.entries, nil
}

type MarketServiceSuite struct {
	suite.Suite
	journal *memJournal
	audit   *memAudit
	svc     *MarketService
	ctx     context.Context
}

func (s *MarketServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.journal = &memJournal{}
	s.audit = &memAudit{}
	eng, err := ledger.New(ledger.Config{
		Admin:        admin,
		Market:       market,
		FaucetAmount: domain.NewAmount(100),
		Journal:      s.journal,
	})
	s.Require().NoError(err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = NewMarketService(eng, nil, s.audit, metrics.New(), logger)
}

func (s *MarketServiceSuite) TestPrivilegedCommandsAreAudited() {
	s.Require().NoError(s.svc.Mint(s.ctx, admin, alice, domain.NewAmount(50)))
	s.Require().NoError(s.svc.Approve(s.ctx, alice, market, domain.MaxAmount()))

	id, err := s.svc.CreateProject(s.ctx, admin, ledger.CreateProjectParams{
		Title:       "Rain tomorrow",
		Options:     []string{"yes", "no"},
		TicketPrice: domain.NewAmount(5),
		MaxTickets:  10,
		Duration:    600,
	})
	s.Require().NoError(err)
	_, err = s.svc.PurchaseTicket(s.ctx, alice, id, 1)
	s.Require().NoError(err)
	_, err = s.svc.SettleProject(s.ctx, admin, id, 1)
	s.Require().NoError(err)

	var events []string
	for _, e := range s.audit.entries {
		events = append(events, e.Event)
	}
	s.Equal([]string{"mint", "settle_project"}, events)
	s.Equal(admin.Hex(), s.audit.entries[1].Detail["actor"])
}

func (s *MarketServiceSuite) TestRejectedCommandsAreNotAudited() {
	err := s.svc.Mint(s.ctx, bob, bob, domain.NewAmount(1))
	s.ErrorIs(err, domain.ErrUnauthorized)
	s.Empty(s.audit.entries)
	s.Empty(s.journal.cmds)
}

func (s *MarketServiceSuite) TestHistoryUnavailableWithoutStore() {
	_, err := s.svc.AccountHistory(s.ctx, alice, domain.ListOpts{})
	s.True(IsUnavailable(err))
}

func (s *MarketServiceSuite) TestRecoverReplaysJournal() {
	_, err := s.svc.ClaimTokens(s.ctx, alice)
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Transfer(s.ctx, alice, bob, domain.NewAmount(30)))

	fresh, err := ledger.New(ledger.Config{Admin: admin, Market: market, FaucetAmount: domain.NewAmount(100)})
	s.Require().NoError(err)
	n, err := Recover(s.ctx, fresh, s.journal, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Equal(domain.NewAmount(30), fresh.BalanceOf(bob))
	s.True(fresh.HasClaimed(alice))
}

func TestMarketServiceSuite(t *testing.T) {
	suite.Run(t, new(MarketServiceSuite))
}

func TestIsUnavailable(t *testing.T) {
	assert.False(t, IsUnavailable(nil))
	require.True(t, IsUnavailable(domain.ErrUnavailable))
}
