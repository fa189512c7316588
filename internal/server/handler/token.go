package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// TokenService is what the token endpoints need from the service layer.
type TokenService interface {
	TokenInfo() domain.TokenInfo
	Market() common.Address
	BalanceOf(account common.Address) domain.Amount
	Allowance(owner, spender common.Address) domain.Amount
	HasClaimed(account common.Address) bool
	TicketBalance(owner common.Address) uint64

	ClaimTokens(ctx context.Context, actor common.Address) (domain.Amount, error)
	Approve(ctx context.Context, actor, spender common.Address, amt domain.Amount) error
	IncreaseAllowance(ctx context.Context, actor, spender common.Address, amt domain.Amount) error
	DecreaseAllowance(ctx context.Context, actor, spender common.Address, amt domain.Amount) error
	Transfer(ctx context.Context, actor, to common.Address, amt domain.Amount) error
	TransferFrom(ctx context.Context, actor, from, to common.Address, amt domain.Amount) error
	Mint(ctx context.Context, actor, to common.Address, amt domain.Amount) error
}

// TokenHandler serves the bet token endpoints.
type TokenHandler struct {
	token  TokenService
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(token TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{token: token, logger: logHandler(logger, "token")}
}

type tokenInfoResponse struct {
	domain.TokenInfo
	TotalSupplyDisplay  string         `json:"totalSupplyDisplay"`
	FaucetAmountDisplay string         `json:"faucetAmountDisplay"`
	Market              common.Address `json:"market"`
}

// Info returns token metadata and supply.
// GET /api/token
func (h *TokenHandler) Info(w http.ResponseWriter, r *http.Request) {
	info := h.token.TokenInfo()
	writeJSON(w, http.StatusOK, tokenInfoResponse{
		TokenInfo:           info,
		TotalSupplyDisplay:  info.TotalSupply.Display(),
		FaucetAmountDisplay: info.FaucetAmount.Display(),
		Market:              h.token.Market(),
	})
}

// Balance returns one account's token balance.
// GET /api/token/balance/{address}
func (h *TokenHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, "address", r.PathValue("address"))
	if !ok {
		return
	}
	bal := h.token.BalanceOf(addr)
	writeJSON(w, http.StatusOK, balanceView{
		Address:        addr,
		Balance:        bal,
		BalanceDisplay: bal.Display(),
		Claimed:        h.token.HasClaimed(addr),
		TicketCount:    h.token.TicketBalance(addr),
	})
}

type allowanceResponse struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	amountView
	Unlimited bool `json:"unlimited"`
}

// Allowance returns how much spender may move on owner's behalf. The
// spender defaults to the marketplace.
// GET /api/token/allowance?owner=0x...&spender=0x...
func (h *TokenHandler) Allowance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner, ok := parseAddress(w, "owner", q.Get("owner"))
	if !ok {
		return
	}
	spender := h.token.Market()
	if raw := q.Get("spender"); raw != "" {
		if spender, ok = parseAddress(w, "spender", raw); !ok {
			return
		}
	}
	amt := h.token.Allowance(owner, spender)
	writeJSON(w, http.StatusOK, allowanceResponse{
		Owner:      owner,
		Spender:    spender,
		amountView: newAmountView(amt),
		Unlimited:  amt.IsMax(),
	})
}

// Claim mints the faucet amount to the caller, once per identity.
// POST /api/token/claim
func (h *TokenHandler) Claim(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	amt, err := h.token.ClaimTokens(r.Context(), actor)
	if err != nil {
		writeLedgerError(w, r, h.logger, "claim tokens", err)
		return
	}
	writeJSON(w, http.StatusOK, newAmountView(amt))
}

// allowanceRequest is shared by approve and the allowance adjustments. An
// omitted spender means the marketplace.
type allowanceRequest struct {
	Spender *common.Address `json:"spender"`
	Amount  domain.Amount   `json:"amount"`
}

func (h *TokenHandler) allowanceCall(
	w http.ResponseWriter, r *http.Request, op string,
	call func(ctx context.Context, actor, spender common.Address, amt domain.Amount) error,
) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req allowanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	spender := h.token.Market()
	if req.Spender != nil {
		spender = *req.Spender
	}
	if err := call(r.Context(), actor, spender, req.Amount); err != nil {
		writeLedgerError(w, r, h.logger, op, err)
		return
	}
	amt := h.token.Allowance(actor, spender)
	writeJSON(w, http.StatusOK, allowanceResponse{
		Owner:      actor,
		Spender:    spender,
		amountView: newAmountView(amt),
		Unlimited:  amt.IsMax(),
	})
}

// Approve sets the caller's allowance for a spender.
// POST /api/token/approve
func (h *TokenHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.allowanceCall(w, r, "approve", h.token.Approve)
}

// IncreaseAllowance raises the caller's allowance for a spender.
// POST /api/token/increase-allowance
func (h *TokenHandler) IncreaseAllowance(w http.ResponseWriter, r *http.Request) {
	h.allowanceCall(w, r, "increase allowance", h.token.IncreaseAllowance)
}

// DecreaseAllowance lowers the caller's allowance for a spender.
// POST /api/token/decrease-allowance
func (h *TokenHandler) DecreaseAllowance(w http.ResponseWriter, r *http.Request) {
	h.allowanceCall(w, r, "decrease allowance", h.token.DecreaseAllowance)
}

type transferRequest struct {
	From   *common.Address `json:"from,omitempty"`
	To     common.Address  `json:"to"`
	Amount domain.Amount   `json:"amount"`
}

// Transfer moves tokens from the caller.
// POST /api/token/transfer
func (h *TokenHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.From != nil && *req.From != actor {
		writeError(w, http.StatusBadRequest, "InvalidParameters", "use /api/token/transfer-from to move another account's tokens")
		return
	}
	if err := h.token.Transfer(r.Context(), actor, req.To, req.Amount); err != nil {
		writeLedgerError(w, r, h.logger, "transfer", err)
		return
	}
	h.writeBalance(w, actor)
}

// TransferFrom moves tokens out of another account using the caller's
// allowance.
// POST /api/token/transfer-from
func (h *TokenHandler) TransferFrom(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.From == nil {
		writeError(w, http.StatusBadRequest, "InvalidParameters", "from is required")
		return
	}
	if err := h.token.TransferFrom(r.Context(), actor, *req.From, req.To, req.Amount); err != nil {
		writeLedgerError(w, r, h.logger, "transfer from", err)
		return
	}
	h.writeBalance(w, *req.From)
}

type mintRequest struct {
	To     common.Address `json:"to"`
	Amount domain.Amount  `json:"amount"`
}

// Mint creates tokens. Admin only.
// POST /api/token/mint
func (h *TokenHandler) Mint(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req mintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.token.Mint(r.Context(), actor, req.To, req.Amount); err != nil {
		writeLedgerError(w, r, h.logger, "mint", err)
		return
	}
	h.writeBalance(w, req.To)
}

func (h *TokenHandler) writeBalance(w http.ResponseWriter, addr common.Address) {
	bal := h.token.BalanceOf(addr)
	writeJSON(w, http.StatusOK, balanceView{
		Address:        addr,
		Balance:        bal,
		BalanceDisplay: bal.Display(),
		Claimed:        h.token.HasClaimed(addr),
		TicketCount:    h.token.TicketBalance(addr),
	})
}
