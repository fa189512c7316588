package domain

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CommandOp names a state-changing ledger operation.
type CommandOp string

const (
	OpApprove           CommandOp = "approve"
	OpIncreaseAllowance CommandOp = "increase_allowance"
	OpDecreaseAllowance CommandOp = "decrease_allowance"
	OpTransfer          CommandOp = "transfer"
	OpTransferFrom      CommandOp = "transfer_from"
	OpClaimTokens       CommandOp = "claim_tokens"
	OpMint              CommandOp = "mint"
	OpTransferAdmin     CommandOp = "transfer_admin"
	OpCreateProject     CommandOp = "create_project"
	OpFundProject       CommandOp = "fund_project"
	OpCloseProject      CommandOp = "close_project"
	OpPurchaseTicket    CommandOp = "purchase_ticket"
	OpTransferTicket    CommandOp = "transfer_ticket"
	OpListTicket        CommandOp = "list_ticket"
	OpCancelOrder       CommandOp = "cancel_order"
	OpBuyListedTicket   CommandOp = "buy_listed_ticket"
	OpSettleProject     CommandOp = "settle_project"
)

// Command is one journaled operation. Replaying the journal in Seq order
// against an empty ledger with the same genesis configuration rebuilds the
// exact same state.
type Command struct {
	Seq     uint64          `json:"seq"`
	Op      CommandOp       `json:"op"`
	Actor   common.Address  `json:"actor"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}
