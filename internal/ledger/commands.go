package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// decodeCommand rebuilds a journaled command from its op and payload.
func decodeCommand(op domain.CommandOp, payload json.RawMessage) (command, error) {
	var c command
	switch op {
	case domain.OpApprove:
		c = &approveCmd{}
	case domain.OpIncreaseAllowance:
		c = &adjustAllowanceCmd{}
	case domain.OpDecreaseAllowance:
		c = &adjustAllowanceCmd{decrease: true}
	case domain.OpTransfer:
		c = &transferCmd{}
	case domain.OpTransferFrom:
		c = &transferFromCmd{}
	case domain.OpClaimTokens:
		c = &claimTokensCmd{}
	case domain.OpMint:
		c = &mintCmd{}
	case domain.OpTransferAdmin:
		c = &transferAdminCmd{}
	case domain.OpCreateProject:
		c = &createProjectCmd{}
	case domain.OpFundProject:
		c = &fundProjectCmd{}
	case domain.OpCloseProject:
		c = &closeProjectCmd{}
	case domain.OpPurchaseTicket:
		c = &purchaseTicketCmd{}
	case domain.OpTransferTicket:
		c = &transferTicketCmd{}
	case domain.OpListTicket:
		c = &listTicketCmd{}
	case domain.OpCancelOrder:
		c = &cancelOrderCmd{}
	case domain.OpBuyListedTicket:
		c = &buyListedTicketCmd{}
	case domain.OpSettleProject:
		c = &settleProjectCmd{}
	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, c); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", op, err)
		}
	}
	return c, nil
}
