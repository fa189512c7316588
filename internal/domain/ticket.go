package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Ticket is a non-fungible claim on one option of one project.
type Ticket struct {
	ID            uint64         `json:"id"`
	ProjectID     uint64         `json:"projectId"`
	OptionIndex   uint64         `json:"optionIndex"`
	Owner         common.Address `json:"owner"`
	PurchasePrice Amount         `json:"purchasePrice"`
	PurchaseTime  time.Time      `json:"purchaseTime"`
	Paid          bool           `json:"paid"`
	Payout        Amount         `json:"payout"`
}
