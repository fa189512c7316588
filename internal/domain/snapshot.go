package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerSnapshot is a point-in-time copy of the whole ledger, taken after
// command CommandSeq.
type LedgerSnapshot struct {
	CommandSeq uint64                                       `json:"commandSeq"`
	EventSeq   uint64                                       `json:"eventSeq"`
	TakenAt    time.Time                                    `json:"takenAt"`
	Admin      common.Address                               `json:"admin"`
	Market     common.Address                               `json:"market"`
	Token      TokenInfo                                    `json:"token"`
	Balances   map[common.Address]Amount                    `json:"balances"`
	Allowances map[common.Address]map[common.Address]Amount `json:"allowances"`
	Claimed    []common.Address                             `json:"claimed"`
	Escrow     map[uint64]Amount                            `json:"escrow"`
	Projects   []Project                                    `json:"projects"`
	Tickets    []Ticket                                     `json:"tickets"`
	Orders     []Order                                      `json:"orders"`
}
