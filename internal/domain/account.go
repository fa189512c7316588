package domain

import "github.com/ethereum/go-ethereum/common"

// Account is a read model combining an identity's token and ticket holdings.
type Account struct {
	Address     common.Address `json:"address"`
	Balance     Amount         `json:"balance"`
	Claimed     bool           `json:"claimed"`
	TicketCount uint64         `json:"ticketCount"`
	TicketIDs   []uint64       `json:"ticketIds"`
	OrderIDs    []uint64       `json:"orderIds"`
}

// TokenInfo describes the bet token.
type TokenInfo struct {
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Decimals     uint8  `json:"decimals"`
	TotalSupply  Amount `json:"totalSupply"`
	FaucetAmount Amount `json:"faucetAmount"`
}
