package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EventType names a ledger event.
type EventType string

const (
	EventProjectCreated    EventType = "ProjectCreated"
	EventProjectFunded     EventType = "ProjectFunded"
	EventProjectClosed     EventType = "ProjectClosed"
	EventProjectSettled    EventType = "ProjectSettled"
	EventPrizeDistributed  EventType = "PrizeDistributed"
	EventTicketPurchased   EventType = "TicketPurchased"
	EventTicketMinted      EventType = "TicketMinted"
	EventTicketTransferred EventType = "TicketTransferred"
	EventOrderCreated      EventType = "OrderCreated"
	EventOrderCancelled    EventType = "OrderCancelled"
	EventOrderFilled       EventType = "OrderFilled"
	EventTransfer          EventType = "Transfer"
	EventApproval          EventType = "Approval"
	EventTokensClaimed     EventType = "TokensClaimed"
	EventAdminTransferred  EventType = "OwnershipTransferred"
)

// eventSignatures are the canonical Solidity signatures. Their keccak256
// hashes are the topics indexers already know for these events.
var eventSignatures = map[EventType]string{
	EventProjectCreated:    "ProjectCreated(uint256,address,string,uint256)",
	EventProjectFunded:     "ProjectFunded(uint256,address,uint256)",
	EventProjectClosed:     "ProjectClosed(uint256)",
	EventProjectSettled:    "ProjectSettled(uint256,uint256)",
	EventPrizeDistributed:  "PrizeDistributed(uint256,address,uint256)",
	EventTicketPurchased:   "TicketPurchased(uint256,uint256,address,uint256)",
	EventTicketMinted:      "TicketMinted(uint256,address,uint256,uint256)",
	EventTicketTransferred: "TicketTransferred(uint256,address,address)",
	EventOrderCreated:      "OrderCreated(uint256,uint256,address,uint256)",
	EventOrderCancelled:    "OrderCancelled(uint256)",
	EventOrderFilled:       "OrderFilled(uint256,address,address,uint256)",
	EventTransfer:          "Transfer(address,address,uint256)",
	EventApproval:          "Approval(address,address,uint256)",
	EventTokensClaimed:     "TokensClaimed(address,uint256)",
	EventAdminTransferred:  "OwnershipTransferred(address,address)",
}

var eventTopics = func() map[EventType]common.Hash {
	m := make(map[EventType]common.Hash, len(eventSignatures))
	for t, sig := range eventSignatures {
		m[t] = crypto.Keccak256Hash([]byte(sig))
	}
	return m
}()

// Signature returns the Solidity event signature for t.
func (t EventType) Signature() string { return eventSignatures[t] }

// Topic returns keccak256 of the event signature.
func (t EventType) Topic() common.Hash { return eventTopics[t] }

// Event is an append-only record of a state change. Seq is strictly
// increasing across all events; CommandSeq names the command that caused it.
//
// Field use per type:
//
//	ProjectCreated     ProjectID, From=creator, Title, Amount=initial prize
//	ProjectFunded      ProjectID, From=creator, Amount
//	TicketPurchased    TicketID, ProjectID, From=buyer, Option
//	TicketMinted       TicketID, To=owner, ProjectID, Option
//	TicketTransferred  TicketID, From, To
//	OrderCreated       OrderID, TicketID, From=seller, Amount=price
//	OrderCancelled     OrderID
//	OrderFilled        OrderID, From=seller, To=buyer, Amount=price
//	ProjectSettled     ProjectID, Option=winning option
//	PrizeDistributed   ProjectID, TicketID, To=winner, Amount
//	Transfer           From, To, Amount
//	Approval           From=owner, To=spender, Amount
//	TokensClaimed      To, Amount
type Event struct {
	Seq        uint64         `json:"seq"`
	CommandSeq uint64         `json:"commandSeq"`
	Type       EventType      `json:"type"`
	Topic      common.Hash    `json:"topic"`
	At         time.Time      `json:"at"`
	ProjectID  uint64         `json:"projectId,omitempty"`
	TicketID   uint64         `json:"ticketId,omitempty"`
	OrderID    uint64         `json:"orderId,omitempty"`
	Option     uint64         `json:"option"`
	From       common.Address `json:"from"`
	To         common.Address `json:"to"`
	Amount     Amount         `json:"amount"`
	Title      string         `json:"title,omitempty"`
}
