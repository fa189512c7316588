package domain

import (
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ProjectStatus is the persisted lifecycle state of a project. Expiry is not
// persisted; see Project.Expired.
type ProjectStatus string

const (
	ProjectActive  ProjectStatus = "active"
	ProjectClosed  ProjectStatus = "closed"
	ProjectSettled ProjectStatus = "settled"
)

// Project is a betting round with a fixed option list, a ticket price and a
// prize pool held in escrow until settlement.
type Project struct {
	ID            uint64         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Options       []string       `json:"options"`
	OptionCounts  []uint64       `json:"optionCounts"`
	TicketPrice   Amount         `json:"ticketPrice"`
	MaxTickets    uint64         `json:"maxTickets"`
	SoldTickets   uint64         `json:"soldTickets"`
	TotalPrize    Amount         `json:"totalPrize"`
	Creator       common.Address `json:"creator"`
	Status        ProjectStatus  `json:"status"`
	WinningOption uint64         `json:"winningOption"`
	CreatedAt     time.Time      `json:"createdAt"`
	EndTime       time.Time      `json:"endTime"`
	SettledAt     *time.Time     `json:"settledAt,omitempty"`
}

// Expired reports whether the sales window has closed at now.
func (p Project) Expired(now time.Time) bool {
	return !now.Before(p.EndTime)
}

// Open reports whether tickets can be sold at now.
func (p Project) Open(now time.Time) bool {
	return p.Status == ProjectActive && !p.Expired(now)
}

// Clone returns a deep copy that shares no slices with p.
func (p Project) Clone() Project {
	p.Options = slices.Clone(p.Options)
	p.OptionCounts = slices.Clone(p.OptionCounts)
	if p.SettledAt != nil {
		t := *p.SettledAt
		p.SettledAt = &t
	}
	return p
}
