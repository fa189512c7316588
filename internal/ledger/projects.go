package ledger

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
)

const (
	maxOptions        = 64
	maxTitleLen       = 256
	maxDescriptionLen = 8192
	maxDurationSecs   = uint64(math.MaxInt64 / int64(time.Second))
)

// CreateProjectParams are the caller-supplied fields of a new project.
type CreateProjectParams struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Options     []string      `json:"options"`
	TicketPrice domain.Amount `json:"ticketPrice"`
	MaxTickets  uint64        `json:"maxTickets"`
	// Duration is the sales window in seconds, counted from creation.
	Duration uint64 `json:"duration"`
}

func (p CreateProjectParams) validate() error {
	switch {
	case strings.TrimSpace(p.Title) == "":
		return fmt.Errorf("%w: title is required", domain.ErrInvalidParameters)
	case len(p.Title) > maxTitleLen:
		return fmt.Errorf("%w: title longer than %d bytes", domain.ErrInvalidParameters, maxTitleLen)
	case len(p.Description) > maxDescriptionLen:
		return fmt.Errorf("%w: description longer than %d bytes", domain.ErrInvalidParameters, maxDescriptionLen)
	case len(p.Options) < 2:
		return fmt.Errorf("%w: at least two options required", domain.ErrInvalidParameters)
	case len(p.Options) > maxOptions:
		return fmt.Errorf("%w: at most %d options", domain.ErrInvalidParameters, maxOptions)
	case p.TicketPrice.IsZero():
		return fmt.Errorf("%w: ticket price must be positive", domain.ErrInvalidParameters)
	case p.MaxTickets == 0:
		return fmt.Errorf("%w: max tickets must be positive", domain.ErrInvalidParameters)
	case p.Duration == 0:
		return fmt.Errorf("%w: duration must be positive", domain.ErrInvalidParameters)
	case p.Duration > maxDurationSecs:
		return fmt.Errorf("%w: duration too large", domain.ErrInvalidParameters)
	}
	for i, o := range p.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("%w: option %d is empty", domain.ErrInvalidParameters, i)
		}
	}
	return nil
}

// ProjectRegistry owns project records. Project IDs are dense and start at 1.
type ProjectRegistry struct {
	projects []domain.Project
}

func newProjectRegistry() *ProjectRegistry {
	return &ProjectRegistry{}
}

func (r *ProjectRegistry) get(id uint64) (*domain.Project, error) {
	if id == 0 || id > uint64(len(r.projects)) {
		return nil, fmt.Errorf("%w: project %d", domain.ErrNotFound, id)
	}
	return &r.projects[id-1], nil
}

// Get returns a deep copy of project id.
func (r *ProjectRegistry) Get(id uint64) (domain.Project, error) {
	p, err := r.get(id)
	if err != nil {
		return domain.Project{}, err
	}
	return p.Clone(), nil
}

// Active returns the IDs of projects that are active and not yet expired at
// now. Expiry is evaluated on every call and never written back.
func (r *ProjectRegistry) Active(now time.Time) []uint64 {
	var ids []uint64
	for i := range r.projects {
		if r.projects[i].Open(now) {
			ids = append(ids, r.projects[i].ID)
		}
	}
	return ids
}

// Stats returns per-option sold ticket counts for project id.
func (r *ProjectRegistry) Stats(id uint64) ([]uint64, error) {
	p, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return append([]uint64(nil), p.OptionCounts...), nil
}

func (r *ProjectRegistry) Len() int { return len(r.projects) }

func (r *ProjectRegistry) create(creator common.Address, params CreateProjectParams, now time.Time) uint64 {
	id := uint64(len(r.projects)) + 1
	r.projects = append(r.projects, domain.Project{
		ID:           id,
		Title:        params.Title,
		Description:  params.Description,
		Options:      append([]string(nil), params.Options...),
		OptionCounts: make([]uint64, len(params.Options)),
		TicketPrice:  params.TicketPrice,
		MaxTickets:   params.MaxTickets,
		Creator:      creator,
		Status:       domain.ProjectActive,
		CreatedAt:    now,
		EndTime:      now.Add(time.Duration(params.Duration) * time.Second),
	})
	return id
}

func (r *ProjectRegistry) snapshot(s *domain.LedgerSnapshot) {
	s.Projects = make([]domain.Project, len(r.projects))
	for i := range r.projects {
		s.Projects[i] = r.projects[i].Clone()
	}
}
