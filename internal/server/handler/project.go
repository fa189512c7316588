package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/ledger"
)

// ProjectService is what the project endpoints need from the service layer.
type ProjectService interface {
	Now() time.Time
	Project(id uint64) (domain.Project, error)
	Projects() []domain.Project
	ActiveProjects() []uint64
	ProjectTicketStats(id uint64) ([]uint64, error)
	ProjectOrders(projectID uint64) ([]uint64, error)
	TicketsByProject(projectID uint64) ([]uint64, error)
	Ticket(id uint64) (domain.Ticket, error)
	Order(id uint64) (domain.Order, error)
	EscrowOf(projectID uint64) domain.Amount
	PreviewSettlement(projectID, winning uint64) (ledger.SettlementPlan, error)
	ProjectHistory(ctx context.Context, projectID uint64, opts domain.ListOpts) ([]domain.Event, error)

	CreateProject(ctx context.Context, actor common.Address, params ledger.CreateProjectParams) (uint64, error)
	FundProject(ctx context.Context, actor common.Address, projectID uint64, amt domain.Amount) error
	CloseProject(ctx context.Context, actor common.Address, projectID uint64) error
	PurchaseTicket(ctx context.Context, actor common.Address, projectID, option uint64) (uint64, error)
	SettleProject(ctx context.Context, actor common.Address, projectID, winning uint64) (ledger.SettlementPlan, error)
}

// ProjectHandler serves project lifecycle endpoints.
type ProjectHandler struct {
	projects ProjectService
	logger   *slog.Logger
}

// NewProjectHandler creates a ProjectHandler.
func NewProjectHandler(projects ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logHandler(logger, "project")}
}

type projectListResponse struct {
	Projects []projectView `json:"projects"`
}

// List returns every project, or only open ones with ?active=true.
// GET /api/projects
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("active") == "true" {
		h.Active(w, r)
		return
	}
	now := h.projects.Now()
	all := h.projects.Projects()
	out := make([]projectView, 0, len(all))
	for _, p := range all {
		out = append(out, newProjectView(p, now))
	}
	writeJSON(w, http.StatusOK, projectListResponse{Projects: out})
}

// Active returns projects that are still selling tickets.
// GET /api/projects/active
func (h *ProjectHandler) Active(w http.ResponseWriter, r *http.Request) {
	now := h.projects.Now()
	ids := h.projects.ActiveProjects()
	out := make([]projectView, 0, len(ids))
	for _, id := range ids {
		p, err := h.projects.Project(id)
		if err != nil {
			writeLedgerError(w, r, h.logger, "active projects", err)
			return
		}
		out = append(out, newProjectView(p, now))
	}
	writeJSON(w, http.StatusOK, projectListResponse{Projects: out})
}

type createProjectResponse struct {
	ProjectID uint64      `json:"projectId"`
	Project   projectView `json:"project"`
}

// Create opens a new project owned by the caller.
// POST /api/projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var params ledger.CreateProjectParams
	if !decodeBody(w, r, &params) {
		return
	}
	id, err := h.projects.CreateProject(r.Context(), actor, params)
	if err != nil {
		writeLedgerError(w, r, h.logger, "create project", err)
		return
	}
	p, err := h.projects.Project(id)
	if err != nil {
		writeLedgerError(w, r, h.logger, "create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, createProjectResponse{ProjectID: id, Project: newProjectView(p, h.projects.Now())})
}

// Get returns one project.
// GET /api/projects/{id}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	h.writeProject(w, r, id, http.StatusOK)
}

type projectStatsResponse struct {
	ProjectID    uint64   `json:"projectId"`
	Options      []string `json:"options"`
	OptionCounts []uint64 `json:"optionCounts"`
	SoldTickets  uint64   `json:"soldTickets"`
	MaxTickets   uint64   `json:"maxTickets"`
	amountView
}

// Stats returns per-option ticket counts and the escrowed pool.
// GET /api/projects/{id}/stats
func (h *ProjectHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	counts, err := h.projects.ProjectTicketStats(id)
	if err != nil {
		writeLedgerError(w, r, h.logger, "project stats", err)
		return
	}
	p, err := h.projects.Project(id)
	if err != nil {
		writeLedgerError(w, r, h.logger, "project stats", err)
		return
	}
	writeJSON(w, http.StatusOK, projectStatsResponse{
		ProjectID:    id,
		Options:      p.Options,
		OptionCounts: counts,
		SoldTickets:  p.SoldTickets,
		MaxTickets:   p.MaxTickets,
		amountView:   newAmountView(h.projects.EscrowOf(id)),
	})
}

type orderListResponse struct {
	Orders []orderView `json:"orders"`
}

// Orders lists a project's orders. ?active=true keeps only open listings.
// GET /api/projects/{id}/orders
func (h *ProjectHandler) Orders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ids, err := h.projects.ProjectOrders(id)
	if err != nil {
		writeLedgerError(w, r, h.logger, "project orders", err)
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	out := make([]orderView, 0, len(ids))
	for _, oid := range ids {
		o, err := h.projects.Order(oid)
		if err != nil {
			writeLedgerError(w, r, h.logger, "project orders", err)
			return
		}
		if activeOnly && !o.Active {
			continue
		}
		out = append(out, newOrderView(o))
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: out})
}

type ticketListResponse struct {
	Tickets []ticketView `json:"tickets"`
}

// Tickets lists every ticket sold by a project.
// GET /api/projects/{id}/tickets
func (h *ProjectHandler) Tickets(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ids, err := h.projects.TicketsByProject(id)
	if err != nil {
		writeLedgerError(w, r, h.logger, "project tickets", err)
		return
	}
	out := make([]ticketView, 0, len(ids))
	for _, tid := range ids {
		t, err := h.projects.Ticket(tid)
		if err != nil {
			writeLedgerError(w, r, h.logger, "project tickets", err)
			return
		}
		out = append(out, newTicketView(t, 0))
	}
	writeJSON(w, http.StatusOK, ticketListResponse{Tickets: out})
}

type purchaseRequest struct {
	OptionIndex uint64 `json:"optionIndex"`
}

type purchaseResponse struct {
	TicketID uint64     `json:"ticketId"`
	Ticket   ticketView `json:"ticket"`
}

// Purchase buys one ticket on an option at the project's ticket price.
// POST /api/projects/{id}/tickets
func (h *ProjectHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req purchaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tid, err := h.projects.PurchaseTicket(r.Context(), actor, id, req.OptionIndex)
	if err != nil {
		writeLedgerError(w, r, h.logger, "purchase ticket", err)
		return
	}
	t, err := h.projects.Ticket(tid)
	if err != nil {
		writeLedgerError(w, r, h.logger, "purchase ticket", err)
		return
	}
	writeJSON(w, http.StatusCreated, purchaseResponse{TicketID: tid, Ticket: newTicketView(t, 0)})
}

type fundRequest struct {
	Amount domain.Amount `json:"amount"`
}

// Fund seeds the prize pool from the creator's balance.
// POST /api/projects/{id}/fund
func (h *ProjectHandler) Fund(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req fundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.projects.FundProject(r.Context(), actor, id, req.Amount); err != nil {
		writeLedgerError(w, r, h.logger, "fund project", err)
		return
	}
	h.writeProject(w, r, id, http.StatusOK)
}

// Close ends ticket sales early.
// POST /api/projects/{id}/close
func (h *ProjectHandler) Close(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.projects.CloseProject(r.Context(), actor, id); err != nil {
		writeLedgerError(w, r, h.logger, "close project", err)
		return
	}
	h.writeProject(w, r, id, http.StatusOK)
}

type settleRequest struct {
	WinningOption *uint64 `json:"winningOption"`
}

// Settle resolves a project and pays out the pool.
// POST /api/projects/{id}/settle
func (h *ProjectHandler) Settle(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req settleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.WinningOption == nil {
		writeError(w, http.StatusBadRequest, "InvalidParameters", "winningOption is required")
		return
	}
	plan, err := h.projects.SettleProject(r.Context(), actor, id, *req.WinningOption)
	if err != nil {
		writeLedgerError(w, r, h.logger, "settle project", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// PreviewSettlement shows what settling with ?winning=N would pay out,
// without changing anything.
// GET /api/projects/{id}/settlement
func (h *ProjectHandler) PreviewSettlement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	winning, err := strconv.ParseUint(r.URL.Query().Get("winning"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidParameters", "winning query parameter must be an option index")
		return
	}
	plan, err := h.projects.PreviewSettlement(id, winning)
	if err != nil {
		writeLedgerError(w, r, h.logger, "preview settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// History returns the persisted event log for a project.
// GET /api/projects/{id}/history?limit=50&offset=0
func (h *ProjectHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	evts, err := h.projects.ProjectHistory(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeLedgerError(w, r, h.logger, "project history", err)
		return
	}
	writeJSON(w, http.StatusOK, newEventsResponse(evts))
}

func (h *ProjectHandler) writeProject(w http.ResponseWriter, r *http.Request, id uint64, status int) {
	p, err := h.projects.Project(id)
	if err != nil {
		writeLedgerError(w, r, h.logger, "get project", err)
		return
	}
	writeJSON(w, status, newProjectView(p, h.projects.Now()))
}
