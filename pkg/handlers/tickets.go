package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/auth"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
	"github.com/ekaya-inc/ekaya-tracker/pkg/services"
)

// TicketRequest is the request body for creating or updating a ticket.
type TicketRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	StatusID      int64  `json:"status_id"`
	AssigneeEmail string `json:"assignee_email"`
}

func (req *TicketRequest) toModel(id int64) *models.Ticket {
	return &models.Ticket{
		ID:            id,
		Title:         req.Title,
		Description:   req.Description,
		StatusID:      req.StatusID,
		AssigneeEmail: req.AssigneeEmail,
	}
}

// TicketsHandler handles ticket requests within a project.
type TicketsHandler struct {
	ticketService services.TicketService
	sessions      *auth.SessionStore
	logger        *zap.Logger
}

// NewTicketsHandler creates a new tickets handler.
func NewTicketsHandler(ticketService services.TicketService, sessions *auth.SessionStore, logger *zap.Logger) *TicketsHandler {
	return &TicketsHandler{
		ticketService: ticketService,
		sessions:      sessions,
		logger:        logger,
	}
}

// RegisterRoutes registers the tickets handler's routes on the given mux.
func (h *TicketsHandler) RegisterRoutes(mux *http.ServeMux, mw Middlewares) {
	mux.HandleFunc("GET /api/projects/{pid}/tickets", mw.projectScoped(h.List))
	mux.HandleFunc("POST /api/projects/{pid}/tickets", mw.projectScoped(h.Create))
	mux.HandleFunc("GET /api/projects/{pid}/tickets/{tid}", mw.projectScoped(h.Get))
	mux.HandleFunc("PUT /api/projects/{pid}/tickets/{tid}", mw.projectScoped(h.Update))
	mux.HandleFunc("DELETE /api/projects/{pid}/tickets/{tid}", mw.projectScoped(h.Delete))
}

// List handles GET /api/projects/{pid}/tickets
// A successful listing remembers the project as this browser's selection.
func (h *TicketsHandler) List(w http.ResponseWriter, r *http.Request) {
	pc := projectContext(r)
	tickets, err := h.ticketService.List(r.Context(), pc)
	if err != nil {
		writeServiceError(w, h.logger, "list_tickets", err)
		return
	}

	if err := h.sessions.SelectProject(w, r, pc.ProjectID()); err != nil {
		h.logger.Warn("Failed to remember selected project",
			zap.Int64("project_id", pc.ProjectID()),
			zap.Error(err))
	}
	writeData(w, h.logger, http.StatusOK, tickets)
}

// Get handles GET /api/projects/{pid}/tickets/{tid}
func (h *TicketsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := ParseTicketID(w, r, h.logger)
	if !ok {
		return
	}

	ticket, err := h.ticketService.Get(r.Context(), projectContext(r), ticketID)
	if err != nil {
		writeServiceError(w, h.logger, "get_ticket", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, ticket)
}

// Create handles POST /api/projects/{pid}/tickets
func (h *TicketsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req TicketRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	ticket, err := h.ticketService.Create(r.Context(), projectContext(r), req.toModel(0))
	if err != nil {
		writeServiceError(w, h.logger, "create_ticket", err)
		return
	}
	writeData(w, h.logger, http.StatusCreated, ticket)
}

// Update handles PUT /api/projects/{pid}/tickets/{tid}
func (h *TicketsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := ParseTicketID(w, r, h.logger)
	if !ok {
		return
	}

	var req TicketRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	ticket, err := h.ticketService.Update(r.Context(), projectContext(r), req.toModel(ticketID))
	if err != nil {
		writeServiceError(w, h.logger, "update_ticket", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, ticket)
}

// Delete handles DELETE /api/projects/{pid}/tickets/{tid}
func (h *TicketsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := ParseTicketID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.ticketService.Delete(r.Context(), projectContext(r), ticketID); err != nil {
		writeServiceError(w, h.logger, "delete_ticket", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
