package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/services"
)

// ReferenceHandler serves the seeded roles and statuses.
type ReferenceHandler struct {
	referenceService services.ReferenceService
	logger           *zap.Logger
}

// NewReferenceHandler creates a new reference data handler.
func NewReferenceHandler(referenceService services.ReferenceService, logger *zap.Logger) *ReferenceHandler {
	return &ReferenceHandler{referenceService: referenceService, logger: logger}
}

// RegisterRoutes registers the reference handler's routes on the given mux.
func (h *ReferenceHandler) RegisterRoutes(mux *http.ServeMux, mw Middlewares) {
	mux.HandleFunc("GET /api/roles", mw.authenticated(h.Roles))
	mux.HandleFunc("GET /api/statuses", mw.authenticated(h.Statuses))
}

// Roles handles GET /api/roles
func (h *ReferenceHandler) Roles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.referenceService.Roles(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list_roles", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, roles)
}

// Statuses handles GET /api/statuses
func (h *ReferenceHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.referenceService.Statuses(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list_statuses", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, statuses)
}
