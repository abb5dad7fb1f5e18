package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/services"
)

// AddMembersRequest invites one or more people with the same role.
type AddMembersRequest struct {
	Emails []string `json:"emails"`
	RoleID int64    `json:"role_id"`
}

// UpdateMemberRequest changes a membership's role.
type UpdateMemberRequest struct {
	RoleID int64 `json:"role_id"`
}

// MembersHandler handles project membership requests.
type MembersHandler struct {
	membershipService services.MembershipService
	logger            *zap.Logger
}

// NewMembersHandler creates a new members handler.
func NewMembersHandler(membershipService services.MembershipService, logger *zap.Logger) *MembersHandler {
	return &MembersHandler{
		membershipService: membershipService,
		logger:            logger,
	}
}

// RegisterRoutes registers the members handler's routes on the given mux.
func (h *MembersHandler) RegisterRoutes(mux *http.ServeMux, mw Middlewares) {
	mux.HandleFunc("GET /api/projects/{pid}/members", mw.projectScoped(h.List))
	mux.HandleFunc("POST /api/projects/{pid}/members", mw.projectScoped(h.Add))
	mux.HandleFunc("PUT /api/projects/{pid}/members/{mid}", mw.projectScoped(h.Update))
	mux.HandleFunc("DELETE /api/projects/{pid}/members/{mid}", mw.projectScoped(h.Remove))
}

// List handles GET /api/projects/{pid}/members
func (h *MembersHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.membershipService.List(r.Context(), projectContext(r))
	if err != nil {
		writeServiceError(w, h.logger, "list_members", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, list)
}

// Add handles POST /api/projects/{pid}/members
// Responds 201 when at least one membership was created, 200 when every
// email was already a member.
func (h *MembersHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddMembersRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	result, err := h.membershipService.AddPeople(r.Context(), projectContext(r), req.Emails, req.RoleID)
	if err != nil {
		writeServiceError(w, h.logger, "add_members", err)
		return
	}

	status := http.StatusOK
	if len(result.Added) > 0 {
		status = http.StatusCreated
	}
	writeData(w, h.logger, status, result)
}

// Update handles PUT /api/projects/{pid}/members/{mid}
func (h *MembersHandler) Update(w http.ResponseWriter, r *http.Request) {
	memberID, ok := ParseMemberID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateMemberRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	m, err := h.membershipService.UpdateRole(r.Context(), projectContext(r), memberID, req.RoleID)
	if err != nil {
		writeServiceError(w, h.logger, "update_member", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, m)
}

// Remove handles DELETE /api/projects/{pid}/members/{mid}
// Removing a membership that does not exist succeeds.
func (h *MembersHandler) Remove(w http.ResponseWriter, r *http.Request) {
	memberID, ok := ParseMemberID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.membershipService.Remove(r.Context(), projectContext(r), memberID); err != nil {
		writeServiceError(w, h.logger, "remove_member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
