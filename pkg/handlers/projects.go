package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/auth"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
	"github.com/ekaya-inc/ekaya-tracker/pkg/services"
)

// ProjectRequest is the request body for creating or updating a project.
type ProjectRequest struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     int    `json:"version"`
}

// ProjectsHandler handles project-related HTTP requests.
type ProjectsHandler struct {
	projectService services.ProjectService
	sessions       *auth.SessionStore
	logger         *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(projectService services.ProjectService, sessions *auth.SessionStore, logger *zap.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projectService: projectService,
		sessions:       sessions,
		logger:         logger,
	}
}

// RegisterRoutes registers the projects handler's routes on the given mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux, mw Middlewares) {
	mux.HandleFunc("GET /api/projects", mw.authenticated(h.List))
	mux.HandleFunc("POST /api/projects", mw.authenticated(h.Create))
	mux.HandleFunc("GET /api/projects/current", mw.authenticated(h.Current))

	mux.HandleFunc("GET /api/projects/{pid}", mw.projectScoped(h.Get))
	mux.HandleFunc("PUT /api/projects/{pid}", mw.projectScoped(h.Update))
	mux.HandleFunc("DELETE /api/projects/{pid}", mw.projectScoped(h.Delete))
}

// List handles GET /api/projects
// Returns the projects the caller is a member of.
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projectService.List(r.Context(), auth.GetUserEmailFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, "list_projects", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, projects)
}

// Create handles POST /api/projects
// The caller becomes the new project's Admin.
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	project, err := h.projectService.Create(r.Context(), auth.GetUserEmailFromContext(r.Context()), &models.Project{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(w, h.logger, "create_project", err)
		return
	}
	writeData(w, h.logger, http.StatusCreated, project)
}

// Current handles GET /api/projects/current
// Returns the project last selected in this browser, re-resolving the caller's
// role. A selection the caller can no longer access is forgotten.
func (h *ProjectsHandler) Current(w http.ResponseWriter, r *http.Request) {
	selected := h.sessions.SelectedProject(r)

	view, err := h.projectService.Current(r.Context(), auth.GetUserEmailFromContext(r.Context()), selected)
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrUnauthorized) {
		if selected != 0 {
			h.clearSelection(w, r)
		}
		writeError(w, h.logger, http.StatusNotFound, "no_current_project", "No project selected")
		return
	}
	if err != nil {
		writeServiceError(w, h.logger, "current_project", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, view)
}

// Get handles GET /api/projects/{pid}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.projectService.Get(r.Context(), projectContext(r))
	if err != nil {
		writeServiceError(w, h.logger, "get_project", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, view)
}

// Update handles PUT /api/projects/{pid}
// The body id must match the path id.
func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	project, err := h.projectService.Update(r.Context(), projectContext(r), &models.Project{
		ID:          req.ID,
		Title:       req.Title,
		Description: req.Description,
		Version:     req.Version,
	})
	if err != nil {
		writeServiceError(w, h.logger, "update_project", err)
		return
	}
	writeData(w, h.logger, http.StatusOK, project)
}

// Delete handles DELETE /api/projects/{pid}
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	pc := projectContext(r)
	if err := h.projectService.Delete(r.Context(), pc); err != nil {
		writeServiceError(w, h.logger, "delete_project", err)
		return
	}

	if h.sessions.SelectedProject(r) == pc.ProjectID() {
		h.clearSelection(w, r)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectsHandler) clearSelection(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.ClearSelection(w, r); err != nil {
		h.logger.Warn("Failed to clear selected project", zap.Error(err))
	}
}
