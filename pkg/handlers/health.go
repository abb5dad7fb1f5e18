package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/config"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	Database    string `json:"database"`
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     HealthChecker
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(cfg *config.Config, db HealthChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health
// Liveness only; does not touch the database.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping
// Returns version details and database reachability. Responds 503 when the
// database is down.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-tracker",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Database:    "ok",
	}

	status := http.StatusOK
	if err := h.db.Healthy(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", zap.Error(err))
		response.Status = "degraded"
		response.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
