package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ddsprasad/data-sense-ai/pkg/config"
	"github.com/ddsprasad/data-sense-ai/pkg/services"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string           `json:"status"`
	Version  string           `json:"version"`
	Pipeline *services.Status `json:"pipeline,omitempty"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg      *config.Config
	resolver services.ResolverService
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. resolver may be nil, in which
// case /health only reports liveness.
func NewHealthHandler(cfg *config.Config, resolver services.ResolverService, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{cfg: cfg, resolver: resolver, logger: logger.Named("health")}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// Returns 503 with status "degraded" until the schema catalog has been built.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok", Version: h.cfg.Version}
	statusCode := http.StatusOK

	if h.resolver != nil {
		status := h.resolver.Status()
		response.Pipeline = &status
		if !status.CatalogReady {
			response.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	if err := WriteJSON(w, statusCode, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "data-sense-ai",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
