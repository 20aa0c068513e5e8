package api

import (
	"log/slog"
	"net/http"
)

// healthHandler serves liveness and readiness probes.
type healthHandler struct {
	pool   HealthChecker
	flow   Flow
	logger *slog.Logger
}

func (h *healthHandler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness reports that the process is alive.
func (h *healthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readinessResponse struct {
	Status     string `json:"status"`
	Database   string `json:"database"`
	FlowEngine string `json:"flow_engine"`
}

// readiness reports 503 until the database answers. The flow engine's
// state is reported but does not gate readiness; chat requests degrade
// to errors while it is down, everything else keeps working.
func (h *healthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	resp := readinessResponse{Status: "ready", Database: "ok", FlowEngine: "ok"}

	if h.pool == nil {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "database pool not configured")
		return
	}
	if err := h.pool.Healthy(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		resp.Status = "not_ready"
		resp.Database = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if h.flow == nil {
		resp.FlowEngine = "disabled"
	} else if err := h.flow.CheckConnection(r.Context()); err != nil {
		h.logger.Warn("flow engine unreachable", "error", err)
		resp.FlowEngine = "unavailable"
	}

	writeJSON(w, http.StatusOK, resp)
}
