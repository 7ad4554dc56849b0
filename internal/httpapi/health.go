package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/edustack-labs/edustack/internal/monitor"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type healthDetailsResp struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Services map[string]string `json:"services"`
	Sessions int               `json:"active_sessions"`
	Host     *monitor.Snapshot `json:"host,omitempty"`
}

// handleHealthDetails reports per-dependency status. The endpoint itself
// answers 200 as long as the process is up; degraded dependencies show in
// the services map.
func (s *Server) handleHealthDetails(w http.ResponseWriter, r *http.Request) {
	if s == nil || w == nil || r == nil {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	services := map[string]string{
		"llm": s.providerName + "/" + s.providerModel,
	}

	if s.dbPing != nil {
		if err := s.dbPing(ctx); err != nil {
			services["database"] = "unreachable"
		} else {
			services["database"] = "connected"
		}
	} else {
		services["database"] = "not_configured"
	}

	if s.arch != nil {
		if err := s.arch.Ping(ctx); err != nil {
			services["archive"] = "unreachable"
		} else {
			services["archive"] = "connected"
		}
	} else {
		services["archive"] = "not_configured"
	}

	resp := healthDetailsResp{
		Status:   "healthy",
		Version:  s.version,
		Services: services,
		Sessions: s.chat.Registry().Len(),
	}
	if s.monitor != nil {
		snap := s.monitor.GetSnapshot(ctx)
		resp.Host = &snap
	}

	writeJSON(w, http.StatusOK, resp)
}
