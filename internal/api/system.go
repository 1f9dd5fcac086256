package api

import (
	"net/http"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	StreamConnected *bool  `json:"stream_connected,omitempty"`
	Graph           any    `json:"graph"`
	WSClients       int    `json:"ws_clients"`

	// Checks maps each sink to "ok" or its health check error.
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth reports "ok" once a home is mirrored, the stream (when
// known) is connected and every sink check passes, "degraded" otherwise.
// It always answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts := s.graph.Counts()

	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Graph:   counts,
	}
	if !counts.HasHome {
		resp.Status = "degraded"
	}
	if s.stream != nil {
		connected := s.stream.IsConnected()
		resp.StreamConnected = &connected
		if !connected {
			resp.Status = "degraded"
		}
	}
	if s.hub != nil {
		resp.WSClients = s.hub.ClientCount()
	}
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if err := check.HealthCheck(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetHome(w http.ResponseWriter, _ *http.Request) {
	home, ok := s.graph.Home()
	if !ok {
		writeNotFound(w, "home not loaded yet")
		return
	}
	writeJSON(w, http.StatusOK, home)
}
