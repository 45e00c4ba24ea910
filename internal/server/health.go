package server

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status     string          `json:"status"`
	Components map[string]bool `json:"components"`
	Timestamp  string          `json:"timestamp"`
}

// handleHealth probes every registered component. All reachable is
// healthy, some is degraded, none is unhealthy (503).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	components := make(map[string]bool, len(s.deps.Pingers))
	up := 0
	for name, p := range s.deps.Pingers {
		ok := p.Ping(ctx) == nil
		components[name] = ok
		if ok {
			up++
		}
	}

	status := "healthy"
	code := http.StatusOK
	switch {
	case len(components) == 0:
		// Nothing registered to probe; the process itself is up.
	case up == 0:
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	case up < len(components):
		status = "degraded"
	}

	writeJSON(w, code, healthResponse{
		Status:     status,
		Components: components,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}
