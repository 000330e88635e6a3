package core

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds all health probes together.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a subsystem health check. The only critical dependency here
// is the database, but the probe list keeps the endpoint extensible.
type HealthProbe interface {
	// Name returns a human-readable identifier for the probe.
	Name() string

	// Check performs the health check, respecting the context deadline.
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs all registered probes sequentially under a shared
// 2-second deadline. Returns 200 if every probe reports healthy, 503 if any
// subsystem fails. The endpoint is public and mounted at GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	resp := healthResponse{
		Status:     "healthy",
		Components: make(map[string]componentStatus, len(s.HealthProbes)),
	}
	status := http.StatusOK

	for _, probe := range s.HealthProbes {
		if err := probe.Check(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Components[probe.Name()] = componentStatus{
				Status:  "unhealthy",
				Message: err.Error(),
			}
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[probe.Name()] = componentStatus{Status: "healthy"}
	}

	JSON(w, r, status, resp)
}
