package core

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker reports the readiness of one dependency.
type HealthChecker interface {
	Name() string
	Health(ctx context.Context) error
}

// healthTimeout bounds the whole /healthz probe.
var healthTimeout = 2 * time.Second

// AddHealthCheck registers a dependency with the health endpoint.
func (s *Server) AddHealthCheck(c HealthChecker) {
	s.checks = append(s.checks, c)
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	out := healthStatus{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for _, c := range s.checks {
		if err := c.Health(ctx); err != nil {
			out.Checks[c.Name()] = err.Error()
			out.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		out.Checks[c.Name()] = "ok"
	}
	JSON(w, r, status, out)
}
