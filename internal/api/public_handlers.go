package api

import (
	"net/http"

	"github.com/pagopa/interop-platform-state/internal/api/presenter"
	"github.com/pagopa/interop-platform-state/internal/buildinfo"
)

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// Health is the body of the health check. Consumers maps each projection
// domain run by this process to whether its consumer is still running.
type Health struct {
	Status    string          `json:"status"`
	Consumers map[string]bool `json:"consumers,omitempty"`
}

// handleHealth answers 503 once a projection consumer of this process stopped:
// its stream is no longer being applied to the state tables.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := Health{Status: HealthOK}
	status := http.StatusOK
	for _, c := range s.monitor.List() {
		if health.Consumers == nil {
			health.Consumers = make(map[string]bool)
		}
		health.Consumers[c.Domain] = c.Running
		if !c.Running {
			health.Status = HealthDegraded
			status = http.StatusServiceUnavailable
		}
	}
	presenter.JSON(w, r, health, status)
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, buildinfo.Current(), http.StatusOK)
}
