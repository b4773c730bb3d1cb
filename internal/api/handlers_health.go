package api

import (
	"net/http"

	"github.com/trading-dashboard/internal/adapter"
	"github.com/trading-dashboard/internal/circuitbreaker"
	"github.com/trading-dashboard/internal/service"
	"github.com/trading-dashboard/internal/types"
	"github.com/trading-dashboard/internal/worker"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string                               `json:"status"`
	Service   string                               `json:"service"`
	Loading   bool                                 `json:"loading"`
	Sequence  uint64                               `json:"sequence"`
	Fields    map[types.Resource]types.FieldStatus `json:"fields"`
	LastError *types.FieldFailure                  `json:"lastError,omitempty"`
	Scheduler *worker.SchedulerStatus              `json:"scheduler,omitempty"`
	Ticks     *service.TickStats                   `json:"ticks,omitempty"`
	TickCheck *service.TickCheck                   `json:"tickCheck,omitempty"`
	Endpoints []*adapter.EndpointHealth            `json:"endpoints,omitempty"`
	Breakers  []*circuitbreaker.Stats              `json:"breakers,omitempty"`
}

// handleHealth handles health check requests. It always answers 200; the
// status field is "healthy", "degraded" or "loading".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.store.View()

	resp := HealthResponse{
		Status:    "healthy",
		Service:   "trading-dashboard",
		Loading:   state.Loading,
		Fields:    state.Snapshot.Statuses(),
		LastError: state.Failure,
	}
	if state.Snapshot != nil {
		resp.Sequence = state.Snapshot.Sequence
	}

	degraded := false
	if s.scheduler != nil {
		resp.Scheduler = s.scheduler.Status()
		if !resp.Scheduler.Running {
			degraded = true
		}
	}
	if s.monitor != nil {
		resp.Ticks = s.monitor.GetStats()
		resp.TickCheck = s.monitor.Check(s.config.PollInterval)
		if !resp.TickCheck.Passed {
			degraded = true
		}
	}
	if s.backend != nil {
		resp.Endpoints = s.backend.Health()
		for _, e := range resp.Endpoints {
			if !e.IsHealthy {
				degraded = true
			}
		}
	}
	if s.breakers != nil {
		resp.Breakers = s.breakers.GetAllStats()
		for _, b := range resp.Breakers {
			if b.State != circuitbreaker.StateClosed {
				degraded = true
			}
		}
	}
	if state.Snapshot != nil && state.Snapshot.FreshCount() < len(types.AllResources) {
		degraded = true
	}

	switch {
	case state.Loading:
		resp.Status = "loading"
	case degraded:
		resp.Status = "degraded"
	}

	respondJSON(w, http.StatusOK, resp)
}
