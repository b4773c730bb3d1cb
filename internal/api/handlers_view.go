package api

import (
	"net/http"
	"strconv"

	"github.com/trading-dashboard/internal/errors"
	"github.com/trading-dashboard/internal/storage"
	"github.com/trading-dashboard/internal/types"
	"github.com/trading-dashboard/internal/view"
)

// TradesResponse is the body of GET /api/view/trades
type TradesResponse struct {
	Trades    []view.TradeRow   `json:"trades"`
	Limit     int               `json:"limit"`
	Breakdown view.Breakdown    `json:"breakdown"`
	Status    types.FieldStatus `json:"status"`
	Sequence  uint64            `json:"sequence"`
}

// ChartResponse is the body of GET /api/view/chart
type ChartResponse struct {
	Points   []view.ChartPoint `json:"points"`
	Status   types.FieldStatus `json:"status"`
	Sequence uint64            `json:"sequence"`
}

// handleDashboard handles GET /api/view.
// Before the first tick resolves the dashboard is returned with state
// "loading"; if that tick failed entirely the response is 503.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	state := s.store.View()
	if state.Errored() {
		respondError(w, errors.NewNotReadyError(state.Failure))
		return
	}
	respondJSON(w, http.StatusOK, s.dashboard(state))
}

// handleTrades handles GET /api/view/trades?limit=N
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := s.parseLimit(r)
	if err != nil {
		respondError(w, err)
		return
	}

	snapshot, ok := s.committed(w)
	if !ok {
		return
	}

	d := view.BuildDashboard(&storage.ViewState{Snapshot: snapshot}, s.formatter, limit)

	respondJSON(w, http.StatusOK, TradesResponse{
		Trades:    d.RecentTrades,
		Limit:     limit,
		Breakdown: d.Breakdown,
		Status:    snapshot.Status(types.ResourceTrades),
		Sequence:  snapshot.Sequence,
	})
}

// handleChart handles GET /api/view/chart
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.committed(w)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, ChartResponse{
		Points:   view.ChartSeries(snapshot),
		Status:   snapshot.Status(types.ResourceAnalysis),
		Sequence: snapshot.Sequence,
	})
}

// handleSnapshot handles GET /api/view/snapshot
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := s.committed(w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// committed returns the current snapshot or writes a 503 if there is none
func (s *Server) committed(w http.ResponseWriter) (*types.AggregatedSnapshot, bool) {
	state := s.store.View()
	if state.Snapshot == nil {
		respondError(w, errors.NewNotReadyError(state.Failure))
		return nil, false
	}
	return state.Snapshot, true
}

func (s *Server) parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return s.config.RecentTrades, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidParameterError("limit", "must be an integer")
	}
	if limit < 1 || limit > s.config.MaxTradesLimit {
		return 0, errors.NewInvalidParameterError("limit",
			"must be between 1 and "+strconv.Itoa(s.config.MaxTradesLimit))
	}
	return limit, nil
}

func (s *Server) dashboard(state *storage.ViewState) *view.Dashboard {
	return view.BuildDashboard(state, s.formatter, s.config.RecentTrades)
}
