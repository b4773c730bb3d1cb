package types

import (
	"encoding/json"
	"slices"
	"time"
)

// FieldFailure describes why the last fetch of a field failed
type FieldFailure struct {
	Category string    `json:"category"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Field is one slot of an aggregated snapshot.
//
// Available=false is the "unavailable" sentinel: the resource has never been
// fetched successfully. Fresh=true means the value came from the tick that
// built the snapshot; an available value that is not fresh was carried
// forward from an earlier snapshot.
type Field[T any] struct {
	Value     T             `json:"value"`
	Available bool          `json:"available"`
	Fresh     bool          `json:"fresh"`
	FetchedAt time.Time     `json:"fetchedAt,omitempty"`
	Failure   *FieldFailure `json:"failure,omitempty"`
}

// Stale reports whether the value was carried over from a previous poll
func (f Field[T]) Stale() bool {
	return f.Available && !f.Fresh
}

// FreshField builds a field holding a value fetched at the given instant
func FreshField[T any](value T, fetchedAt time.Time) Field[T] {
	return Field[T]{
		Value:     value,
		Available: true,
		Fresh:     true,
		FetchedAt: fetchedAt,
	}
}

// CarryForward builds the field used when a fetch failed: the previous value
// marked stale, or the unavailable sentinel if there was none. clone copies
// the value so the new snapshot never shares mutable state with the old one.
func CarryForward[T any](previous *Field[T], failure *FieldFailure, clone func(T) T) Field[T] {
	if previous == nil || !previous.Available {
		return Field[T]{Failure: failure}
	}
	value := previous.Value
	if clone != nil {
		value = clone(value)
	}
	return Field[T]{
		Value:     value,
		Available: true,
		Fresh:     false,
		FetchedAt: previous.FetchedAt,
		Failure:   failure,
	}
}

// FieldStatus is the freshness of one snapshot field
type FieldStatus string

const (
	// FieldFresh means the field reflects the latest poll
	FieldFresh FieldStatus = "fresh"
	// FieldStale means the field was carried over after a failed fetch
	FieldStale FieldStatus = "stale"
	// FieldUnavailable means the field has never been fetched successfully
	FieldUnavailable FieldStatus = "unavailable"
)

func statusOf[T any](f Field[T]) FieldStatus {
	switch {
	case !f.Available:
		return FieldUnavailable
	case f.Fresh:
		return FieldFresh
	default:
		return FieldStale
	}
}

// AggregatedSnapshot is one immutable view of all four backend resources.
// Instances are built by the aggregator at the end of a tick and must be
// treated as read-only by every consumer.
type AggregatedSnapshot struct {
	ID          string                    `json:"id"`
	Sequence    uint64                    `json:"sequence"`
	StartedAt   time.Time                 `json:"startedAt"`
	CompletedAt time.Time                 `json:"completedAt"`
	Trades      Field[TradeHistory]       `json:"trades"`
	Analysis    Field[[]AnalysisPoint]    `json:"analysis"`
	Portfolio   Field[PortfolioSnapshot]  `json:"portfolio"`
	Performance Field[PerformanceMetrics] `json:"performance"`
}

// Status returns the freshness of the field backing a resource
func (s *AggregatedSnapshot) Status(resource Resource) FieldStatus {
	if s == nil {
		return FieldUnavailable
	}
	switch resource {
	case ResourceTrades:
		return statusOf(s.Trades)
	case ResourceAnalysis:
		return statusOf(s.Analysis)
	case ResourcePortfolio:
		return statusOf(s.Portfolio)
	case ResourcePerformance:
		return statusOf(s.Performance)
	default:
		return FieldUnavailable
	}
}

// Statuses returns the freshness of every field keyed by resource
func (s *AggregatedSnapshot) Statuses() map[Resource]FieldStatus {
	statuses := make(map[Resource]FieldStatus, len(AllResources))
	for _, r := range AllResources {
		statuses[r] = s.Status(r)
	}
	return statuses
}

// HasData reports whether at least one field holds a value
func (s *AggregatedSnapshot) HasData() bool {
	if s == nil {
		return false
	}
	return s.Trades.Available || s.Analysis.Available ||
		s.Portfolio.Available || s.Performance.Available
}

// FreshCount returns how many fields were refreshed by this snapshot's tick
func (s *AggregatedSnapshot) FreshCount() int {
	count := 0
	for _, r := range AllResources {
		if s.Status(r) == FieldFresh {
			count++
		}
	}
	return count
}

// FailedResources lists the resources that were not refreshed by this tick
func (s *AggregatedSnapshot) FailedResources() []Resource {
	var failed []Resource
	for _, r := range AllResources {
		if s.Status(r) != FieldFresh {
			failed = append(failed, r)
		}
	}
	return failed
}

// CloneTradeHistory copies the trade slice and summary
func CloneTradeHistory(h TradeHistory) TradeHistory {
	out := TradeHistory{Trades: slices.Clone(h.Trades)}
	if h.Summary != nil {
		summary := *h.Summary
		out.Summary = &summary
	}
	return out
}

// CloneAnalysis copies the analysis series
func CloneAnalysis(points []AnalysisPoint) []AnalysisPoint {
	return slices.Clone(points)
}

// ClonePortfolio copies the opaque pass-through fields
func ClonePortfolio(p PortfolioSnapshot) PortfolioSnapshot {
	if p.Extra == nil {
		return p
	}
	extra := make(map[string]json.RawMessage, len(p.Extra))
	for k, v := range p.Extra {
		extra[k] = slices.Clone(v)
	}
	p.Extra = extra
	return p
}
