package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/trading-dashboard/internal/errors"
	"github.com/trading-dashboard/internal/types"
)

// TickMonitor tracks poll tick outcomes and per-resource fetch results.
// It is shared by the aggregator (fetch outcomes) and the scheduler (tick
// lifecycle) and read by the health endpoint.
type TickMonitor struct {
	mu sync.RWMutex

	ticksStarted   int64
	ticksCommitted int64
	ticksSkipped   int64
	ticksDropped   int64
	ticksEmpty     int64

	durations  []time.Duration
	maxSamples int
	lastTick   time.Time
	lastDur    time.Duration

	resources map[types.Resource]*resourceCounters
}

type resourceCounters struct {
	successes  int64
	failures   int64
	byCategory map[errors.ErrorCategory]int64
}

// NewTickMonitor creates a new tick monitor
func NewTickMonitor() *TickMonitor {
	resources := make(map[types.Resource]*resourceCounters, len(types.AllResources))
	for _, r := range types.AllResources {
		resources[r] = &resourceCounters{byCategory: map[errors.ErrorCategory]int64{}}
	}
	return &TickMonitor{
		durations:  make([]time.Duration, 0, 256),
		maxSamples: 256, // Keep last 256 tick durations
		resources:  resources,
	}
}

// RecordTickStarted records that a tick began running
func (m *TickMonitor) RecordTickStarted(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticksStarted++
	m.lastTick = at
}

// RecordTickSkipped records a tick skipped because the previous one was still in flight
func (m *TickMonitor) RecordTickSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticksSkipped++
}

// RecordTickDropped records a completed tick whose result was discarded
func (m *TickMonitor) RecordTickDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticksDropped++
}

// RecordTickEmpty records a tick that produced no data at all
func (m *TickMonitor) RecordTickEmpty(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticksEmpty++
	m.recordDurationLocked(duration)
}

// RecordTickCommitted records a tick whose snapshot was published
func (m *TickMonitor) RecordTickCommitted(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticksCommitted++
	m.recordDurationLocked(duration)
}

func (m *TickMonitor) recordDurationLocked(d time.Duration) {
	m.lastDur = d
	m.durations = append(m.durations, d)
	if len(m.durations) > m.maxSamples {
		m.durations = m.durations[len(m.durations)-m.maxSamples:]
	}
}

// RecordFetch records the outcome of one resource fetch
func (m *TickMonitor) RecordFetch(resource types.Resource, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counters, ok := m.resources[resource]
	if !ok {
		return
	}
	if err == nil {
		counters.successes++
		return
	}
	counters.failures++
	counters.byCategory[errors.Categorize(err).Category]++
}

// TickStats contains tick statistics
type TickStats struct {
	TicksStarted   int64                    `json:"ticksStarted"`
	TicksCommitted int64                    `json:"ticksCommitted"`
	TicksSkipped   int64                    `json:"ticksSkipped"`
	TicksDropped   int64                    `json:"ticksDropped"`
	TicksEmpty     int64                    `json:"ticksEmpty"`
	LastTick       time.Time                `json:"lastTick,omitempty"`
	LastDurationMs float64                  `json:"lastDurationMs"`
	AvgDurationMs  float64                  `json:"avgDurationMs"`
	P95DurationMs  float64                  `json:"p95DurationMs"`
	Resources      map[string]ResourceStats `json:"resources"`
}

// ResourceStats contains fetch outcomes for one resource
type ResourceStats struct {
	Successes int64            `json:"successes"`
	Failures  int64            `json:"failures"`
	ByCause   map[string]int64 `json:"byCategory,omitempty"`
}

// GetStats returns current tick statistics
func (m *TickMonitor) GetStats() *TickStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &TickStats{
		TicksStarted:   m.ticksStarted,
		TicksCommitted: m.ticksCommitted,
		TicksSkipped:   m.ticksSkipped,
		TicksDropped:   m.ticksDropped,
		TicksEmpty:     m.ticksEmpty,
		LastTick:       m.lastTick,
		LastDurationMs: durationMs(m.lastDur),
		Resources:      make(map[string]ResourceStats, len(m.resources)),
	}

	if len(m.durations) > 0 {
		var total time.Duration
		for _, d := range m.durations {
			total += d
		}
		stats.AvgDurationMs = durationMs(total) / float64(len(m.durations))

		sorted := make([]time.Duration, len(m.durations))
		copy(sorted, m.durations)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		p95Index := int(float64(len(sorted)) * 0.95)
		if p95Index >= len(sorted) {
			p95Index = len(sorted) - 1
		}
		stats.P95DurationMs = durationMs(sorted[p95Index])
	}

	for r, c := range m.resources {
		rs := ResourceStats{Successes: c.successes, Failures: c.failures}
		if len(c.byCategory) > 0 {
			rs.ByCause = make(map[string]int64, len(c.byCategory))
			for cat, n := range c.byCategory {
				rs.ByCause[string(cat)] = n
			}
		}
		stats.Resources[string(r)] = rs
	}

	return stats
}

// TickCheck contains the result of a tick health check
type TickCheck struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}

// Check compares tick statistics against the poll interval
func (m *TickMonitor) Check(interval time.Duration) *TickCheck {
	stats := m.GetStats()

	check := &TickCheck{
		Passed: true,
		Issues: make([]string, 0),
	}

	if interval > 0 && stats.AvgDurationMs > durationMs(interval) {
		check.Passed = false
		check.Issues = append(check.Issues,
			fmt.Sprintf("Average tick duration (%.0fms) exceeds the poll interval (%s)", stats.AvgDurationMs, interval))
	}

	if stats.TicksSkipped > 0 && stats.TicksSkipped*2 > stats.TicksStarted {
		check.Issues = append(check.Issues,
			fmt.Sprintf("%d ticks skipped for %d started - consider a longer poll interval", stats.TicksSkipped, stats.TicksStarted))
	}

	for _, r := range types.AllResources {
		rs := stats.Resources[string(r)]
		if rs.Failures >= 5 && rs.Failures > rs.Successes {
			check.Passed = false
			check.Issues = append(check.Issues,
				fmt.Sprintf("Resource %s failed %d of %d fetches", r, rs.Failures, rs.Failures+rs.Successes))
		}
	}

	return check
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
