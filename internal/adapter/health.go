package adapter

import (
	"sync"
	"time"

	"github.com/trading-dashboard/internal/types"
)

// EndpointHealth represents the health status of one backend endpoint
type EndpointHealth struct {
	Resource         types.Resource `json:"resource"`
	TotalRequests    int64          `json:"totalRequests"`
	SuccessfulReqs   int64          `json:"successfulRequests"`
	FailedReqs       int64          `json:"failedRequests"`
	SuccessRate      float64        `json:"successRate"`
	AverageLatency   time.Duration  `json:"averageLatency"`
	LastSuccess      time.Time      `json:"lastSuccess,omitempty"`
	LastFailure      time.Time      `json:"lastFailure,omitempty"`
	LastError        string         `json:"lastError,omitempty"`
	ConsecutiveFails int            `json:"consecutiveFails"`
	IsHealthy        bool           `json:"isHealthy"`
}

// endpointTracker accumulates request outcomes for one endpoint
type endpointTracker struct {
	mu sync.Mutex

	resource         types.Resource
	totalRequests    int64
	successfulReqs   int64
	failedReqs       int64
	totalLatency     time.Duration
	lastSuccess      time.Time
	lastFailure      time.Time
	lastError        string
	consecutiveFails int

	// Health thresholds
	maxConsecutiveFails int
	minSuccessRate      float64
}

func newEndpointTracker(resource types.Resource) *endpointTracker {
	return &endpointTracker{
		resource:            resource,
		maxConsecutiveFails: 3,
		minSuccessRate:      0.5,
	}
}

// RecordSuccess records a successful request
func (t *endpointTracker) RecordSuccess(latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalRequests++
	t.successfulReqs++
	t.totalLatency += latency
	t.lastSuccess = time.Now()
	t.consecutiveFails = 0
}

// RecordFailure records a failed request
func (t *endpointTracker) RecordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalRequests++
	t.failedReqs++
	t.lastFailure = time.Now()
	t.consecutiveFails++
	if err != nil {
		t.lastError = err.Error()
	}
}

// Snapshot returns a copy of the current health status
func (t *endpointTracker) Snapshot() *EndpointHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	var successRate float64
	if t.totalRequests > 0 {
		successRate = float64(t.successfulReqs) / float64(t.totalRequests)
	}

	var avgLatency time.Duration
	if t.successfulReqs > 0 {
		avgLatency = t.totalLatency / time.Duration(t.successfulReqs)
	}

	return &EndpointHealth{
		Resource:         t.resource,
		TotalRequests:    t.totalRequests,
		SuccessfulReqs:   t.successfulReqs,
		FailedReqs:       t.failedReqs,
		SuccessRate:      successRate,
		AverageLatency:   avgLatency,
		LastSuccess:      t.lastSuccess,
		LastFailure:      t.lastFailure,
		LastError:        t.lastError,
		ConsecutiveFails: t.consecutiveFails,
		IsHealthy:        t.isHealthyLocked(),
	}
}

// isHealthyLocked checks health status (must be called with lock held)
func (t *endpointTracker) isHealthyLocked() bool {
	if t.consecutiveFails >= t.maxConsecutiveFails {
		return false
	}

	// Only judge the success rate once there is enough data
	if t.totalRequests >= 10 {
		if float64(t.successfulReqs)/float64(t.totalRequests) < t.minSuccessRate {
			return false
		}
	}

	return true
}
