package circuitbreaker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/trading-dashboard/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = "closed"
	// StateOpen means the circuit is open and requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means one probe request is allowed through
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker
type Config struct {
	Name        string
	MaxFailures int           // Consecutive failures before opening
	Cooldown    time.Duration // Time to stay open before allowing a probe

	// IsFailure decides whether an error counts against the breaker.
	// A nil IsFailure counts every error.
	IsFailure func(err error) bool

	Logger *logging.Logger
	Now    func() time.Time
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:        name,
		MaxFailures: 5,
		Cooldown:    60 * time.Second,
	}
}

// CircuitBreaker opens after MaxFailures consecutive failures, rejects calls
// for Cooldown, then lets a single probe through. A successful probe closes
// it again; a failed probe reopens it.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	isFailure   func(err error) bool
	logger      *logging.Logger
	now         func() time.Time

	mu               sync.Mutex
	state            State
	probing          bool
	consecutiveFails int
	failures         int
	successes        int
	rejected         int
	lastFailureTime  time.Time
	lastStateChange  time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	maxFailures := config.MaxFailures
	if maxFailures < 1 {
		maxFailures = 1
	}

	return &CircuitBreaker{
		name:            config.Name,
		maxFailures:     maxFailures,
		cooldown:        config.Cooldown,
		isFailure:       config.IsFailure,
		logger:          logger.WithField("circuitBreaker", config.Name),
		now:             now,
		state:           StateClosed,
		lastStateChange: now(),
	}
}

// Execute executes a function with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterRequest(err)
	return err
}

// beforeRequest checks if a request can be executed
func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) < cb.cooldown {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		cb.logger.WithField("state", StateHalfOpen).Info("Circuit breaker transitioning to half-open")
		return nil

	case StateHalfOpen:
		if cb.probing {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil

	default:
		return nil
	}
}

// afterRequest records the result of a request
func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false

	if err != nil && (cb.isFailure == nil || cb.isFailure(err)) {
		cb.onFailure()
		return
	}
	if err != nil {
		// Not held against the backend, but not proof of recovery either
		return
	}
	cb.onSuccess()
}

func (cb *CircuitBreaker) onSuccess() {
	cb.successes++
	cb.consecutiveFails = 0

	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
		cb.logger.WithField("state", StateClosed).Info("Circuit breaker closed after successful probe")
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.consecutiveFails++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFails >= cb.maxFailures {
			cb.setState(StateOpen)
			cb.logger.WithFields(map[string]interface{}{
				"state":            StateOpen,
				"consecutiveFails": cb.consecutiveFails,
				"cooldown":         cb.cooldown.String(),
			}).Warn("Circuit breaker opened due to failures")
		}

	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.logger.WithField("state", StateOpen).Warn("Circuit breaker reopened after failed probe")
	}
}

func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = cb.now()
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	Failures         int       `json:"failures"`
	Successes        int       `json:"successes"`
	Rejected         int       `json:"rejected"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	LastFailureTime  time.Time `json:"lastFailureTime,omitempty"`
	LastStateChange  time.Time `json:"lastStateChange"`
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() *Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return &Stats{
		Name:             cb.name,
		State:            cb.state,
		Failures:         cb.failures,
		Successes:        cb.successes,
		Rejected:         cb.rejected,
		ConsecutiveFails: cb.consecutiveFails,
		LastFailureTime:  cb.lastFailureTime,
		LastStateChange:  cb.lastStateChange,
	}
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.probing = false
	cb.consecutiveFails = 0
	cb.logger.Info("Circuit breaker manually reset")
}

// CircuitBreakerManager manages one breaker per name
type CircuitBreakerManager struct {
	template Config
	breakers map[string]*CircuitBreaker
	mu       sync.Mutex
}

// NewCircuitBreakerManager creates a manager whose breakers are built from
// template with the name filled in
func NewCircuitBreakerManager(template Config) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		template: template,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate gets an existing circuit breaker or creates a new one
func (cbm *CircuitBreakerManager) GetOrCreate(name string) *CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if cb, exists := cbm.breakers[name]; exists {
		return cb
	}

	config := cbm.template
	config.Name = name
	cb := NewCircuitBreaker(&config)
	cbm.breakers[name] = cb

	return cb
}

// GetAllStats returns statistics for all circuit breakers sorted by name
func (cbm *CircuitBreakerManager) GetAllStats() []*Stats {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	result := make([]*Stats, 0, len(cbm.breakers))
	for _, cb := range cbm.breakers {
		result = append(result, cb.GetStats())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result
}

// ResetAll resets all circuit breakers
func (cbm *CircuitBreakerManager) ResetAll() {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	for _, cb := range cbm.breakers {
		cb.Reset()
	}
}
