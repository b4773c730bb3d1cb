package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trading-dashboard/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	return NewCircuitBreaker(&Config{
		Name:        "trades",
		MaxFailures: 3,
		Cooldown:    time.Minute,
		Logger:      logging.NewNopLogger(),
		Now:         clock.Now,
	})
}

var errBackend = errors.New("backend down")

func fail(ctx context.Context) error    { return errBackend }
func succeed(ctx context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cb := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	}
	assert.Equal(t, StateClosed, cb.GetState())

	// A success in between resets the streak
	require.NoError(t, cb.Execute(ctx, succeed))
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, 1, cb.GetStats().Rejected)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cb := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, cb.GetState())

	// Failed probe reopens for another cooldown
	clock.Advance(time.Minute)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)

	// Successful probe closes it
	clock.Advance(time.Minute)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetStats().ConsecutiveFails)
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker(&Config{
		Name:        "analysis",
		MaxFailures: 1,
		Cooldown:    time.Minute,
		IsFailure:   func(err error) bool { return !errors.Is(err, context.Canceled) },
		Logger:      logging.NewNopLogger(),
		Now:         clock.Now,
	})

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerManager(t *testing.T) {
	m := NewCircuitBreakerManager(Config{MaxFailures: 2, Cooldown: time.Minute, Logger: logging.NewNopLogger()})

	a := m.GetOrCreate("portfolio")
	assert.Same(t, a, m.GetOrCreate("portfolio"))
	m.GetOrCreate("analysis")

	stats := m.GetAllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "analysis", stats[0].Name)
	assert.Equal(t, "portfolio", stats[1].Name)

	_ = a.Execute(context.Background(), fail)
	_ = a.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, a.GetState())

	m.ResetAll()
	assert.Equal(t, StateClosed, a.GetState())
}
