package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/trading-dashboard/internal/adapter"
	"github.com/trading-dashboard/internal/circuitbreaker"
	"github.com/trading-dashboard/internal/errors"
	"github.com/trading-dashboard/internal/logging"
	"github.com/trading-dashboard/internal/retry"
	"github.com/trading-dashboard/internal/types"
)

// AggregatorConfig configures the snapshot aggregator
type AggregatorConfig struct {
	// FetchTimeout bounds each resource fetch including retries
	FetchTimeout time.Duration
	// Retry is applied to retryable failures; nil disables retry
	Retry *retry.RetryConfig
	// Breakers holds one breaker per resource; nil disables them
	Breakers *circuitbreaker.CircuitBreakerManager
	Monitor  *TickMonitor
	Logger   *logging.Logger
	Now      func() time.Time
}

// Aggregator fans out the four resource fetches and merges their outcomes
// with the previous snapshot
type Aggregator struct {
	fetcher      adapter.Fetcher
	fetchTimeout time.Duration
	retryConfig  *retry.RetryConfig
	breakers     *circuitbreaker.CircuitBreakerManager
	monitor      *TickMonitor
	logger       *logging.Logger
	now          func() time.Time
}

// NewAggregator creates a new aggregator over fetcher
func NewAggregator(fetcher adapter.Fetcher, cfg AggregatorConfig) (*Aggregator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}

	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	retryConfig := cfg.Retry
	if retryConfig != nil {
		rc := *retryConfig
		if rc.ShouldRetry == nil {
			rc.ShouldRetry = errors.IsRetryable
		}
		retryConfig = &rc
	}

	monitor := cfg.Monitor
	if monitor == nil {
		monitor = NewTickMonitor()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Aggregator{
		fetcher:      fetcher,
		fetchTimeout: timeout,
		retryConfig:  retryConfig,
		breakers:     cfg.Breakers,
		monitor:      monitor,
		logger:       logger.WithComponent("aggregator"),
		now:          now,
	}, nil
}

// NewFetchBreakers creates the per-resource breaker manager used by the
// aggregator. Canceled fetches do not count against a resource. Zero
// maxFailures or cooldown fall back to circuitbreaker.DefaultConfig.
func NewFetchBreakers(maxFailures int, cooldown time.Duration, logger *logging.Logger) *circuitbreaker.CircuitBreakerManager {
	template := *circuitbreaker.DefaultConfig("")
	if maxFailures > 0 {
		template.MaxFailures = maxFailures
	}
	if cooldown > 0 {
		template.Cooldown = cooldown
	}
	template.IsFailure = func(err error) bool {
		return errors.Categorize(err).Code != "FETCH_CANCELED"
	}
	template.Logger = logger
	return circuitbreaker.NewCircuitBreakerManager(template)
}

// Monitor returns the tick monitor fetch outcomes are recorded in
func (a *Aggregator) Monitor() *TickMonitor {
	return a.monitor
}

// FetchTimeout returns the per-fetch timeout
func (a *Aggregator) FetchTimeout() time.Duration {
	return a.fetchTimeout
}

// fetchOutcome is the settled result of one resource fetch
type fetchOutcome[T any] struct {
	value T
	err   error
	at    time.Time
}

// Aggregate runs one poll: all four fetches concurrently, each under its own
// timeout, then a per-field merge against previous. It never returns an
// error; failed fields carry previous values forward as stale copies, or
// the unavailable sentinel when previous has none.
func (a *Aggregator) Aggregate(ctx context.Context, seq uint64, previous *types.AggregatedSnapshot) *types.AggregatedSnapshot {
	started := a.now()
	logger := a.logger.WithField("sequence", seq)

	var (
		trades      fetchOutcome[*types.TradeHistory]
		analysis    fetchOutcome[[]types.AnalysisPoint]
		portfolio   fetchOutcome[*types.PortfolioSnapshot]
		performance fetchOutcome[*types.PerformanceMetrics]
	)

	var g errgroup.Group
	g.Go(func() error {
		trades = runFetch(ctx, a, logger, types.ResourceTrades, a.fetcher.FetchTrades)
		return nil
	})
	g.Go(func() error {
		analysis = runFetch(ctx, a, logger, types.ResourceAnalysis, a.fetcher.FetchAnalysis)
		return nil
	})
	g.Go(func() error {
		portfolio = runFetch(ctx, a, logger, types.ResourcePortfolio, a.fetcher.FetchPortfolio)
		return nil
	})
	g.Go(func() error {
		performance = runFetch(ctx, a, logger, types.ResourcePerformance, a.fetcher.FetchPerformance)
		return nil
	})
	_ = g.Wait()

	snapshot := &types.AggregatedSnapshot{
		ID:          uuid.NewString(),
		Sequence:    seq,
		StartedAt:   started,
		CompletedAt: a.now(),
	}

	var prev types.AggregatedSnapshot
	hasPrev := previous != nil
	if hasPrev {
		prev = *previous
	}

	snapshot.Trades = mergeField(trades, hasPrev, &prev.Trades, types.CloneTradeHistory,
		func(v *types.TradeHistory) types.TradeHistory { return *v })
	snapshot.Analysis = mergeField(analysis, hasPrev, &prev.Analysis, types.CloneAnalysis,
		func(v []types.AnalysisPoint) []types.AnalysisPoint { return v })
	snapshot.Portfolio = mergeField(portfolio, hasPrev, &prev.Portfolio, types.ClonePortfolio,
		func(v *types.PortfolioSnapshot) types.PortfolioSnapshot { return *v })
	snapshot.Performance = mergeField(performance, hasPrev, &prev.Performance, nil,
		func(v *types.PerformanceMetrics) types.PerformanceMetrics { return *v })

	logger.WithFields(map[string]interface{}{
		"fresh":    snapshot.FreshCount(),
		"failed":   snapshot.FailedResources(),
		"duration": snapshot.CompletedAt.Sub(started).String(),
	}).Debug("Aggregated snapshot")

	return snapshot
}

// mergeField adopts a successful outcome as a fresh value or carries the
// previous field forward
func mergeField[P any, T any](o fetchOutcome[P], hasPrev bool, prev *types.Field[T], clone func(T) T, unwrap func(P) T) types.Field[T] {
	if o.err == nil {
		return types.FreshField(unwrap(o.value), o.at)
	}
	failure := errors.Categorize(o.err).ToFailure(o.at)
	if !hasPrev {
		prev = nil
	}
	return types.CarryForward(prev, failure, clone)
}

// runFetch performs one resource fetch under the per-fetch timeout with the
// breaker and retry policy applied. A fetch that ignores its context is
// abandoned when the timeout fires.
func runFetch[T any](ctx context.Context, a *Aggregator, logger *logging.Logger, resource types.Resource, fn func(context.Context) (T, error)) fetchOutcome[T] {
	fetchCtx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	logger = logger.WithField("resource", string(resource))
	fetchCtx = logging.WithLogger(fetchCtx, logger)

	done := make(chan fetchOutcome[T], 1)
	go func() {
		value, err := protectedFetch(fetchCtx, a, resource, fn)
		done <- fetchOutcome[T]{value: value, err: err}
	}()

	var out fetchOutcome[T]
	select {
	case out = <-done:
	case <-fetchCtx.Done():
		select {
		case out = <-done:
		default:
			if stderrors.Is(ctx.Err(), context.Canceled) {
				out.err = errors.NewCanceledError(resource)
			} else {
				out.err = errors.NewTimeoutError(resource, a.fetchTimeout)
			}
		}
	}
	out.at = a.now()

	a.monitor.RecordFetch(resource, out.err)
	if out.err != nil {
		cat := errors.Categorize(out.err)
		logger.WithFields(map[string]interface{}{
			"category": string(cat.Category),
			"code":     cat.Code,
		}).WithError(out.err).Warn("Resource fetch failed, keeping previous value")
	}
	return out
}

// protectedFetch applies the resource's circuit breaker around the retry loop
func protectedFetch[T any](ctx context.Context, a *Aggregator, resource types.Resource, fn func(context.Context) (T, error)) (T, error) {
	var value T

	attempt := func(ctx context.Context) error {
		if a.retryConfig == nil {
			v, err := safeCall(ctx, resource, fn)
			if err == nil {
				value = v
			}
			return err
		}
		return retry.Do(ctx, a.retryConfig, func(ctx context.Context, n int) error {
			v, err := safeCall(ctx, resource, fn)
			if err == nil {
				value = v
			}
			return err
		})
	}

	if a.breakers == nil {
		err := attempt(ctx)
		return value, err
	}

	err := a.breakers.GetOrCreate(string(resource)).Execute(ctx, attempt)
	if stderrors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return value, errors.NewCircuitOpenError(resource, err)
	}
	return value, err
}

// safeCall invokes fn, converting a panic or a nil payload into an error
func safeCall[T any](ctx context.Context, resource types.Resource, fn func(context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value = zero
			err = errors.NewInternalError(fmt.Sprintf("fetch of %s panicked: %v", resource, r), nil)
		}
	}()

	value, err = fn(ctx)
	if err != nil {
		return value, errors.Categorize(withResource(err, resource))
	}
	if isNilPayload(value) {
		return value, errors.NewDecodeError(resource, fmt.Errorf("fetcher returned no payload"))
	}
	return value, nil
}

// withResource tags uncategorized errors with the resource they came from
func withResource(err error, resource types.Resource) error {
	cat := errors.Categorize(err)
	if cat.Resource == "" {
		tagged := *cat
		tagged.Resource = resource
		return &tagged
	}
	return err
}

func isNilPayload(v interface{}) bool {
	switch p := v.(type) {
	case *types.TradeHistory:
		return p == nil
	case *types.PortfolioSnapshot:
		return p == nil
	case *types.PerformanceMetrics:
		return p == nil
	default:
		return false
	}
}
