// Package worker runs the periodic poll loop that feeds the snapshot store.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trading-dashboard/internal/logging"
	"github.com/trading-dashboard/internal/service"
	"github.com/trading-dashboard/internal/storage"
	"github.com/trading-dashboard/internal/types"
)

// SnapshotBuilder produces the snapshot for one tick. Implemented by
// service.Aggregator.
type SnapshotBuilder interface {
	Aggregate(ctx context.Context, seq uint64, previous *types.AggregatedSnapshot) *types.AggregatedSnapshot
}

// PollSchedulerConfig holds configuration for a poll scheduler
type PollSchedulerConfig struct {
	Builder SnapshotBuilder
	Store   *storage.SnapshotStore
	Monitor *service.TickMonitor
	Logger  *logging.Logger
	Now     func() time.Time
}

// PollScheduler triggers an aggregation immediately on Start and then once
// per interval. At most one tick is in flight; a tick that comes due while
// another is running is skipped.
type PollScheduler struct {
	builder SnapshotBuilder
	store   *storage.SnapshotStore
	monitor *service.TickMonitor
	logger  *logging.Logger
	now     func() time.Time

	mu         sync.Mutex
	run        *pollRun
	sequence   uint64
	lastTick   time.Time
	lastCommit time.Time
}

// pollRun is the state of one Start..Stop cycle
type pollRun struct {
	sessionID string
	interval  time.Duration
	logger    *logging.Logger
	cancel    context.CancelFunc
	loopDone  chan struct{}
	ticks     sync.WaitGroup

	// guarded by PollScheduler.mu
	inFlight bool
	previous *types.AggregatedSnapshot
}

// SchedulerStatus is a point-in-time view of the scheduler
type SchedulerStatus struct {
	Running    bool      `json:"running"`
	SessionID  string    `json:"sessionId,omitempty"`
	Interval   string    `json:"interval,omitempty"`
	InFlight   bool      `json:"inFlight"`
	Sequence   uint64    `json:"sequence"`
	LastTick   time.Time `json:"lastTick,omitempty"`
	LastCommit time.Time `json:"lastCommit,omitempty"`
}

// NewPollScheduler creates a new poll scheduler
func NewPollScheduler(cfg *PollSchedulerConfig) (*PollScheduler, error) {
	if cfg.Builder == nil {
		return nil, fmt.Errorf("snapshot builder cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("snapshot store cannot be nil")
	}

	monitor := cfg.Monitor
	if monitor == nil {
		monitor = service.NewTickMonitor()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &PollScheduler{
		builder: cfg.Builder,
		store:   cfg.Store,
		monitor: monitor,
		logger:  logger.WithComponent("poll_scheduler"),
		now:     now,
	}, nil
}

// Start runs one tick immediately and then one every interval until Stop is
// called or ctx is done
func (s *PollScheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		return fmt.Errorf("poll scheduler is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	sessionID := uuid.NewString()
	r := &pollRun{
		sessionID: sessionID,
		interval:  interval,
		logger:    s.logger.WithField("session", sessionID),
		cancel:    cancel,
		loopDone:  make(chan struct{}),
	}
	s.run = r

	r.logger.WithField("interval", interval.String()).Info("Starting poll scheduler")

	go s.loop(runCtx, r)
	return nil
}

// Stop prevents further ticks, cancels the in-flight tick and waits for it
// to finish. The result of a tick cancelled this way is never committed.
func (s *PollScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	r := s.run
	if r == nil {
		s.mu.Unlock()
		return fmt.Errorf("poll scheduler is not running")
	}
	s.run = nil
	s.mu.Unlock()

	r.logger.Info("Stopping poll scheduler")
	r.cancel()

	done := make(chan struct{})
	go func() {
		<-r.loopDone
		r.ticks.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Poll scheduler stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("Poll scheduler stop timed out waiting for in-flight tick")
		return ctx.Err()
	}
}

// Running reports whether the scheduler has been started and not stopped
func (s *PollScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// Status returns the current scheduler status
func (s *PollScheduler) Status() *SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &SchedulerStatus{
		Running:    s.run != nil,
		Sequence:   s.sequence,
		LastTick:   s.lastTick,
		LastCommit: s.lastCommit,
	}
	if s.run != nil {
		status.SessionID = s.run.sessionID
		status.Interval = s.run.interval.String()
		status.InFlight = s.run.inFlight
	}
	return status
}

// loop is the timer goroutine. Ticks run in their own goroutines.
func (s *PollScheduler) loop(ctx context.Context, r *pollRun) {
	defer close(r.loopDone)
	defer s.release(r)

	s.fire(ctx, r)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, r)
		}
	}
}

// release clears r when the parent context ended without Stop, so the
// scheduler reports stopped and can be started again
func (s *PollScheduler) release(r *pollRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != r {
		return
	}
	s.run = nil
	r.cancel()
	r.logger.Info("Poll scheduler context done, stopped")
}

// fire starts a tick unless one is already in flight
func (s *PollScheduler) fire(ctx context.Context, r *pollRun) {
	s.mu.Lock()
	if s.run != r || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if r.inFlight {
		s.mu.Unlock()
		s.monitor.RecordTickSkipped()
		r.logger.Debug("Previous tick still in flight, skipping")
		return
	}

	r.inFlight = true
	s.sequence++
	seq := s.sequence
	previous := r.previous
	started := s.now()
	s.lastTick = started
	r.ticks.Add(1)
	s.mu.Unlock()

	s.monitor.RecordTickStarted(started)
	go s.tick(ctx, r, seq, previous, started)
}

// tick runs one aggregation and commits its result if the run is still current
func (s *PollScheduler) tick(ctx context.Context, r *pollRun, seq uint64, previous *types.AggregatedSnapshot, started time.Time) {
	defer r.ticks.Done()

	logger := r.logger.WithField("sequence", seq)
	snapshot := s.builder.Aggregate(logging.WithLogger(ctx, logger), seq, previous)
	duration := s.now().Sub(started)

	s.mu.Lock()
	defer s.mu.Unlock()

	r.inFlight = false

	if s.run != r || ctx.Err() != nil || snapshot == nil {
		s.monitor.RecordTickDropped()
		logger.Debug("Discarding tick result after stop")
		return
	}

	if !snapshot.HasData() {
		failure := tickFailure(snapshot)
		s.store.RecordFailure(seq, failure)
		s.monitor.RecordTickEmpty(duration)
		logger.WithFields(map[string]interface{}{
			"category": failure.Category,
			"code":     failure.Code,
		}).Warn("Tick produced no data, nothing committed")
		return
	}

	if !s.store.Publish(snapshot) {
		s.monitor.RecordTickDropped()
		return
	}

	r.previous = snapshot
	s.lastCommit = s.now()
	s.monitor.RecordTickCommitted(duration)
	logger.WithFields(map[string]interface{}{
		"fresh":    snapshot.FreshCount(),
		"duration": duration.String(),
	}).Info("Snapshot committed")
}

// tickFailure picks the failure reported for a tick with no data
func tickFailure(snapshot *types.AggregatedSnapshot) *types.FieldFailure {
	failures := []*types.FieldFailure{
		snapshot.Trades.Failure,
		snapshot.Analysis.Failure,
		snapshot.Portfolio.Failure,
		snapshot.Performance.Failure,
	}
	for _, f := range failures {
		if f != nil {
			return f
		}
	}
	return &types.FieldFailure{
		Category: "system",
		Code:     "NO_DATA",
		Message:  "tick produced no data",
		At:       snapshot.CompletedAt,
	}
}
