// Package storage holds the in-memory view state and its outbound fan-out.
package storage

import (
	"sync"
	"sync/atomic"

	"github.com/trading-dashboard/internal/logging"
	"github.com/trading-dashboard/internal/types"
)

// ViewState is what the presentation layer reads. A ViewState is never
// modified after it is stored; every change swaps in a new value.
type ViewState struct {
	// Snapshot is nil until the first commit
	Snapshot *types.AggregatedSnapshot `json:"snapshot"`
	// Loading stays true until a snapshot has been committed
	Loading bool `json:"loading"`
	// Failure is set when a tick produced no data while nothing was committed
	Failure *types.FieldFailure `json:"failure,omitempty"`

	failureSeq uint64
}

// Errored reports whether the store is in the first-load error state
func (v *ViewState) Errored() bool {
	return v.Snapshot == nil && v.Failure != nil
}

type subscriber struct {
	ch   chan *ViewState
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// SnapshotStore holds the latest committed snapshot. Reads are lock-free;
// writers are serialized and rejected when they would move the sequence
// backwards.
type SnapshotStore struct {
	state atomic.Pointer[ViewState]

	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      uint64
	closed      bool

	logger *logging.Logger
}

// NewSnapshotStore creates an empty store in the loading state
func NewSnapshotStore(logger *logging.Logger) *SnapshotStore {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &SnapshotStore{
		subscribers: make(map[uint64]*subscriber),
		logger:      logger.WithComponent("snapshot_store"),
	}
	s.state.Store(&ViewState{Loading: true})
	return s
}

// View returns the current state. The returned value must not be modified.
func (s *SnapshotStore) View() *ViewState {
	return s.state.Load()
}

// Current returns the committed snapshot, or nil while loading
func (s *SnapshotStore) Current() *types.AggregatedSnapshot {
	return s.state.Load().Snapshot
}

// Publish commits snapshot if its sequence is newer than the committed one
// and hands the new state to every subscriber. It reports whether the snapshot was
// accepted.
func (s *SnapshotStore) Publish(snapshot *types.AggregatedSnapshot) bool {
	if snapshot == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.state.Load()
	if current.Snapshot != nil && snapshot.Sequence <= current.Snapshot.Sequence {
		s.logger.WithFields(map[string]interface{}{
			"sequence":  snapshot.Sequence,
			"committed": current.Snapshot.Sequence,
		}).Warn("Rejected out-of-order snapshot")
		return false
	}

	s.storeLocked(&ViewState{Snapshot: snapshot})
	return true
}

// storeLocked swaps in state and notifies subscribers. Caller holds s.mu.
func (s *SnapshotStore) storeLocked(state *ViewState) {
	s.state.Store(state)
	for _, sub := range s.subscribers {
		deliverLatest(sub.ch, state)
	}
}

// deliverLatest puts state in a one-slot channel, replacing an unread older
// value. Only called with s.mu held, so the send cannot block.
func deliverLatest(ch chan *ViewState, state *ViewState) {
	select {
	case ch <- state:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- state
}

// RecordFailure records that tick seq produced no data at all. It only has
// an effect while nothing has been committed; once data exists, failed
// fields are reported per field instead.
func (s *SnapshotStore) RecordFailure(seq uint64, failure *types.FieldFailure) bool {
	if failure == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.state.Load()
	if current.Snapshot != nil || seq <= current.failureSeq {
		return false
	}

	s.storeLocked(&ViewState{
		Loading:    true,
		Failure:    failure,
		failureSeq: seq,
	})
	return true
}

// Subscribe returns a channel receiving every state change: each committed
// snapshot and each recorded first-load failure. The channel holds at most
// one pending state; a slow reader only sees the latest. unsubscribe closes
// the channel and may be called more than once.
func (s *SnapshotStore) Subscribe() (<-chan *ViewState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscriber{ch: make(chan *ViewState, 1)}
	if s.closed {
		sub.close()
		return sub.ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subscribers[id] = sub

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
		sub.close()
	}
	return sub.ch, unsubscribe
}

// SubscriberCount returns the number of active subscribers
func (s *SnapshotStore) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Close closes every subscriber channel. Publishing after Close still
// updates the view but reaches no subscriber.
func (s *SnapshotStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, sub := range s.subscribers {
		sub.close()
		delete(s.subscribers, id)
	}
}
