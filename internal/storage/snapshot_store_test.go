package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trading-dashboard/internal/logging"
	"github.com/trading-dashboard/internal/types"
)

func newTestStore() *SnapshotStore {
	return NewSnapshotStore(logging.NewNopLogger())
}

func snapshotAt(seq uint64) *types.AggregatedSnapshot {
	return &types.AggregatedSnapshot{
		Sequence: seq,
		Performance: types.FreshField(types.PerformanceMetrics{TotalTrades: int(seq)},
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func TestSnapshotStore_InitialState(t *testing.T) {
	store := newTestStore()

	view := store.View()
	require.NotNil(t, view)
	assert.True(t, view.Loading)
	assert.Nil(t, view.Snapshot)
	assert.Nil(t, view.Failure)
	assert.False(t, view.Errored())
	assert.Nil(t, store.Current())
}

func TestSnapshotStore_Publish(t *testing.T) {
	store := newTestStore()

	assert.True(t, store.Publish(snapshotAt(1)))
	view := store.View()
	assert.False(t, view.Loading)
	require.NotNil(t, view.Snapshot)
	assert.Equal(t, uint64(1), view.Snapshot.Sequence)

	assert.True(t, store.Publish(snapshotAt(3)))
	assert.Equal(t, uint64(3), store.Current().Sequence)
}

func TestSnapshotStore_RejectsOlderSequence(t *testing.T) {
	store := newTestStore()

	require.True(t, store.Publish(snapshotAt(5)))
	assert.False(t, store.Publish(snapshotAt(4)), "older sequence must be rejected")
	assert.False(t, store.Publish(snapshotAt(5)), "equal sequence must be rejected")
	assert.Equal(t, uint64(5), store.Current().Sequence)
}

func TestSnapshotStore_PublishNil(t *testing.T) {
	store := newTestStore()
	assert.False(t, store.Publish(nil))
	assert.True(t, store.View().Loading)
}

func TestSnapshotStore_RecordFailure(t *testing.T) {
	store := newTestStore()
	failure := &types.FieldFailure{Category: "transport", Code: "BACKEND_UNREACHABLE", Message: "connection refused"}

	assert.True(t, store.RecordFailure(1, failure))
	view := store.View()
	assert.True(t, view.Loading)
	assert.True(t, view.Errored())
	assert.Equal(t, failure, view.Failure)

	// Older failures do not replace newer ones
	older := &types.FieldFailure{Code: "OLD"}
	assert.False(t, store.RecordFailure(1, older))
	assert.Equal(t, "BACKEND_UNREACHABLE", store.View().Failure.Code)

	// A commit clears the failure state
	require.True(t, store.Publish(snapshotAt(2)))
	view = store.View()
	assert.False(t, view.Loading)
	assert.Nil(t, view.Failure)
	assert.False(t, view.Errored())

	// Failures after the first commit are ignored
	assert.False(t, store.RecordFailure(3, failure))
	assert.Nil(t, store.View().Failure)
}

func TestSnapshotStore_SubscribeReceivesCommits(t *testing.T) {
	store := newTestStore()
	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()

	require.True(t, store.Publish(snapshotAt(1)))

	select {
	case state := <-updates:
		require.NotNil(t, state.Snapshot)
		assert.Equal(t, uint64(1), state.Snapshot.Sequence)
		assert.False(t, state.Loading)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive snapshot")
	}

	// Rejected snapshots are not delivered
	store.Publish(snapshotAt(1))
	select {
	case state := <-updates:
		t.Fatalf("unexpected delivery of sequence %d", state.Snapshot.Sequence)
	default:
	}
}

func TestSnapshotStore_SubscribeReceivesFailure(t *testing.T) {
	store := newTestStore()
	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()

	failure := &types.FieldFailure{Category: "transport", Code: "BACKEND_UNREACHABLE"}
	require.True(t, store.RecordFailure(1, failure))

	select {
	case state := <-updates:
		assert.True(t, state.Errored())
		assert.Equal(t, failure, state.Failure)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive failure state")
	}

	// Ignored failures are not delivered
	require.False(t, store.RecordFailure(1, failure))
	select {
	case <-updates:
		t.Fatal("unexpected delivery for ignored failure")
	default:
	}
}

func TestSnapshotStore_SlowSubscriberSeesLatest(t *testing.T) {
	store := newTestStore()
	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()

	for seq := uint64(1); seq <= 10; seq++ {
		require.True(t, store.Publish(snapshotAt(seq)))
	}

	state := <-updates
	assert.Equal(t, uint64(10), state.Snapshot.Sequence)
	select {
	case extra := <-updates:
		t.Fatalf("expected one pending snapshot, got another: %d", extra.Snapshot.Sequence)
	default:
	}
}

func TestSnapshotStore_Unsubscribe(t *testing.T) {
	store := newTestStore()
	updates, unsubscribe := store.Subscribe()
	assert.Equal(t, 1, store.SubscriberCount())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, store.SubscriberCount())

	_, ok := <-updates
	assert.False(t, ok, "channel should be closed after unsubscribe")

	assert.True(t, store.Publish(snapshotAt(1)))
}

func TestSnapshotStore_Close(t *testing.T) {
	store := newTestStore()
	first, _ := store.Subscribe()
	second, _ := store.Subscribe()

	store.Close()
	_, ok := <-first
	assert.False(t, ok)
	_, ok = <-second
	assert.False(t, ok)

	late, unsubscribe := store.Subscribe()
	unsubscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing after close returns a closed channel")

	assert.True(t, store.Publish(snapshotAt(1)))
	assert.Equal(t, uint64(1), store.Current().Sequence)
}

func TestSnapshotStore_ConcurrentPublish(t *testing.T) {
	store := newTestStore()
	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()

	var wg sync.WaitGroup
	for seq := uint64(1); seq <= 50; seq++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			store.Publish(snapshotAt(seq))
		}(seq)
	}

	done := make(chan struct{})
	var received []uint64
	go func() {
		defer close(done)
		for state := range updates {
			received = append(received, state.Snapshot.Sequence)
			if state.Snapshot.Sequence == 50 {
				return
			}
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never saw the highest sequence")
	}

	assert.Equal(t, uint64(50), store.Current().Sequence)
	for i := 1; i < len(received); i++ {
		assert.Greater(t, received[i], received[i-1], "deliveries must be strictly increasing")
	}
}

// The committed sequence only ever grows, whatever order snapshots arrive in.
func TestSnapshotStore_MonotonicCommitProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("committed sequence is the running maximum", prop.ForAll(
		func(seqs []uint64) bool {
			store := newTestStore()
			var highest uint64
			committed := false

			for _, seq := range seqs {
				accepted := store.Publish(snapshotAt(seq))
				shouldAccept := !committed || seq > highest
				if accepted != shouldAccept {
					return false
				}
				if accepted {
					highest = seq
					committed = true
				}
				current := store.Current()
				if committed && (current == nil || current.Sequence != highest) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt64Range(0, 40)),
	))

	properties.TestingRun(t)
}
