package session

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	srverrors "github.com/wagiedev/analytics-mcp/internal/errors"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()

	return New(slog.Default(), nil)
}

// TestTracker_StateMachine tests the one-directional lifecycle.
func TestTracker_StateMachine(t *testing.T) {
	tracker := newTestTracker(t)
	require.Equal(t, StateIdle, tracker.State())

	require.NoError(t, tracker.Start())
	require.Equal(t, StateAccepting, tracker.State())

	// Idempotent while accepting.
	require.NoError(t, tracker.Start())

	tracker.Stop()
	require.Equal(t, StateStopped, tracker.State())

	// No re-entry after stopped.
	require.ErrorIs(t, tracker.Start(), srverrors.ErrTrackerStopped)

	// Stop stays idempotent.
	tracker.Stop()
	require.Equal(t, StateStopped, tracker.State())
}

// TestTracker_RegisterRequiresAccepting tests registration gating in every state.
func TestTracker_RegisterRequiresAccepting(t *testing.T) {
	tracker := newTestTracker(t)
	s := Session{ID: "s1", Kind: KindSSE}

	require.ErrorIs(t, tracker.Register(s), srverrors.ErrTrackerNotAccepting)

	require.NoError(t, tracker.Start())
	require.NoError(t, tracker.Register(s))
	require.ErrorIs(t, tracker.Register(s), srverrors.ErrSessionExists)

	tracker.Stop()
	require.ErrorIs(t, tracker.Register(Session{ID: "s2", Kind: KindSSE}), srverrors.ErrTrackerNotAccepting)
}

// TestTracker_CountInvariant tests that after N concurrent connects and M
// disconnects the tracker reports exactly N-M active sessions.
func TestTracker_CountInvariant(t *testing.T) {
	const n = 64
	const m = 40

	tracker := newTestTracker(t)
	require.NoError(t, tracker.Start())

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := KindStreamable
			if i%2 == 0 {
				kind = KindSSE
			}
			require.NoError(t, tracker.Register(Session{ID: fmt.Sprintf("s%d", i), Kind: kind}))
		}(i)
	}
	wg.Wait()
	require.Equal(t, n, tracker.Count())

	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tracker.Unregister(fmt.Sprintf("s%d", i))
		}(i)
	}
	wg.Wait()
	require.Equal(t, n-m, tracker.Count())

	tracker.Stop()
	require.Equal(t, 0, tracker.Count())
}

// TestTracker_UnregisterIdempotent tests that duplicate unregister calls are
// safe and leave the count unchanged after the first.
func TestTracker_UnregisterIdempotent(t *testing.T) {
	tracker := newTestTracker(t)
	require.NoError(t, tracker.Start())

	require.NoError(t, tracker.Register(Session{ID: "a", Kind: KindStreamable}))
	require.NoError(t, tracker.Register(Session{ID: "b", Kind: KindSSE}))

	tracker.Unregister("a")
	require.Equal(t, 1, tracker.Count())
	tracker.Unregister("a")
	require.Equal(t, 1, tracker.Count())

	// Unknown ids are also a no-op.
	tracker.Unregister("never-existed")
	require.Equal(t, 1, tracker.Count())
}

// TestTracker_Sessions tests the snapshot accessor ordering and isolation.
func TestTracker_Sessions(t *testing.T) {
	tracker := newTestTracker(t)
	require.NoError(t, tracker.Start())

	base := time.Now()
	require.NoError(t, tracker.Register(Session{ID: "newer", Kind: KindSSE, CreatedAt: base.Add(time.Second)}))
	require.NoError(t, tracker.Register(Session{ID: "older", Kind: KindStreamable, CreatedAt: base}))

	sessions := tracker.Sessions()
	require.Len(t, sessions, 2)
	require.Equal(t, "older", sessions[0].ID)
	require.Equal(t, "newer", sessions[1].ID)

	// Mutating the snapshot must not touch tracker state.
	sessions[0].ID = "mutated"
	require.Equal(t, "older", tracker.Sessions()[0].ID)
}

// TestTracker_StopCannotRaceRegister tests that registrations concurrent with
// Stop either land before the drain (and get evicted) or fail; the tracker
// never ends up stopped with live sessions.
func TestTracker_StopCannotRaceRegister(t *testing.T) {
	tracker := newTestTracker(t)
	require.NoError(t, tracker.Start())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = tracker.Register(Session{ID: fmt.Sprintf("s%d", i), Kind: KindSSE})
		}(i)
	}
	tracker.Stop()
	wg.Wait()

	require.Equal(t, StateStopped, tracker.State())
	require.Equal(t, 0, tracker.Count())
}
