// Package session tracks active client sessions across both transports.
//
// The Tracker owns the one mutable structure shared across connections. A
// single mutex serializes register and unregister against the state-machine
// transitions, so Stop can never race a late Register.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	srverrors "github.com/wagiedev/analytics-mcp/internal/errors"
	"github.com/wagiedev/analytics-mcp/internal/telemetry"
)

// Kind identifies the transport a session belongs to. A session keeps its
// kind for its entire lifetime; no session migrates transports.
type Kind string

const (
	// KindStreamable marks a session on the streamable HTTP transport.
	KindStreamable Kind = "streamable"

	// KindSSE marks a session on the legacy SSE transport.
	KindSSE Kind = "sse"
)

// Session is one tracked client connection.
type Session struct {
	ID         string
	Kind       Kind
	RemoteAddr string
	UserAgent  string
	CreatedAt  time.Time
}

// State is the tracker lifecycle state. Transitions are one-directional:
// idle → accepting → draining → stopped, with no re-entry after stopped.
type State int

const (
	StateIdle State = iota
	StateAccepting
	StateDraining
	StateStopped
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccepting:
		return "accepting"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Tracker owns the set of active sessions.
type Tracker struct {
	log *slog.Logger
	obs *telemetry.Observer

	mu       sync.Mutex
	state    State
	sessions map[string]Session
}

// New creates an idle Tracker. The observer may be nil.
func New(log *slog.Logger, obs *telemetry.Observer) *Tracker {
	return &Tracker{
		log:      log.With("component", "session-tracker"),
		obs:      obs,
		sessions: make(map[string]Session, 16),
	}
}

// Start transitions the tracker to the accepting state. It is idempotent
// while accepting and fails with ErrTrackerStopped once the tracker has been
// stopped (or is draining).
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateIdle:
		t.state = StateAccepting
		t.log.Debug("tracker accepting sessions")
		return nil
	case StateAccepting:
		return nil
	default:
		return srverrors.ErrTrackerStopped
	}
}

// Register adds a session. It fails unless the tracker is accepting, and
// rejects duplicate session ids.
func (t *Tracker) Register(s Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateAccepting {
		return srverrors.ErrTrackerNotAccepting
	}
	if _, exists := t.sessions[s.ID]; exists {
		return srverrors.ErrSessionExists
	}

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	t.sessions[s.ID] = s
	t.obs.SessionOpened(context.Background(), string(s.Kind))
	t.log.Info("session registered",
		"session_id", s.ID,
		"transport", string(s.Kind),
		"remote", s.RemoteAddr,
		"active", len(t.sessions),
	)

	return nil
}

// Unregister removes a session. Removing an absent id is a no-op: connection
// teardown can race an explicit unregister, and duplicate close notifications
// must be safe.
func (t *Tracker) Unregister(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, exists := t.sessions[id]
	if !exists {
		return
	}

	delete(t.sessions, id)
	t.obs.SessionClosed(context.Background(), string(s.Kind))
	t.log.Info("session unregistered",
		"session_id", id,
		"transport", string(s.Kind),
		"lifetime", time.Since(s.CreatedAt).String(),
		"active", len(t.sessions),
	)
}

// Stop drains and stops the tracker: every remaining session is forcibly
// unregistered and subsequent Register calls fail. Stop is idempotent.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateStopped {
		return
	}

	t.state = StateDraining
	for id, s := range t.sessions {
		delete(t.sessions, id)
		t.obs.SessionClosed(context.Background(), string(s.Kind))
		t.log.Info("session evicted at shutdown",
			"session_id", id,
			"transport", string(s.Kind),
			"lifetime", time.Since(s.CreatedAt).String(),
		)
	}
	t.state = StateStopped
	t.log.Debug("tracker stopped")
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Count returns the number of active sessions.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.sessions)
}

// Sessions returns a snapshot of the active sessions, oldest first.
func (t *Tracker) Sessions() []Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}
