package server

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/session"
)

// SessionView is the API representation of a tracked session.
type SessionView struct {
	session.Report
	Created time.Time            `json:"created"`
	Outputs map[string]any       `json:"outputs,omitempty"`
	Error   *apperrors.ErrorBody `json:"error,omitempty"`
}

type trackedSession struct {
	session *session.Session
	created time.Time
	done    chan struct{}

	mu  sync.Mutex
	err error
}

func (ts *trackedSession) finish(err error) {
	ts.mu.Lock()
	ts.err = err
	ts.mu.Unlock()
	close(ts.done)
}

func (ts *trackedSession) finished() bool {
	select {
	case <-ts.done:
		return true
	default:
		return false
	}
}

func (ts *trackedSession) view() SessionView {
	v := SessionView{Report: ts.session.Report(), Created: ts.created}
	if !ts.finished() {
		return v
	}
	if outputs := ts.session.Outputs(); len(outputs) > 0 {
		v.Outputs = outputs
	}
	ts.mu.Lock()
	err := ts.err
	ts.mu.Unlock()
	if err != nil {
		body := apperrors.Wrap(err).ToResponse().Error
		v.Error = &body
	}
	return v
}

// Tracker keeps the most recent sessions started through the API. Once
// more than max sessions are tracked, the oldest finished ones are dropped;
// running sessions are never evicted.
type Tracker struct {
	mu       sync.RWMutex
	max      int
	sessions map[uuid.UUID]*trackedSession
	order    []uuid.UUID
}

// NewTracker creates a tracker retaining up to max sessions.
func NewTracker(max int) *Tracker {
	return &Tracker{max: max, sessions: make(map[uuid.UUID]*trackedSession)}
}

func (t *Tracker) add(s *session.Session) *trackedSession {
	ts := &trackedSession{session: s, created: time.Now().UTC(), done: make(chan struct{})}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[s.ID()] = ts
	t.order = append(t.order, s.ID())
	t.evict()
	return ts
}

func (t *Tracker) evict() {
	for i := 0; len(t.order) > t.max && i < len(t.order); {
		id := t.order[i]
		if !t.sessions[id].finished() {
			i++
			continue
		}
		delete(t.sessions, id)
		t.order = slices.Delete(t.order, i, i+1)
	}
}

func (t *Tracker) get(id uuid.UUID) (*trackedSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.sessions[id]
	return ts, ok
}

func (t *Tracker) list() []*trackedSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*trackedSession, len(t.order))
	for i, id := range t.order {
		out[i] = t.sessions[id]
	}
	return out
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}
