package banter

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a session
type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Session is a time-bounded engagement unit for a single subject.
// A session is created Active, transitions exactly once to Completed or
// Cancelled, and is immutable afterward.
type Session struct {
	ID          string
	SubjectID   int64
	SubjectName string
	ChatID      int64
	StartTime   time.Time
	Deadline    time.Time

	mu    sync.Mutex
	state State

	done     chan struct{}
	doneOnce sync.Once
}

func newSession(subjectID int64, subjectName string, chatID int64, start, deadline time.Time) *Session {
	return &Session{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		SubjectName: subjectName,
		ChatID:      chatID,
		StartTime:   start,
		Deadline:    deadline,
		state:       StateActive,
		done:        make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done returns a channel that is closed when the session is cancelled.
// The scheduler task selects on it at every wait point.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// finalize performs the single Active -> terminal transition.
// Returns false if the session already left the Active state.
func (s *Session) finalize(terminal State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.state = terminal
	return true
}

// signalCancel wakes the owning scheduler task. Idempotent.
func (s *Session) signalCancel() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Remaining returns the time left until the deadline as measured at now
func (s *Session) Remaining(now time.Time) time.Duration {
	return s.Deadline.Sub(now)
}
