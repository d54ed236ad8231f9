package banter

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrAlreadyActive is returned by Create when the subject already has
	// an active session.
	ErrAlreadyActive = errors.New("session already active for subject")

	// ErrShuttingDown is returned by Create once the registry has been
	// closed to new sessions.
	ErrShuttingDown = errors.New("registry closed to new sessions")

	// ErrPastDeadline is returned by Create when the requested deadline
	// does not lie in the future.
	ErrPastDeadline = errors.New("deadline must be after the start time")
)

// Registry holds the active session per subject. It is the single piece of
// shared mutable state; every mutation is an atomic check-and-act under one
// lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	closed   bool
	logger   zerolog.Logger

	now func() time.Time
}

// NewRegistry creates an empty session registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		logger:   logger.With().Str("component", "registry").Logger(),
		now:      time.Now,
	}
}

// Create atomically inserts a new active session for the subject.
// Fails with ErrAlreadyActive if one exists, ErrShuttingDown after Close,
// and ErrPastDeadline if deadline is not after now.
func (r *Registry) Create(subjectID int64, subjectName string, chatID int64, deadline time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrShuttingDown
	}
	if _, exists := r.sessions[subjectID]; exists {
		return nil, ErrAlreadyActive
	}

	start := r.now()
	if !deadline.After(start) {
		return nil, ErrPastDeadline
	}

	session := newSession(subjectID, subjectName, chatID, start, deadline)
	r.sessions[subjectID] = session

	r.logger.Info().
		Str("session_id", session.ID).
		Int64("subject_id", subjectID).
		Str("subject", subjectName).
		Time("deadline", deadline).
		Msg("Session created")

	return session, nil
}

// Get returns the active session for the subject, if any
func (r *Registry) Get(subjectID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[subjectID]
	return s, ok
}

// Remove deletes the subject's session from the registry. Idempotent.
func (r *Registry) Remove(subjectID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, subjectID)
}

// removeExact deletes the entry only if it still maps to the given session.
// The scheduler uses it so a finished task never evicts a successor.
func (r *Registry) removeExact(session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[session.SubjectID]; ok && cur == session {
		delete(r.sessions, session.SubjectID)
	}
}

// Cancel marks the subject's session cancelled, signals its scheduler task
// and removes it from the registry. Returns whether a session existed.
func (r *Registry) Cancel(subjectID int64) bool {
	r.mu.Lock()
	session, ok := r.sessions[subjectID]
	if ok {
		delete(r.sessions, subjectID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	session.finalize(StateCancelled)
	session.signalCancel()

	r.logger.Info().
		Str("session_id", session.ID).
		Int64("subject_id", subjectID).
		Msg("Session cancelled")

	return true
}

// CancelAll cancels every active session and returns how many were cancelled
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.finalize(StateCancelled)
		s.signalCancel()
	}

	if len(sessions) > 0 {
		r.logger.Info().Int("count", len(sessions)).Msg("All sessions cancelled")
	}
	return len(sessions)
}

// Close stops the registry from accepting new sessions. Existing sessions
// are unaffected; shutdown cancels them separately.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Active returns a snapshot of the currently active sessions
func (r *Registry) Active() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of active sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
