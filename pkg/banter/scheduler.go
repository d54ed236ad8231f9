package banter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrDestinationGone marks a delivery failure meaning the destination no
// longer exists (chat deleted, bot blocked or kicked). The messenger wraps
// such failures with it; the scheduler reacts by cancelling the session.
var ErrDestinationGone = errors.New("delivery destination gone")

// Delivery kinds reported to the Observer.
const (
	DeliveryInitial   = "initial"
	DeliveryScheduled = "scheduled"
	DeliveryReply     = "reply"
)

// Messenger delivers a banter message and returns the platform message id
type Messenger interface {
	SendBanter(chatID int64, subjectID int64, subjectName, text string) (int, error)
}

// Generator produces the text for a scheduled banter message. May fail;
// the scheduler substitutes FallbackText and continues.
type Generator interface {
	Banter(ctx context.Context, subjectName string) (string, error)
}

// Observer receives session lifecycle notifications. All methods are called
// from scheduler goroutines and must not block.
type Observer interface {
	SessionScheduled(session *Session, messageCount int)
	MessageDelivered(session *Session, messageID int, kind string)
	GenerationFailed(session *Session)
	DeliveryFailed(session *Session)
	SessionFinished(session *Session, state State)
}

// NopObserver is an Observer that ignores everything
type NopObserver struct{}

func (NopObserver) SessionScheduled(*Session, int)         {}
func (NopObserver) MessageDelivered(*Session, int, string) {}
func (NopObserver) GenerationFailed(*Session)              {}
func (NopObserver) DeliveryFailed(*Session)                {}
func (NopObserver) SessionFinished(*Session, State)        {}

// FallbackText is the deterministic substitute used whenever generation
// fails mid-session.
func FallbackText(subjectName string) string {
	return fmt.Sprintf("Oi %s, consider yourself lucky - my insult generator's knackered today.", subjectName)
}

// SchedulerConfig configures a Scheduler
type SchedulerConfig struct {
	Registry   *Registry
	Correlator *Correlator
	Messenger  Messenger
	Generator  Generator
	Observer   Observer
	Logger     zerolog.Logger

	// Inclusive bounds for the per-session message count. Defaults: 2 and 5.
	MinMessages int
	MaxMessages int

	// Test seams. Defaults: math/rand globals, time.After, time.Now.
	RandInt   func(n int) int
	RandFloat func() float64
	After     func(d time.Duration) <-chan time.Time
	Now       func() time.Time
}

// Scheduler drives the randomized timeline of sessions. One goroutine per
// active session; the registry's uniqueness invariant guarantees no two
// tasks ever run for the same subject.
type Scheduler struct {
	registry   *Registry
	correlator *Correlator
	messenger  Messenger
	generator  Generator
	observer   Observer
	logger     zerolog.Logger

	minMessages int
	maxMessages int

	randInt   func(n int) int
	randFloat func() float64
	after     func(d time.Duration) <-chan time.Time
	now       func() time.Time

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler, filling config defaults
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Correlator == nil {
		return nil, fmt.Errorf("correlator is required")
	}
	if cfg.Messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.MinMessages == 0 {
		cfg.MinMessages = 2
	}
	if cfg.MaxMessages == 0 {
		cfg.MaxMessages = 5
	}
	if cfg.MinMessages < 1 || cfg.MaxMessages < cfg.MinMessages {
		return nil, fmt.Errorf("invalid message count bounds [%d, %d]", cfg.MinMessages, cfg.MaxMessages)
	}
	if cfg.RandInt == nil {
		cfg.RandInt = rand.Intn
	}
	if cfg.RandFloat == nil {
		cfg.RandFloat = rand.Float64
	}
	if cfg.After == nil {
		cfg.After = time.After
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Scheduler{
		registry:    cfg.Registry,
		correlator:  cfg.Correlator,
		messenger:   cfg.Messenger,
		generator:   cfg.Generator,
		observer:    cfg.Observer,
		logger:      cfg.Logger.With().Str("component", "scheduler").Logger(),
		minMessages: cfg.MinMessages,
		maxMessages: cfg.MaxMessages,
		randInt:     cfg.RandInt,
		randFloat:   cfg.RandFloat,
		after:       cfg.After,
		now:         cfg.Now,
	}, nil
}

// Plan draws the randomized timeline for one session: a message count
// uniform in [min, max] and that many offsets uniform in [0, remaining],
// sorted ascending. Ties are permitted.
func (s *Scheduler) Plan(remaining time.Duration) []time.Duration {
	count := s.minMessages + s.randInt(s.maxMessages-s.minMessages+1)

	offsets := make([]time.Duration, count)
	for i := range offsets {
		offsets[i] = time.Duration(s.randFloat() * float64(remaining))
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets
}

// Start launches the scheduler task owning the session's timeline
func (s *Scheduler) Start(ctx context.Context, session *Session) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, session)
	}()
}

// Wait blocks until all scheduler tasks have finished or the timeout
// elapses; it reports whether they all finished in time.
func (s *Scheduler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Scheduler) run(ctx context.Context, session *Session) {
	logger := s.logger.With().
		Str("session_id", session.ID).
		Int64("subject_id", session.SubjectID).
		Str("subject", session.SubjectName).
		Logger()

	remaining := session.Remaining(s.now())
	if remaining <= 0 {
		// The deadline passed between creation and start; the initial
		// message already went out, nothing left to schedule.
		s.finish(session, StateCompleted, logger)
		return
	}

	offsets := s.Plan(remaining)
	s.observer.SessionScheduled(session, len(offsets))
	logger.Info().
		Int("messages", len(offsets)).
		Dur("remaining", remaining).
		Msg("Session timeline planned")

	for _, offset := range offsets {
		wait := session.StartTime.Add(offset).Sub(s.now())
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			s.finish(session, StateCancelled, logger)
			return
		case <-session.Done():
			s.finish(session, StateCancelled, logger)
			return
		case <-s.after(wait):
		}

		// A cancellation that raced the timer must win: no delivery may
		// happen after the cancellation was signalled.
		select {
		case <-ctx.Done():
			s.finish(session, StateCancelled, logger)
			return
		case <-session.Done():
			s.finish(session, StateCancelled, logger)
			return
		default:
		}

		if current, ok := s.registry.Get(session.SubjectID); !ok || current != session {
			logger.Debug().Msg("Session no longer registered, stopping timeline")
			s.finish(session, StateCancelled, logger)
			return
		}

		if !s.deliver(ctx, session, logger) {
			s.finish(session, StateCancelled, logger)
			return
		}
	}

	s.finish(session, StateCompleted, logger)
}

// deliver sends one scheduled message. Returns false only when the
// destination is gone and the session must cancel early.
func (s *Scheduler) deliver(ctx context.Context, session *Session, logger zerolog.Logger) bool {
	text, err := s.generator.Banter(ctx, session.SubjectName)
	if err != nil {
		logger.Warn().Err(err).Msg("Generation failed, using fallback text")
		s.observer.GenerationFailed(session)
		text = FallbackText(session.SubjectName)
	}

	messageID, err := s.messenger.SendBanter(session.ChatID, session.SubjectID, session.SubjectName, text)
	if err != nil {
		s.observer.DeliveryFailed(session)
		if errors.Is(err, ErrDestinationGone) {
			logger.Warn().Err(err).Msg("Destination gone, cancelling session")
			return false
		}
		// Delivery skipped this iteration; the timeline continues.
		logger.Error().Err(err).Msg("Delivery failed")
		return true
	}

	s.correlator.Record(session, session.ChatID, messageID)
	s.observer.MessageDelivered(session, messageID, DeliveryScheduled)
	logger.Debug().Int("message_id", messageID).Msg("Scheduled banter delivered")
	return true
}

// finish performs the terminal transition and removes the session from the
// registry. Runs exactly once per scheduler task.
func (s *Scheduler) finish(session *Session, terminal State, logger zerolog.Logger) {
	session.finalize(terminal)
	s.registry.removeExact(session)

	state := session.State()
	s.observer.SessionFinished(session, state)
	logger.Info().Str("state", string(state)).Msg("Session finished")
}
