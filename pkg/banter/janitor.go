package banter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultJanitorSchedule prunes once a day just after midnight, when every
// session from the previous day has hit its deadline.
const DefaultJanitorSchedule = "5 0 * * *"

// Janitor periodically drops correlator entries left behind by finished
// sessions. Entries survive until the next sweep so replies already in
// flight when a session ended still resolve.
type Janitor struct {
	correlator *Correlator
	schedule   cron.Schedule
	logger     zerolog.Logger

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time

	wg sync.WaitGroup
}

// NewJanitor creates a janitor from a 5-field cron expression
func NewJanitor(correlator *Correlator, expr string, logger zerolog.Logger) (*Janitor, error) {
	if expr == "" {
		expr = DefaultJanitorSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", expr, err)
	}

	return &Janitor{
		correlator: correlator,
		schedule:   schedule,
		logger:     logger.With().Str("component", "janitor").Logger(),
		now:        time.Now,
		after:      time.After,
	}, nil
}

// Start runs the sweep loop until the context is cancelled
func (j *Janitor) Start(ctx context.Context) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop(ctx)
	}()
	j.logger.Info().Msg("Janitor started")
}

// Wait blocks until the sweep loop has exited
func (j *Janitor) Wait() {
	j.wg.Wait()
}

func (j *Janitor) loop(ctx context.Context) {
	for {
		next := j.schedule.Next(j.now())
		select {
		case <-ctx.Done():
			return
		case <-j.after(next.Sub(j.now())):
			removed := j.correlator.PruneFinished()
			j.logger.Info().Int("removed", removed).Msg("Correlator sweep complete")
		}
	}
}
