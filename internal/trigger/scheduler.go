// Package trigger implements the scheduled intake sweep: a cron entry scans
// an intake directory for new documents, runs them through the pipeline,
// writes redaction plans, and moves inputs to processed/ or failed/.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// sweepTimeout bounds one full sweep, not one document.
const sweepTimeout = 10 * time.Minute

// DocumentSweeper is the interface for running intake sweeps from the
// scheduler.
type DocumentSweeper interface {
	Sweep(ctx context.Context) error
}

// Scheduler manages cron-based intake sweeps.
type Scheduler struct {
	cron    *cron.Cron
	sweeper DocumentSweeper
}

// NewScheduler creates a scheduler backed by the given sweeper.
// Cron expressions use the standard 5-field format: minute hour day-of-month
// month day-of-week (e.g. "*/5 * * * *" for every five minutes). Do not use
// WithSeconds() so docs and configs match.
func NewScheduler(sweeper DocumentSweeper) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
	}
}

// Register adds the sweep cron entry.
func (s *Scheduler) Register(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		if err := s.sweeper.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("intake_sweep_failed")
		}
	})
	if err != nil {
		return fmt.Errorf("registering cron %q: %w", schedule, err)
	}
	return nil
}

// Start begins executing the registered cron entries.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered cron entries (for testing).
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
