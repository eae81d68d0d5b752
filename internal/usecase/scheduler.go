package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"MailchimpPublisher/internal/ports"
)

// Scheduler wires the interval driver with the cleanup sweep.
type Scheduler struct {
	driver ports.Scheduler
	sweep  *Sweep
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop the recurring sweep.
func NewScheduler(driver ports.Scheduler, sweep *Sweep, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, sweep: sweep, logger: logger}
}

// Start registers the sweep with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.sweep == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if _, err := s.sweep.Cleanup(ctx); err != nil {
			if errors.Is(err, ErrBusy) {
				s.logger.Info("scheduled cleanup skipped, run in progress", "trigger", trigger)
				return
			}
			s.logger.Error("scheduled cleanup failed", "trigger", trigger, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
