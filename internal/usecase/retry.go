package usecase

import (
	"context"
	"log/slog"
	"time"

	"MailchimpPublisher/internal/domain"
)

const (
	defaultMaxAttempts = 4
	defaultRetryDelay  = 2 * time.Second
)

// SleepFunc waits for d, returning early with an error when ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the wall-clock SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DeleteFunc removes one provider resource by id.
type DeleteFunc func(ctx context.Context, id string) error

// RetryOptions tunes DeletionRetrier; zero values fall back to 4 attempts, 2s apart.
type RetryOptions struct {
	MaxAttempts int
	Delay       time.Duration
	Sleep       SleepFunc
	Logger      *slog.Logger
}

// DeletionRetrier deletes provider resources with a bounded number of fixed-delay attempts.
// Exhaustion is logged, never returned: a leaked resource is reclaimed by the sweep.
type DeletionRetrier struct {
	maxAttempts int
	delay       time.Duration
	sleep       SleepFunc
	logger      *slog.Logger
}

// NewDeletionRetrier applies defaults to opts.
func NewDeletionRetrier(opts RetryOptions) *DeletionRetrier {
	r := &DeletionRetrier{
		maxAttempts: opts.MaxAttempts,
		delay:       opts.Delay,
		sleep:       opts.Sleep,
		logger:      opts.Logger,
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.delay <= 0 {
		r.delay = defaultRetryDelay
	}
	if r.sleep == nil {
		r.sleep = ContextSleep
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r
}

// Delete calls del at most MaxAttempts times and reports whether the resource is gone.
func (r *DeletionRetrier) Delete(ctx context.Context, kind domain.ResourceKind, id string, del DeleteFunc) bool {
	for attempt := 1; ; attempt++ {
		err := del(ctx, id)
		if err == nil {
			r.logger.Debug("provider resource deleted", "kind", kind, "id", id, "attempt", attempt)
			return true
		}

		if attempt >= r.maxAttempts {
			r.logger.Error("giving up deleting provider resource",
				"kind", kind, "id", id, "attempts", attempt, "error", err)
			return false
		}

		r.logger.Warn("deleting provider resource failed, retrying",
			"kind", kind, "id", id, "attempt", attempt, "delay", r.delay, "error", err)
		if sleepErr := r.sleep(ctx, r.delay); sleepErr != nil {
			r.logger.Error("deletion retry interrupted",
				"kind", kind, "id", id, "attempts", attempt, "error", sleepErr)
			return false
		}
	}
}
