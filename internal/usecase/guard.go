package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"MailchimpPublisher/internal/ports"
)

// ErrBusy is returned when another publish batch or sweep holds the run lock.
var ErrBusy = errors.New("another publication run is in progress")

// runGuard serializes batches and sweeps through an optional Locker.
type runGuard struct {
	locker ports.Locker
	key    string
	logger *slog.Logger
}

// acquire returns a release func that is always safe to call.
// Lock backend failures other than contention are logged and the run proceeds unlocked.
func (g runGuard) acquire(ctx context.Context) (func(), error) {
	if g.locker == nil {
		return func() {}, nil
	}

	release, err := g.locker.Acquire(ctx, g.key)
	switch {
	case errors.Is(err, ports.ErrLockNotObtained):
		return nil, fmt.Errorf("%w: lock %s is held", ErrBusy, g.key)
	case err != nil:
		g.logger.Warn("run lock unavailable; proceeding without lock", "key", g.key, "error", err)
		return func() {}, nil
	}

	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			g.logger.Warn("failed to release run lock", "key", g.key, "error", err)
		}
	}, nil
}
