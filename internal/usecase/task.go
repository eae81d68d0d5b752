package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"MailchimpPublisher/internal/domain"
	"MailchimpPublisher/internal/ports"
)

// Publisher runs the provider side of one publication.
type Publisher interface {
	Publish(ctx context.Context, task domain.PublicationTask) error
}

// TaskProcessorDeps wires the state machine.
type TaskProcessorDeps struct {
	Repository ports.TaskRepository
	Publisher  Publisher
	Notifier   ports.FailureNotifier
	Locker     ports.Locker
	LockKey    string
	Channel    string
	Clock      func() time.Time
	Logger     *slog.Logger
}

// TaskProcessor drives publication tasks from NOT_STARTED to a terminal status.
type TaskProcessor struct {
	repository ports.TaskRepository
	publisher  Publisher
	notifier   ports.FailureNotifier
	guard      runGuard
	channel    string
	now        func() time.Time
	logger     *slog.Logger
}

// NewTaskProcessor constructs the processor.
func NewTaskProcessor(deps TaskProcessorDeps) *TaskProcessor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &TaskProcessor{
		repository: deps.Repository,
		publisher:  deps.Publisher,
		notifier:   deps.Notifier,
		guard:      runGuard{locker: deps.Locker, key: deps.LockKey, logger: logger},
		channel:    deps.Channel,
		now:        now,
		logger:     logger,
	}
}

// Batch is a set of tasks already moved to ONGOING, holding the run lock until processed.
type Batch struct {
	processor *TaskProcessor
	tasks     []domain.PublicationTask
	release   func()
}

// Len returns the number of claimed tasks.
func (b *Batch) Len() int {
	return len(b.tasks)
}

// Tasks returns a copy of the claimed tasks.
func (b *Batch) Tasks() []domain.PublicationTask {
	out := make([]domain.PublicationTask, len(b.tasks))
	copy(out, b.tasks)
	return out
}

// Process publishes every claimed task in order and releases the run lock.
// A started task always runs to a terminal status; cancellation of ctx is only observed
// between tasks. A status persistence failure or cancellation leaves the rest ONGOING.
func (b *Batch) Process(ctx context.Context) error {
	defer b.release()
	for i := range b.tasks {
		if err := ctx.Err(); err != nil {
			b.processor.logger.Warn("batch interrupted, remaining tasks stay ongoing",
				"remaining", len(b.tasks)-i, "error", err)
			return err
		}
		if err := b.processor.Process(context.WithoutCancel(ctx), &b.tasks[i]); err != nil {
			return err
		}
	}
	return nil
}

// Claim fetches the pending tasks and persists ONGOING for all of them before any
// provider call is made. Tasks claimed concurrently by another instance are skipped.
func (p *TaskProcessor) Claim(ctx context.Context) (*Batch, error) {
	release, err := p.guard.acquire(ctx)
	if err != nil {
		return nil, err
	}

	tasks, err := p.repository.FetchPendingTasks(ctx, p.channel)
	if err != nil {
		release()
		return nil, fmt.Errorf("fetch pending tasks: %w", err)
	}

	claimed := make([]domain.PublicationTask, 0, len(tasks))
	for i := range tasks {
		task := tasks[i]
		if err := p.persistStatus(ctx, &task, domain.StatusOngoing); err != nil {
			if errors.Is(err, domain.ErrStaleStatus) {
				p.logger.Warn("task claimed elsewhere, skipping", "task", task.ID)
				continue
			}
			release()
			return nil, err
		}
		claimed = append(claimed, task)
	}

	if len(claimed) > 0 {
		p.logger.Info("claimed publication tasks", "count", len(claimed))
	}
	return &Batch{processor: p, tasks: claimed, release: release}, nil
}

// Run claims and processes one batch synchronously, returning the number of tasks handled.
func (p *TaskProcessor) Run(ctx context.Context) (int, error) {
	batch, err := p.Claim(ctx)
	if err != nil {
		return 0, err
	}
	return batch.Len(), batch.Process(ctx)
}

// Process drives a NOT_STARTED or ONGOING task to a terminal status.
// Publish failures end in FAILED and are not returned; status persistence errors are.
func (p *TaskProcessor) Process(ctx context.Context, task *domain.PublicationTask) error {
	logger := p.logger.With("task", task.ID)

	if task.Status == domain.StatusNotStarted {
		if err := p.persistStatus(ctx, task, domain.StatusOngoing); err != nil {
			return err
		}
	}

	publishErr := p.publisher.Publish(ctx, *task)
	if publishErr == nil {
		if err := p.persistStatus(ctx, task, domain.StatusSuccess); err != nil {
			return err
		}
		logger.Info("press release published")
		return nil
	}

	var perr *domain.PublishError
	if errors.As(publishErr, &perr) {
		logger.Error("publication failed", "step", perr.Step, "error", perr.Err)
	} else {
		logger.Error("publication failed", "error", publishErr)
	}

	if err := p.persistStatus(context.WithoutCancel(ctx), task, domain.StatusFailed); err != nil {
		return err
	}

	if p.notifier != nil {
		if err := p.notifier.NotifyFailure(context.WithoutCancel(ctx), *task, publishErr); err != nil {
			logger.Warn("failure notification not delivered", "error", err)
		}
	}
	return nil
}

func (p *TaskProcessor) persistStatus(ctx context.Context, task *domain.PublicationTask, status domain.TaskStatus) error {
	if !task.Status.CanTransitionTo(status) {
		return fmt.Errorf("task %s: %w: %s -> %s", task.ID, domain.ErrInvalidTransition, task.Status, status)
	}

	at := p.now()
	if err := p.repository.PersistStatus(ctx, *task, status, at); err != nil {
		return fmt.Errorf("persist status %s for task %s: %w", status, task.ID, err)
	}
	return task.Transition(status, at)
}
