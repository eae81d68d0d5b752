package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"MailchimpPublisher/internal/config"
	"MailchimpPublisher/internal/infrastructure/lock"
	"MailchimpPublisher/internal/infrastructure/mailchimp"
	"MailchimpPublisher/internal/infrastructure/render"
	"MailchimpPublisher/internal/infrastructure/scheduler"
	"MailchimpPublisher/internal/infrastructure/sparql"
	"MailchimpPublisher/internal/infrastructure/storage"
	"MailchimpPublisher/internal/infrastructure/telegram"
	"MailchimpPublisher/internal/logging"
	"MailchimpPublisher/internal/ports"
	"MailchimpPublisher/internal/transport/httpapi"
	"MailchimpPublisher/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	processor *usecase.TaskProcessor
	sweep     *usecase.Sweep
	scheduler *usecase.Scheduler
	closers   []func() error
}

// New builds the adapters selected by cfg and the use cases on top of them.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	repository, err := a.newRepository(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	renderer, err := render.NewRenderer(render.Options{
		Creators:  cfg.Render.Creators,
		Templates: cfg.Render.Templates,
		Location:  cfg.Render.Location(),
		Logger:    baseLogger.With("component", "render"),
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build renderer: %w", err)
	}

	service := mailchimp.NewClient(mailchimp.Options{
		DataCenter:        cfg.Mailchimp.DataCenter(),
		APIKey:            cfg.Mailchimp.APIKey,
		ListID:            cfg.Mailchimp.ListID,
		PageSize:          cfg.Mailchimp.PageSize,
		RequestsPerSecond: cfg.Mailchimp.RequestsPerSecond,
		Timeout:           cfg.Mailchimp.Timeout,
	})

	retrier := usecase.NewDeletionRetrier(usecase.RetryOptions{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay,
		Logger:      baseLogger.With("component", "retry"),
	})

	var locker ports.Locker
	if cfg.Lock.Enabled() {
		rdb := lock.NewRedisClient(cfg.Lock.RedisAddress)
		a.closers = append(a.closers, rdb.Close)
		locker = lock.NewRedisLocker(rdb, cfg.Lock.TTL, baseLogger.With("component", "lock"))
	}

	var notifier ports.FailureNotifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Repository: repository,
		Service:    service,
		Renderer:   renderer,
		Audience: usecase.NewAudienceBuilder(service, usecase.AudienceConfig{
			ThemeCategoryID: cfg.Mailchimp.InterestCategoryID,
			KindCategoryID:  cfg.Mailchimp.KindCategoryID,
			KindLabels:      cfg.Publication.KindLabels,
		}, baseLogger.With("component", "audience")),
		Retrier: retrier,
		Settings: usecase.CampaignSettings{
			ListID:   cfg.Mailchimp.ListID,
			FromName: cfg.Mailchimp.FromName,
			ReplyTo:  cfg.Mailchimp.ReplyTo,
		},
		Logger: baseLogger.With("component", "pipeline"),
	})

	a.processor = usecase.NewTaskProcessor(usecase.TaskProcessorDeps{
		Repository: repository,
		Publisher:  pipeline,
		Notifier:   notifier,
		Locker:     locker,
		LockKey:    cfg.Lock.Key,
		Channel:    cfg.Publication.Channel,
		Logger:     baseLogger.With("component", "tasks"),
	})

	a.sweep = usecase.NewSweep(usecase.SweepDeps{
		Service: service,
		Retrier: retrier,
		Locker:  locker,
		LockKey: cfg.Lock.Key,
		Logger:  baseLogger.With("component", "sweep"),
	})

	if cfg.Sweep.Interval > 0 {
		a.scheduler = usecase.NewScheduler(
			scheduler.NewIntervalScheduler(cfg.Sweep.Interval, false),
			a.sweep,
			baseLogger.With("component", "scheduler"),
		)
	}

	return a, nil
}

func (a *Application) newRepository(ctx context.Context) (ports.TaskRepository, error) {
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := sql.Open("postgres", a.cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		repo := storage.NewPostgresRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	default:
		client := sparql.NewClient(a.cfg.Store.SPARQLEndpoint, nil)
		return sparql.NewRepository(client, a.cfg.Store.PublicGraph, a.cfg.Publication.Channel), nil
	}
}

// Publish claims and processes the pending tasks once.
func (a *Application) Publish(ctx context.Context) (int, error) {
	return a.processor.Run(ctx)
}

// Cleanup runs the sweep once.
func (a *Application) Cleanup(ctx context.Context) (usecase.SweepReport, error) {
	return a.sweep.Cleanup(ctx)
}

// Serve runs the trigger API and the optional sweep schedule until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	api := httpapi.NewServer(ctx, a.processor, a.sweep, a.logger.With("component", "http"))
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.scheduler != nil {
		if err := a.scheduler.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		a.logger.Info("cleanup sweep scheduled", "interval", a.cfg.Sweep.Interval)
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		api.Wait()
		if a.scheduler != nil {
			err = errors.Join(err, a.scheduler.Stop(shutdownCtx))
		}
		return err
	})

	return g.Wait()
}

// Close releases database and Redis connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
