package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"MailchimpPublisher/internal/app"
	"MailchimpPublisher/internal/config"
	"MailchimpPublisher/internal/logging"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mailchimp-publisher",
		Short:         "Publish press releases as Mailchimp campaigns",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file (defaults to $PUBLISHER_CONFIG)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the /delta and /cleanup trigger API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApplication(cmd.Context(), cmd.ErrOrStderr(), configPath, func(ctx context.Context, a *app.Application, _ *slog.Logger) error {
					return a.Serve(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "publish",
			Short: "Publish all pending tasks once and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApplication(cmd.Context(), cmd.ErrOrStderr(), configPath, func(ctx context.Context, a *app.Application, logger *slog.Logger) error {
					processed, err := a.Publish(ctx)
					if err != nil {
						return err
					}
					logger.Info("publish run finished", "tasks", processed)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Delete every template and campaign left on Mailchimp",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApplication(cmd.Context(), cmd.ErrOrStderr(), configPath, func(ctx context.Context, a *app.Application, _ *slog.Logger) error {
					report, err := a.Cleanup(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), report.String())
					if report.Failed() > 0 {
						return fmt.Errorf("%d resources could not be deleted", report.Failed())
					}
					return nil
				})
			},
		},
	)
	return root
}

// withApplication loads config, builds the application and hands it to run.
// Config errors go to stderr since no logger exists before the config is loaded.
func withApplication(ctx context.Context, stderr io.Writer, configPath string, run func(context.Context, *app.Application, *slog.Logger) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("closing application resources failed", "error", err)
		}
	}()

	if err := run(ctx, application, logger); err != nil {
		logger.Error("application stopped", "error", err)
		return err
	}
	return nil
}
