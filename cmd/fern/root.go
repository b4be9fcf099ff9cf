package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/app"
)

type rootOptions struct {
	envFiles []string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "fern",
		Short:         "Convert legacy student records into the graduation system",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	cmd.AddCommand(
		newServeCommand(opts),
		newRunCommand(opts),
		newMigrateCommand(opts),
		newImportCommand(opts),
	)
	return cmd
}

// withApp loads configuration, starts the app and stops it once fn returns.
// SIGINT and SIGTERM cancel the context passed to fn.
func withApp(cmd *cobra.Command, root *rootOptions, startOpts app.Options, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(root.envFiles...)
	if err != nil {
		return err
	}

	logger, zapLogger, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func(l *zap.Logger) { _ = l.Sync() }(zapLogger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, logger)
	defer func() {
		if err := a.Stop(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Error("Failed to stop cleanly")
		}
	}()

	if err := a.Start(ctx, startOpts); err != nil {
		logger.WithError(err).Error("Startup failed")
		return err
	}
	return fn(ctx, a)
}
