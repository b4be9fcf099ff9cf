package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/app"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversion admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := app.Options{Migrate: !skipMigrations, Pipeline: true}
			return withApp(cmd, root, opts, func(ctx context.Context, a *app.App) error {
				return a.Serve(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply migrations on startup")
	return cmd
}
