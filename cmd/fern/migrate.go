package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/app"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, app.Options{Migrate: true}, func(_ context.Context, a *app.App) error {
				a.Logger.Info("Migrations applied")
				return nil
			})
		},
	}
}
