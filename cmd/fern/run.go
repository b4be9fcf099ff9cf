package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/internal/app"
	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/models"
)

type runOptions struct {
	partitions     int
	fullReload     bool
	output         string
	skipMigrations bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one conversion to completion and print its summary",
		PreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.output != "yaml" && opts.output != "json" {
				return fmt.Errorf("unsupported output %q: use yaml or json", opts.output)
			}
			if opts.partitions < 0 {
				return fmt.Errorf("partitions must not be negative")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			startOpts := app.Options{Migrate: !opts.skipMigrations, Pipeline: true}
			return withApp(cmd, root, startOpts, func(ctx context.Context, a *app.App) error {
				fullReload := opts.fullReload || a.Config.FullReload
				run, err := a.Runner.Run(ctx, batch.RunRequest{Partitions: opts.partitions, FullReload: fullReload})
				if run != nil {
					if werr := writeRun(cmd.OutOrStdout(), opts.output, run); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().IntVar(&opts.partitions, "partitions", 0, "number of partitions (0 uses PARTITIONS)")
	cmd.Flags().BoolVar(&opts.fullReload, "full-reload", false, "remove existing enrollments before converting")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "yaml", "summary format: yaml or json")
	cmd.Flags().BoolVar(&opts.skipMigrations, "skip-migrations", false, "do not apply migrations on startup")
	return cmd
}

type runReport struct {
	RunID   string                    `json:"run_id" yaml:"run_id"`
	Status  models.RunStatus          `json:"status" yaml:"status"`
	Error   string                    `json:"error,omitempty" yaml:"error,omitempty"`
	Summary *models.ConversionSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
}

func writeRun(w io.Writer, format string, run *models.ConversionRun) error {
	report := runReport{RunID: run.ID.String(), Status: run.Status, Summary: run.Summary}
	if run.ErrorMessage != nil {
		report.Error = *run.ErrorMessage
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
