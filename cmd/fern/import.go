package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/internal/app"
	"github.com/Ramsey-B/fern/pkg/models"
)

const importBatchSize = 500

var validate = validator.New(validator.WithRequiredStructEnabled())

func newImportCommand(root *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load legacy student records from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			records, err := decodeRecords(f, filepath.Ext(file))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			return withApp(cmd, root, app.Options{Migrate: true}, func(ctx context.Context, a *app.App) error {
				for start := 0; start < len(records); start += importBatchSize {
					end := min(start+importBatchSize, len(records))
					if err := a.Sources.Upsert(ctx, records[start:end]); err != nil {
						return err
					}
				}
				a.Logger.WithField("records", len(records)).Info("Imported legacy records")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "records file (.yaml, .yml or .json)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// decodeRecords reads a list of records. YAML documents are normalised through
// JSON so both formats share the records' json field names.
func decodeRecords(r io.Reader, ext string) ([]models.RawStudentRecord, error) {
	var records []models.RawStudentRecord

	switch strings.ToLower(ext) {
	case ".json":
		if err := json.NewDecoder(r).Decode(&records); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		var raw any
		if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
			return nil, err
		}
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}

	seen := make(map[string]struct{}, len(records))
	for i := range records {
		if err := validate.Struct(&records[i]); err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, records[i].PEN, err)
		}
		if _, dup := seen[records[i].PEN]; dup {
			return nil, fmt.Errorf("record %d: duplicate pen %s", i, records[i].PEN)
		}
		seen[records[i].PEN] = struct{}{}
	}
	return records, nil
}
