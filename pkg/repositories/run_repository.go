package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	conversionRunsTable      = "conversion_runs"
	conversionRunErrorsTable = "conversion_run_errors"

	// DefaultListLimit bounds ListRecent when no limit is given
	DefaultListLimit = 20
	maxListLimit     = 200
)

var (
	conversionRunColumns = []string{
		"id", "status", "partitions", "full_reload", "total_records",
		"error_message", "summary", "started_at", "completed_at",
	}
	listRunColumns = []string{
		"id", "status", "partitions", "full_reload", "total_records",
		"error_message", "started_at", "completed_at",
	}
)

type conversionRunRow struct {
	models.ConversionRun
	SummaryData database.JSONB[*models.ConversionSummary] `db:"summary"`
}

func (r conversionRunRow) run() *models.ConversionRun {
	run := r.ConversionRun
	run.Summary = r.SummaryData.GetValue()
	return &run
}

// RunRepository persists conversion runs and their per-record errors
type RunRepository struct {
	*Repository
}

// NewRunRepository creates a new run repository
func NewRunRepository(db database.DB, logger ectologger.Logger) *RunRepository {
	return &RunRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts a new run
func (r *RunRepository) Create(ctx context.Context, run *models.ConversionRun) error {
	ctx, span := tracing.StartSpan(ctx, "RunRepository.Create")
	defer span.End()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(conversionRunsTable).
		Cols("id", "status", "partitions", "full_reload", "total_records", "started_at").
		Values(run.ID, run.Status, run.Partitions, run.FullReload, run.TotalRecords, database.Now).
		Returning("started_at")

	query, args := ib.Build()
	if err := r.DB().QueryRowContext(ctx, query, args...).Scan(&run.StartedAt); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", run.ID).Error("failed to create conversion run")
		return Internal("failed to create conversion run")
	}

	r.logger.WithContext(ctx).WithField("run_id", run.ID).Debugf("Created %s", conversionRunsTable)
	return nil
}

// Complete marks a run completed and stores its summary and error entries
func (r *RunRepository) Complete(ctx context.Context, id uuid.UUID, summary *models.ConversionSummary) error {
	ctx, span := tracing.StartSpan(ctx, "RunRepository.Complete")
	defer span.End()

	if summary == nil {
		summary = models.NewConversionSummary()
	}

	err := database.WithTx(ctx, r.DB(), func(ctx context.Context, tx database.Tx) error {
		ub := database.NewUpdateBuilder()
		ub.Update(conversionRunsTable).
			Set(
				ub.Assign("status", models.RunStatusCompleted),
				ub.Assign("total_records", summary.ReadCount),
				ub.Assign("summary", database.NewJSONB(summary)),
				ub.Assign("completed_at", database.Now),
			).
			Where(ub.Equal("id", id))

		query, args := ub.Build()
		if err := r.execOne(ctx, tx, id, query, args); err != nil {
			return err
		}
		return r.insertErrors(ctx, tx, id, summary.Errors)
	})
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": id,
		"errors": len(summary.Errors),
	}).Debugf("Completed %s", conversionRunsTable)
	return nil
}

// Fail marks a run failed with a reason
func (r *RunRepository) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "RunRepository.Fail")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(conversionRunsTable).
		Set(
			ub.Assign("status", models.RunStatusFailed),
			ub.Assign("error_message", reason),
			ub.Assign("completed_at", database.Now),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	if err := r.execOne(ctx, r.DB(), id, query, args); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// GetByID returns a run with its summary
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ConversionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "RunRepository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(conversionRunColumns...).From(conversionRunsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row conversionRunRow
	err := r.DB().GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("conversion run %s does not exist", id)
	}
	if err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("failed to get conversion run")
		return nil, Internal("failed to get conversion run")
	}
	return row.run(), nil
}

// ListRecent returns the most recently started runs without their summaries
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]models.ConversionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "RunRepository.ListRecent")
	defer span.End()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	sb := database.NewSelectBuilder()
	sb.Select(listRunColumns...).
		From(conversionRunsTable).
		OrderBy("started_at").Desc().
		Limit(limit)

	query, args := sb.Build()
	runs := make([]models.ConversionRun, 0)
	if err := r.DB().SelectContext(ctx, &runs, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("failed to list conversion runs")
		return nil, Internal("failed to list conversion runs")
	}
	return runs, nil
}

// ListErrors returns the error entries of a run, optionally filtered by kind
func (r *RunRepository) ListErrors(ctx context.Context, id uuid.UUID, kind models.ErrorKind) ([]models.ErrorEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "RunRepository.ListErrors")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("pen AS key", "kind", "reason").From(conversionRunErrorsTable)
	sb.Where(sb.Equal("run_id", id))
	if kind != "" {
		sb.Where(sb.Equal("kind", kind))
	}
	sb.OrderBy("pen").Asc()

	query, args := sb.Build()
	entries := make([]models.ErrorEntry, 0)
	if err := r.DB().SelectContext(ctx, &entries, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("failed to list conversion run errors")
		return nil, Internal("failed to list conversion run errors")
	}
	return entries, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *RunRepository) execOne(ctx context.Context, db execer, id uuid.UUID, query string, args []any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("failed to update conversion run")
		return Internal("failed to update conversion run")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NotFound("conversion run %s does not exist", id)
	}
	return nil
}

const errorInsertBatch = 500

func (r *RunRepository) insertErrors(ctx context.Context, tx database.Tx, id uuid.UUID, entries []models.ErrorEntry) error {
	for start := 0; start < len(entries); start += errorInsertBatch {
		end := min(start+errorInsertBatch, len(entries))

		ib := database.NewInsertBuilder()
		ib.InsertInto(conversionRunErrorsTable).Cols("run_id", "pen", "kind", "reason")
		for _, e := range entries[start:end] {
			ib.Values(id, e.Key, e.Kind, e.Reason)
		}

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("failed to insert conversion run errors")
			return Internal("failed to insert conversion run errors")
		}
	}
	return nil
}
