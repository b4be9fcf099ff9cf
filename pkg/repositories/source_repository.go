package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const legacyStudentsTable = "legacy_students"

var legacyStudentColumns = []string{
	"pen", "legal_first_name", "legal_last_name", "birth_date", "program",
	"program_completion_date", "interim_completion_date", "student_grade",
	"student_status", "archive_flag", "school_of_record", "school_at_grad",
	"english_cert", "french_cert", "adult_19_rule", "graduation_message", "program_codes",
}

type legacyStudentRow struct {
	models.RawStudentRecord
	Codes pq.StringArray `db:"program_codes"`
}

func (r legacyStudentRow) record() *models.RawStudentRecord {
	rec := r.RawStudentRecord
	rec.ProgramCodes = []string(r.Codes)
	return &rec
}

// SourceRepository reads the legacy student store. Keys are PENs and are
// always listed in PEN order so partitions are stable between calls.
type SourceRepository struct {
	*Repository
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db database.DB, logger ectologger.Logger) *SourceRepository {
	return &SourceRepository{
		Repository: NewRepository(db, logger),
	}
}

// Count returns the number of legacy records
func (r *SourceRepository) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "SourceRepository.Count")
	defer span.End()

	query, args := database.CountFrom(legacyStudentsTable).Build()
	var count int
	if err := r.DB().GetContext(ctx, &count, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).Error("failed to count legacy students")
		return 0, Internal("failed to count legacy students")
	}
	return count, nil
}

// ListKeys returns up to limit PENs starting at offset in PEN order
func (r *SourceRepository) ListKeys(ctx context.Context, offset, limit int) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "SourceRepository.ListKeys")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("pen").From(legacyStudentsTable).OrderBy("pen").Asc().Offset(offset).Limit(limit)

	query, args := sb.Build()
	keys := make([]string, 0, limit)
	if err := r.DB().SelectContext(ctx, &keys, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"offset": offset,
			"limit":  limit,
		}).Error("failed to list legacy student keys")
		return nil, Internal("failed to list legacy student keys")
	}
	return keys, nil
}

// GetByKey returns the legacy record of a PEN, or a 404 error
func (r *SourceRepository) GetByKey(ctx context.Context, pen string) (*models.RawStudentRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "SourceRepository.GetByKey")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(legacyStudentColumns...).From(legacyStudentsTable)
	sb.Where(sb.Equal("pen", pen))

	query, args := sb.Build()
	var row legacyStudentRow
	err := r.DB().GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("legacy student %s does not exist", pen)
	}
	if err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("pen", pen).Error("failed to get legacy student")
		return nil, Internal("failed to get legacy student")
	}
	return row.record(), nil
}

// Upsert inserts or replaces legacy records in one transaction
func (r *SourceRepository) Upsert(ctx context.Context, records []models.RawStudentRecord) error {
	ctx, span := tracing.StartSpan(ctx, "SourceRepository.Upsert")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	err := database.WithTx(ctx, r.DB(), func(ctx context.Context, tx database.Tx) error {
		for i := range records {
			query, args := upsertLegacyStudent(&records[i])
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				r.logger.WithContext(ctx).WithError(err).WithField("pen", records[i].PEN).Error("failed to upsert legacy student")
				return err
			}
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return Internal("failed to upsert legacy students")
	}

	r.logger.WithContext(ctx).Debugf("Upserted %d rows into %s", len(records), legacyStudentsTable)
	return nil
}

func upsertLegacyStudent(rec *models.RawStudentRecord) (string, []any) {
	codes := rec.ProgramCodes
	if codes == nil {
		codes = []string{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(legacyStudentsTable).
		Cols(append(legacyStudentColumns, "updated_at")...).
		Values(rec.PEN, rec.LegalFirstName, rec.LegalLastName, rec.BirthDate, rec.Program,
			rec.ProgramCompletionDate, rec.InterimCompletionDate, rec.StudentGrade,
			rec.StudentStatus, rec.ArchiveFlag, rec.SchoolOfRecord, rec.SchoolAtGrad,
			rec.EnglishCert, rec.FrenchCert, rec.Adult19Rule, rec.GraduationMessage,
			pq.StringArray(codes), database.Now)
	ib.OnConflictReplace([]string{"pen"}, legacyStudentColumns[1:], "updated_at")

	return ib.Build()
}
