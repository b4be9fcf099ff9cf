package conversion

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/classifier"
	"github.com/Ramsey-B/fern/pkg/models"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestPlanPasses(t *testing.T) {
	interim := datePtr(2023, time.June, 15)
	final := datePtr(2024, time.June, 1)

	tests := []struct {
		name     string
		program  string
		result   classifier.Result
		want     []models.LoadType
		programs []string
		dates    []*time.Time
	}{
		{
			name:     "not graduated",
			program:  "2018-EN",
			result:   classifier.Result{LoadType: models.LoadTypeNotGraduated},
			want:     []models.LoadType{models.LoadTypeNotGraduated},
			programs: []string{"2018-EN"},
			dates:    []*time.Time{nil},
		},
		{
			name:     "single program",
			program:  "2018-EN",
			result:   classifier.Result{LoadType: models.LoadTypeGraduatedSingleProgram, CompletionDate: final},
			want:     []models.LoadType{models.LoadTypeGraduatedSingleProgram},
			programs: []string{"2018-EN"},
			dates:    []*time.Time{final},
		},
		{
			name:     "school completion uses interim date",
			program:  "SCCP",
			result:   classifier.Result{LoadType: models.LoadTypeGraduatedSingleProgram, InterimDate: interim},
			want:     []models.LoadType{models.LoadTypeGraduatedSingleProgram},
			programs: []string{"SCCP"},
			dates:    []*time.Time{interim},
		},
		{
			name:     "two programs",
			program:  "2018-EN",
			result:   classifier.Result{LoadType: models.LoadTypeGraduatedTwoPrograms, CompletionDate: final, InterimDate: interim},
			want:     []models.LoadType{models.LoadTypeGraduatedSingleProgram, models.LoadTypeGraduatedSingleProgram},
			programs: []string{"SCCP", "2018-EN"},
			dates:    []*time.Time{interim, final},
		},
		{
			name:     "two programs without final date",
			program:  "2018-EN",
			result:   classifier.Result{LoadType: models.LoadTypeGraduatedTwoPrograms, InterimDate: interim},
			want:     []models.LoadType{models.LoadTypeGraduatedSingleProgram, models.LoadTypeNotGraduated},
			programs: []string{"SCCP", "2018-EN"},
			dates:    []*time.Time{interim, nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &models.RawStudentRecord{PEN: "123456789", Program: tt.program}
			passes, err := PlanPasses(rec, &tt.result)
			require.NoError(t, err)
			require.Len(t, passes, len(tt.want))
			for i, p := range passes {
				assert.Equal(t, i+1, p.Number)
				assert.Equal(t, tt.want[i], p.LoadType)
				assert.Equal(t, tt.result.LoadType, p.Original)
				assert.Equal(t, tt.programs[i], p.Program)
				assert.Equal(t, tt.dates[i], p.CompletionDate)
			}
			if tt.result.LoadType == models.LoadTypeGraduatedTwoPrograms {
				assert.True(t, passes[0].SkipOptional)
				assert.False(t, passes[1].SkipOptional)
			}
		})
	}
}

func TestPlanPasses_AdultStartDateMalformed(t *testing.T) {
	rec := &models.RawStudentRecord{PEN: "123456789", Program: "1950", BirthDate: "2005-01"}
	_, err := PlanPasses(rec, &classifier.Result{LoadType: models.LoadTypeNotGraduated})
	assert.ErrorIs(t, err, classifier.ErrMalformedDate)
}

func TestDestinationRecord(t *testing.T) {
	id := uuid.New()
	existing := &models.GraduationStudentRecord{
		StudentID:             id,
		Program:               "SCCP",
		ProgramCompletionDate: datePtr(2023, time.June, 15),
		SchoolAtGrad:          "03939000",
		StudentGradData:       `{"program":"SCCP"}`,
	}

	t.Run("graduated clears flags", func(t *testing.T) {
		rec := destinationRecord(nil, id, PassInput{
			LoadType:       models.LoadTypeGraduatedSingleProgram,
			Program:        "2018-EN",
			CompletionDate: datePtr(2024, time.June, 1),
			Status:         "CUR",
			SchoolAtGrad:   "03939000",
		})
		assert.Equal(t, id, rec.StudentID)
		assert.Equal(t, "03939000", rec.SchoolAtGrad)
		assert.Empty(t, rec.RecalculateGradStatus)
		assert.Empty(t, rec.RecalculateProjectedGrad)
	})

	t.Run("not graduated clears earlier pass", func(t *testing.T) {
		rec := destinationRecord(existing, id, PassInput{
			LoadType:     models.LoadTypeNotGraduated,
			Program:      "2018-EN",
			Status:       "CUR",
			SchoolAtGrad: "03939000",
		})
		assert.Equal(t, "2018-EN", rec.Program)
		assert.Nil(t, rec.ProgramCompletionDate)
		assert.Empty(t, rec.SchoolAtGrad)
		assert.Empty(t, rec.StudentGradData)
		assert.Equal(t, "Y", rec.RecalculateGradStatus)
		assert.Equal(t, "Y", rec.RecalculateProjectedGrad)
		assert.Equal(t, "SCCP", existing.Program)
	})

	t.Run("merged", func(t *testing.T) {
		rec := destinationRecord(nil, id, PassInput{LoadType: models.LoadTypeNotGraduated, Status: "MER"})
		assert.Empty(t, rec.RecalculateGradStatus)
		assert.Empty(t, rec.RecalculateProjectedGrad)
	})

	t.Run("archived", func(t *testing.T) {
		rec := destinationRecord(nil, id, PassInput{LoadType: models.LoadTypeNotGraduated, Status: "ARC"})
		assert.Equal(t, "Y", rec.RecalculateGradStatus)
		assert.Empty(t, rec.RecalculateProjectedGrad)
	})
}

func TestStateNext(t *testing.T) {
	assert.Equal(t, StateBuildDataset, StateSyncDependents.next(true))
	assert.Equal(t, StateDone, StateSyncDependents.next(false))
	assert.Equal(t, StateDone, StateTriggerDocumentGeneration.next(true))
	assert.Equal(t, StateFailed, StateFailed.next(true))
}
