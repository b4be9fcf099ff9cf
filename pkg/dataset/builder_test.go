package dataset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeHistory struct {
	calls map[string]int
	rows  map[string][]models.AssessmentRow
}

func (f *fakeHistory) AssessmentsByKeyAndCode(_ context.Context, _ string, code string) ([]models.AssessmentRow, error) {
	f.calls[code]++
	return f.rows[code], nil
}

type fakeRules struct {
	requirements map[string]models.ProgramRequirement
	schools      map[string]models.School
	schoolErr    error
}

func (f *fakeRules) RequirementFor(_ context.Context, _ string, foundationReq string) (*models.ProgramRequirement, error) {
	req, ok := f.requirements[foundationReq]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (f *fakeRules) SpecialCase(_ context.Context, label string) (*models.SpecialCase, error) {
	if label == "AEG" {
		return &models.SpecialCase{Code: "AEG", Label: "AEG", Description: "Aegrotat"}, nil
	}
	return nil, nil
}

func (f *fakeRules) School(_ context.Context, code string) (*models.School, error) {
	if f.schoolErr != nil {
		return nil, f.schoolErr
	}
	s, ok := f.schools[code]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func newFixtures() (*fakeHistory, *fakeRules) {
	history := &fakeHistory{
		calls: make(map[string]int),
		rows: map[string][]models.AssessmentRow{
			"LTE10": {
				{AssessmentCode: "LTE10", SessionDate: "202201", ProficiencyScore: "2"},
				{AssessmentCode: "LTE10", SessionDate: "202206", ProficiencyScore: "3"},
			},
		},
	}
	rules := &fakeRules{
		requirements: map[string]models.ProgramRequirement{
			"1":  {RuleCode: "1", FoundationReq: "1", Label: "Language Arts 10"},
			"5":  {RuleCode: "5", FoundationReq: "5", Label: "Mathematics 10"},
			"15": {RuleCode: "15", FoundationReq: "15", Label: "Literacy 10"},
		},
		schools: map[string]models.School{
			"03939000": {Code: "03939000", Name: "Test Secondary", Category: "01"},
		},
	}
	return history, rules
}

func graduatedInput() Input {
	date := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	return Input{
		Record: &models.GraduationStudentRecord{
			StudentID:             uuid.New(),
			PEN:                   "123456789",
			Program:               "2018-EN",
			ProgramCompletionDate: &date,
			StudentGrade:          "12",
			StudentStatus:         "CUR",
			SchoolOfRecord:        "03939000",
		},
		Identity: models.StudentIdentity{ID: uuid.New(), PEN: "123456789"},
		History: []models.CourseRow{
			{CourseCode: "MA", CourseLevel: "10", SessionDate: "202106", FinalPercent: "88", FoundationReq: "5"},
			{CourseCode: "EN", CourseLevel: "10", SessionDate: "202106", FinalPercent: "AEG", FoundationReq: "1"},
			{CourseCode: "EN", CourseLevel: "11", SessionDate: "202206", FinalPercent: "---", FoundationReq: "1"},
			{CourseCode: "LTE10", SessionDate: "202206", FinalPercent: "0", ReportType: "A", FoundationReq: "15"},
			{CourseCode: "LTE10", SessionDate: "202201", FinalPercent: "0", ReportType: "A"},
			{CourseCode: "NME10", SessionDate: "202201", FinalPercent: "4", ReportType: "A"},
		},
	}
}

func newBuilder(h HistoryService, r RuleLookup) *Builder {
	return NewBuilder(h, r, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestBuild_CoursesAndAssessments(t *testing.T) {
	history, rules := newFixtures()
	b := newBuilder(history, rules)

	ds, err := b.Build(context.Background(), graduatedInput())
	require.NoError(t, err)

	assert.True(t, ds.Graduated)
	assert.Equal(t, "Test Secondary", ds.School.Name)

	require.Len(t, ds.Courses, 3)
	assert.Equal(t, "EN", ds.Courses[0].CourseCode)
	assert.Equal(t, "10", ds.Courses[0].CourseLevel)
	assert.Equal(t, "AEG", ds.Courses[0].SpecialCase)
	assert.Equal(t, "", ds.Courses[1].SpecialCase)
	assert.Equal(t, "MA", ds.Courses[2].CourseCode)
	assert.Equal(t, "Mathematics 10", ds.Courses[2].GradReqMetDetail)

	require.Len(t, ds.Assessments, 3)
	assert.Equal(t, "LTE10", ds.Assessments[0].AssessmentCode)
	assert.Equal(t, "2", ds.Assessments[0].ProficiencyScore)
	assert.Equal(t, "3", ds.Assessments[1].ProficiencyScore)
	assert.Equal(t, "4", ds.Assessments[2].ProficiencyScore)
	assert.Equal(t, 1, history.calls["LTE10"])
	assert.Zero(t, history.calls["NME10"])
}

func TestBuild_RequirementsMetIsDeduplicated(t *testing.T) {
	history, rules := newFixtures()
	b := newBuilder(history, rules)

	ds, err := b.Build(context.Background(), graduatedInput())
	require.NoError(t, err)

	assert.Equal(t, []models.RequirementMet{
		{Rule: "1", Description: "Language Arts 10"},
		{Rule: "5", Description: "Mathematics 10"},
		{Rule: "15", Description: "Literacy 10"},
	}, ds.RequirementsMet)
}

func TestBuild_OptionalProgramStatuses(t *testing.T) {
	history, rules := newFixtures()
	b := newBuilder(history, rules)
	in := graduatedInput()
	date := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	in.OptionalPrograms = []models.Enrollment{
		{Kind: models.EnrollmentKindOptional, Code: "FI", CompletionDate: &date},
		{Kind: models.EnrollmentKindOptional, Code: "AD"},
		{Kind: models.EnrollmentKindCareer, Code: "XC"},
	}

	ds, err := b.Build(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, ds.OptionalPrograms, 2)
	ad, fi := ds.OptionalPrograms[0], ds.OptionalPrograms[1]
	assert.Equal(t, "AD", ad.Code)
	assert.False(t, ad.Completed)
	assert.Equal(t, []models.RequirementMet{{Rule: "951", Description: "Advanced Placement"}}, ad.RequirementsMet)
	assert.Equal(t, ds.Courses, ad.Courses)
	assert.Equal(t, ds.Assessments, ad.Assessments)

	assert.Equal(t, "FI", fi.Code)
	assert.True(t, fi.Completed)
	assert.Empty(t, fi.RequirementsMet)
}

func TestBuild_SchoolNotFound(t *testing.T) {
	history, rules := newFixtures()
	b := newBuilder(history, rules)
	in := graduatedInput()
	in.Record.SchoolAtGrad = "99999999"

	_, err := b.Build(context.Background(), in)
	assert.ErrorIs(t, err, ErrSchoolNotFound)

	rules.schoolErr = errors.New("timeout")
	_, err = b.Build(context.Background(), graduatedInput())
	assert.ErrorIs(t, err, rules.schoolErr)
	assert.NotErrorIs(t, err, ErrSchoolNotFound)
}

func TestBuild_FrancophoneMessage(t *testing.T) {
	history, rules := newFixtures()
	b := newBuilder(history, rules)

	in := graduatedInput()
	in.Record.Program = "1950"
	in.GradMessage = "Student has met graduation requirements. " + FrancophoneMarker
	ds, err := b.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Student has met graduation requirements.", ds.GradMessage)

	in = graduatedInput()
	in.GradMessage = "Congratulations. " + FrancophoneMarker
	ds, err = b.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, ds.GradMessage, FrancophoneMarker)
}

func TestBuild_MessageWhitespacePreserved(t *testing.T) {
	history, rules := newFixtures()
	b := newBuilder(history, rules)

	in := graduatedInput()
	in.GradMessage = "Congratulations.  Well done.\n"
	ds, err := b.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Congratulations.  Well done.\n", ds.GradMessage)

	in = graduatedInput()
	in.Record.Program = "1950"
	in.GradMessage = "Adult  graduate."
	ds, err = b.Build(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Adult  graduate.", ds.GradMessage)
}

func TestSerialize_RoundTrip(t *testing.T) {
	history, rules := newFixtures()
	b := newBuilder(history, rules)

	ds, err := b.Build(context.Background(), graduatedInput())
	require.NoError(t, err)

	data, err := Serialize(ds)
	require.NoError(t, err)
	assert.Contains(t, data, "\n  \"school\"")

	parsed, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, ds.Courses, parsed.Courses)
	assert.Equal(t, ds.RequirementsMet, parsed.RequirementsMet)
	assert.True(t, ds.ProgramCompletionDate.Equal(*parsed.ProgramCompletionDate))
}
