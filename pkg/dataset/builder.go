// Package dataset assembles the graduation dataset handed to document generation.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/classifier"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// AssessmentReportType marks a history row as an assessment
	AssessmentReportType = "A"

	// PercentPlaceholder is recorded when no percentage applies
	PercentPlaceholder = "---"

	// FrancophoneMarker is removed from adult program messages
	FrancophoneMarker = "Student has successfully completed the Programme Francophone."
)

// literacy assessments whose proficiency score lives in the assessment history only
var literacyAssessments = []string{"LTE10", "LTP10"}

// ErrSchoolNotFound is returned when the school of a graduated student is unknown
var ErrSchoolNotFound = errors.New("school not found")

// HistoryService supplies assessment history keyed by assessment code
type HistoryService interface {
	AssessmentsByKeyAndCode(ctx context.Context, pen, code string) ([]models.AssessmentRow, error)
}

// RuleLookup supplies requirement, special case and school lookups
type RuleLookup interface {
	RequirementFor(ctx context.Context, program, foundationReq string) (*models.ProgramRequirement, error)
	SpecialCase(ctx context.Context, label string) (*models.SpecialCase, error)
	School(ctx context.Context, code string) (*models.School, error)
}

// Input is what a graduated pass knows about the student
type Input struct {
	Record           *models.GraduationStudentRecord
	Identity         models.StudentIdentity
	History          []models.CourseRow
	OptionalPrograms []models.Enrollment
	GradMessage      string
}

// Builder builds graduation datasets
type Builder struct {
	history HistoryService
	rules   RuleLookup
	logger  ectologger.Logger
}

// NewBuilder creates a new dataset builder
func NewBuilder(history HistoryService, lookup RuleLookup, logger ectologger.Logger) *Builder {
	return &Builder{history: history, rules: lookup, logger: logger}
}

// Build assembles the dataset for one graduated pass
func (b *Builder) Build(ctx context.Context, in Input) (*models.GraduationDataset, error) {
	ctx, span := tracing.StartSpan(ctx, "DatasetBuilder.Build")
	defer span.End()

	rec := in.Record
	if rec == nil {
		return nil, errors.New("dataset requires a destination record")
	}

	school, err := b.school(ctx, rec)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	requirements := newRequirementSet()

	courseRows := ectolinq.Filter(in.History, func(row models.CourseRow) bool {
		return strings.TrimSpace(row.ReportType) != AssessmentReportType
	})
	assessmentRows := ectolinq.Filter(in.History, func(row models.CourseRow) bool {
		return strings.TrimSpace(row.ReportType) == AssessmentReportType
	})

	courses, err := b.courses(ctx, rec.Program, courseRows, requirements)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	assessments, err := b.assessments(ctx, rec.Program, in.Identity.PEN, assessmentRows, requirements)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	ds := &models.GraduationDataset{
		School: models.SchoolInfo{
			Code:     school.Code,
			Name:     school.Name,
			Category: school.Category,
		},
		Student: models.StudentInfo{
			StudentID:      in.Identity.ID.String(),
			PEN:            in.Identity.PEN,
			LegalFirstName: in.Identity.LegalFirstName,
			LegalLastName:  in.Identity.LegalLastName,
			BirthDate:      in.Identity.BirthDate,
			Grade:          rec.StudentGrade,
			Status:         rec.StudentStatus,
		},
		Program:               rec.Program,
		ProgramCompletionDate: rec.ProgramCompletionDate,
		Graduated:             rec.ProgramCompletionDate != nil,
		Courses:               courses,
		Assessments:           assessments,
		RequirementsMet:       requirements.list(),
		OptionalPrograms:      optionalStatuses(in.OptionalPrograms, courses, assessments),
		GradMessage:           gradMessage(rec.Program, in.GradMessage),
	}

	return ds, nil
}

func (b *Builder) school(ctx context.Context, rec *models.GraduationStudentRecord) (*models.School, error) {
	code := strings.TrimSpace(rec.SchoolAtGrad)
	if code == "" {
		code = strings.TrimSpace(rec.SchoolOfRecord)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: no school code", ErrSchoolNotFound)
	}
	school, err := b.rules.School(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up school %s: %w", code, err)
	}
	if school == nil {
		return nil, fmt.Errorf("%w: %s", ErrSchoolNotFound, code)
	}
	return school, nil
}

func (b *Builder) courses(ctx context.Context, program string, rows []models.CourseRow, reqs *requirementSet) ([]models.StudentCourse, error) {
	courses := make([]models.StudentCourse, 0, len(rows))
	for _, row := range rows {
		course := models.StudentCourse{
			CourseCode:       strings.TrimSpace(row.CourseCode),
			CourseLevel:      strings.TrimSpace(row.CourseLevel),
			CourseName:       strings.TrimSpace(row.CourseName),
			SessionDate:      strings.TrimSpace(row.SessionDate),
			FinalPercent:     strings.TrimSpace(row.FinalPercent),
			FinalLetterGrade: strings.TrimSpace(row.FinalLetterGrade),
			Credits:          row.Credits,
		}

		req, err := b.rules.RequirementFor(ctx, program, row.FoundationReq)
		if err != nil {
			return nil, fmt.Errorf("failed to look up requirement %s for %s: %w", row.FoundationReq, program, err)
		}
		if req != nil {
			course.GradReqMet = req.RuleCode
			course.GradReqMetDetail = req.Label
			reqs.add(models.RequirementMet{Rule: req.RuleCode, Description: req.Label})
		}

		if isSpecialCaseLabel(course.FinalPercent) {
			sc, err := b.rules.SpecialCase(ctx, course.FinalPercent)
			if err != nil {
				return nil, fmt.Errorf("failed to look up special case %s: %w", course.FinalPercent, err)
			}
			if sc != nil {
				course.SpecialCase = sc.Label
			}
		}

		courses = append(courses, course)
	}

	sort.SliceStable(courses, func(i, j int) bool {
		a, c := courses[i], courses[j]
		if a.CourseCode != c.CourseCode {
			return a.CourseCode < c.CourseCode
		}
		if a.CourseLevel != c.CourseLevel {
			return a.CourseLevel < c.CourseLevel
		}
		return a.SessionDate < c.SessionDate
	})

	return courses, nil
}

func (b *Builder) assessments(ctx context.Context, program, pen string, rows []models.CourseRow, reqs *requirementSet) ([]models.StudentAssessment, error) {
	proficiency := make(map[string][]models.AssessmentRow)

	assessments := make([]models.StudentAssessment, 0, len(rows))
	for _, row := range rows {
		a := models.StudentAssessment{
			AssessmentCode:   strings.TrimSpace(row.CourseCode),
			SessionDate:      strings.TrimSpace(row.SessionDate),
			ProficiencyScore: strings.TrimSpace(row.FinalPercent),
		}

		if ectolinq.Contains(literacyAssessments, a.AssessmentCode) {
			history, ok := proficiency[a.AssessmentCode]
			if !ok {
				var err error
				history, err = b.history.AssessmentsByKeyAndCode(ctx, pen, a.AssessmentCode)
				if err != nil {
					return nil, fmt.Errorf("failed to load %s assessment history: %w", a.AssessmentCode, err)
				}
				proficiency[a.AssessmentCode] = history
			}
			a.ProficiencyScore = ""
			for _, h := range history {
				if strings.TrimSpace(h.SessionDate) == a.SessionDate {
					a.ProficiencyScore = strings.TrimSpace(h.ProficiencyScore)
					a.SpecialCase = strings.TrimSpace(h.SpecialCase)
					break
				}
			}
		}

		req, err := b.rules.RequirementFor(ctx, program, row.FoundationReq)
		if err != nil {
			return nil, fmt.Errorf("failed to look up requirement %s for %s: %w", row.FoundationReq, program, err)
		}
		if req != nil {
			a.GradReqMet = req.RuleCode
			reqs.add(models.RequirementMet{Rule: req.RuleCode, Description: req.Label})
		}

		assessments = append(assessments, a)
	}

	sort.SliceStable(assessments, func(i, j int) bool {
		if assessments[i].AssessmentCode != assessments[j].AssessmentCode {
			return assessments[i].AssessmentCode < assessments[j].AssessmentCode
		}
		return assessments[i].SessionDate < assessments[j].SessionDate
	})

	return assessments, nil
}

func optionalStatuses(enrollments []models.Enrollment, courses []models.StudentCourse, assessments []models.StudentAssessment) []models.OptionalProgramStatus {
	optional := ectolinq.Filter(enrollments, func(e models.Enrollment) bool {
		return e.Kind == models.EnrollmentKindOptional
	})
	sort.SliceStable(optional, func(i, j int) bool { return optional[i].Code < optional[j].Code })

	return ectolinq.Map(optional, func(e models.Enrollment) models.OptionalProgramStatus {
		status := models.OptionalProgramStatus{
			Code:            e.Code,
			Completed:       e.CompletionDate != nil,
			CompletionDate:  e.CompletionDate,
			Courses:         courses,
			Assessments:     assessments,
			RequirementsMet: []models.RequirementMet{},
		}
		if req, ok := rules.OptionalRequirement(e.Code); ok {
			status.RequirementsMet = append(status.RequirementsMet, req)
		}
		return status
	})
}

func gradMessage(program, message string) string {
	if program != classifier.AdultProgram || !strings.Contains(message, FrancophoneMarker) {
		return message
	}
	message = strings.ReplaceAll(message, FrancophoneMarker, "")
	return strings.Join(strings.Fields(message), " ")
}

func isSpecialCaseLabel(percent string) bool {
	if percent == "" || percent == PercentPlaceholder {
		return false
	}
	_, err := strconv.ParseFloat(percent, 64)
	return err != nil
}

// requirementSet deduplicates requirements by rule
type requirementSet struct {
	items map[string]models.RequirementMet
}

func newRequirementSet() *requirementSet {
	return &requirementSet{items: make(map[string]models.RequirementMet)}
}

func (s *requirementSet) add(r models.RequirementMet) {
	if _, ok := s.items[r.Rule]; !ok {
		s.items[r.Rule] = r
	}
}

func (s *requirementSet) list() []models.RequirementMet {
	out := ectolinq.Values(s.items)
	sort.Slice(out, func(i, j int) bool { return ruleLess(out[i].Rule, out[j].Rule) })
	if out == nil {
		out = []models.RequirementMet{}
	}
	return out
}

func ruleLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

// Serialize renders the dataset in its stored form
func Serialize(ds *models.GraduationDataset) (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize graduation dataset: %w", err)
	}
	return string(data), nil
}

// Deserialize parses a stored dataset
func Deserialize(data string) (*models.GraduationDataset, error) {
	var ds models.GraduationDataset
	if err := json.Unmarshal([]byte(data), &ds); err != nil {
		return nil, fmt.Errorf("failed to parse graduation dataset: %w", err)
	}
	return &ds, nil
}
