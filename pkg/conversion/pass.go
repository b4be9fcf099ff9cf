package conversion

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/classifier"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
)

const (
	flagYes = "Y"

	adultGrade = "AD"
)

// PassInput is everything one orchestration pass writes. Passes are built up
// front from the raw record and never mutated, so the second pass of a
// two-program student cannot inherit anything from the first.
type PassInput struct {
	Number         int
	Original       models.LoadType
	LoadType       models.LoadType
	Program        string
	CompletionDate *time.Time
	SkipOptional   bool

	PEN            string
	Grade          string
	Status         string
	SchoolOfRecord string
	SchoolAtGrad   string
	EnglishCert    string
	FrenchCert     string
	AddOnCodes     []string
	AdultStartDate *time.Time
	GradMessage    string
}

// Graduated reports whether the pass converts a completed program
func (p PassInput) Graduated() bool {
	return p.LoadType.Graduated()
}

// PlanPasses derives the ordered pass inputs for a classified record
func PlanPasses(rec *models.RawStudentRecord, result *classifier.Result) ([]PassInput, error) {
	base := PassInput{
		Original:       result.LoadType,
		PEN:            strings.TrimSpace(rec.PEN),
		Grade:          strings.TrimSpace(rec.StudentGrade),
		Status:         rules.DestinationStatus(strings.TrimSpace(rec.StudentStatus), strings.TrimSpace(rec.ArchiveFlag)),
		SchoolOfRecord: strings.TrimSpace(rec.SchoolOfRecord),
		SchoolAtGrad:   strings.TrimSpace(rec.SchoolAtGrad),
		EnglishCert:    strings.TrimSpace(rec.EnglishCert),
		FrenchCert:     strings.TrimSpace(rec.FrenchCert),
		AddOnCodes:     append([]string(nil), rec.ProgramCodes...),
		GradMessage:    rec.GraduationMessage,
	}
	program := strings.TrimSpace(rec.Program)

	var passes []PassInput
	add := func(number int, loadType models.LoadType, program string, date *time.Time) error {
		p := base
		p.Number = number
		p.LoadType = loadType
		p.Program = program
		p.CompletionDate = date
		if program == classifier.AdultProgram {
			start, err := adultStartDate(rec)
			if err != nil {
				return err
			}
			p.AdultStartDate = start
		}
		passes = append(passes, p)
		return nil
	}

	var err error
	switch result.LoadType {
	case models.LoadTypeNotGraduated:
		err = add(1, models.LoadTypeNotGraduated, program, nil)
	case models.LoadTypeGraduatedSingleProgram:
		date := result.CompletionDate
		if program == classifier.SchoolCompletionProgram {
			date = result.InterimDate
		}
		err = add(1, models.LoadTypeGraduatedSingleProgram, program, date)
	case models.LoadTypeGraduatedTwoPrograms:
		if err = add(1, models.LoadTypeGraduatedSingleProgram, classifier.SchoolCompletionProgram, result.InterimDate); err != nil {
			break
		}
		passes[0].SkipOptional = true
		if result.CompletionDate != nil {
			err = add(2, models.LoadTypeGraduatedSingleProgram, program, result.CompletionDate)
		} else {
			err = add(2, models.LoadTypeNotGraduated, program, nil)
		}
	}
	if err != nil {
		return nil, err
	}
	return passes, nil
}

// adultStartDate is the birth date plus 19 years for adult-grade students
// flagged with the 19 year rule, and plus 18 years otherwise
func adultStartDate(rec *models.RawStudentRecord) (*time.Time, error) {
	if strings.TrimSpace(rec.BirthDate) == "" {
		return nil, nil
	}
	dob, err := classifier.ParseBirthDate(rec.BirthDate)
	if err != nil {
		return nil, err
	}
	years := 18
	if strings.TrimSpace(rec.StudentGrade) == adultGrade && rec.Adult19Rule {
		years = 19
	}
	start := dob.AddDate(years, 0, 0)
	return &start, nil
}

// destinationRecord applies a pass onto the existing record, or a new one.
// Every pass-driven field is assigned so nothing survives from an earlier pass.
func destinationRecord(existing *models.GraduationStudentRecord, studentID uuid.UUID, p PassInput) *models.GraduationStudentRecord {
	rec := &models.GraduationStudentRecord{}
	if existing != nil {
		copied := *existing
		rec = &copied
	}

	rec.StudentID = studentID
	rec.PEN = p.PEN
	rec.Program = p.Program
	rec.ProgramCompletionDate = p.CompletionDate
	rec.StudentGrade = p.Grade
	rec.StudentStatus = p.Status
	rec.SchoolOfRecord = p.SchoolOfRecord
	rec.SchoolAtGrad = p.SchoolAtGrad
	rec.AdultStartDate = p.AdultStartDate
	rec.StudentGradData = ""

	if p.Graduated() {
		rec.RecalculateGradStatus = ""
		rec.RecalculateProjectedGrad = ""
		return rec
	}

	rec.SchoolAtGrad = ""
	switch p.Status {
	case rules.StatusMerged:
		rec.RecalculateGradStatus = ""
		rec.RecalculateProjectedGrad = ""
	case rules.StatusArchived:
		rec.RecalculateGradStatus = flagYes
		rec.RecalculateProjectedGrad = ""
	default:
		rec.RecalculateGradStatus = flagYes
		rec.RecalculateProjectedGrad = flagYes
	}
	return rec
}
