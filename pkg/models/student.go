package models

import (
	"time"

	"github.com/google/uuid"
)

// LoadType is the conversion path a legacy record takes
type LoadType int

const (
	LoadTypeNotGraduated LoadType = iota
	LoadTypeGraduatedSingleProgram
	LoadTypeGraduatedTwoPrograms
)

func (l LoadType) String() string {
	switch l {
	case LoadTypeNotGraduated:
		return "NOT_GRADUATED"
	case LoadTypeGraduatedSingleProgram:
		return "GRADUATED_SINGLE_PROGRAM"
	case LoadTypeGraduatedTwoPrograms:
		return "GRADUATED_TWO_PROGRAMS"
	default:
		return "UNKNOWN"
	}
}

// Graduated reports whether the load type has at least one graduated pass
func (l LoadType) Graduated() bool {
	return l == LoadTypeGraduatedSingleProgram || l == LoadTypeGraduatedTwoPrograms
}

// RawStudentRecord is a legacy student record as read from the source system
type RawStudentRecord struct {
	PEN                   string   `db:"pen" json:"pen" validate:"required,len=9,numeric"`
	LegalFirstName        string   `db:"legal_first_name" json:"legal_first_name"`
	LegalLastName         string   `db:"legal_last_name" json:"legal_last_name"`
	BirthDate             string   `db:"birth_date" json:"birth_date"`
	Program               string   `db:"program" json:"program"`
	ProgramCompletionDate string   `db:"program_completion_date" json:"program_completion_date"`
	InterimCompletionDate string   `db:"interim_completion_date" json:"interim_completion_date"`
	StudentGrade          string   `db:"student_grade" json:"student_grade"`
	StudentStatus         string   `db:"student_status" json:"student_status" validate:"omitempty,oneof=A D M T"`
	ArchiveFlag           string   `db:"archive_flag" json:"archive_flag" validate:"omitempty,oneof=A I"`
	SchoolOfRecord        string   `db:"school_of_record" json:"school_of_record"`
	SchoolAtGrad          string   `db:"school_at_grad" json:"school_at_grad"`
	EnglishCert           string   `db:"english_cert" json:"english_cert"`
	FrenchCert            string   `db:"french_cert" json:"french_cert"`
	Adult19Rule           bool     `db:"adult_19_rule" json:"adult_19_rule"`
	GraduationMessage     string   `db:"graduation_message" json:"graduation_message"`
	ProgramCodes          []string `db:"-" json:"program_codes"`
}

// StudentIdentity is the canonical identity of a student in the destination system
type StudentIdentity struct {
	ID             uuid.UUID  `json:"studentID"`
	PEN            string     `json:"pen"`
	LegalFirstName string     `json:"legalFirstName,omitempty"`
	LegalLastName  string     `json:"legalLastName,omitempty"`
	BirthDate      *time.Time `json:"dob,omitempty"`
}

// GraduationStudentRecord is the destination record upserted once per pass
type GraduationStudentRecord struct {
	StudentID                uuid.UUID  `json:"studentID"`
	PEN                      string     `json:"pen"`
	Program                  string     `json:"program"`
	ProgramCompletionDate    *time.Time `json:"programCompletionDate,omitempty"`
	StudentGrade             string     `json:"studentGrade"`
	StudentStatus            string     `json:"studentStatus"`
	SchoolOfRecord           string     `json:"schoolOfRecord"`
	SchoolAtGrad             string     `json:"schoolAtGrad,omitempty"`
	RecalculateGradStatus    string     `json:"recalculateGradStatus,omitempty"`
	RecalculateProjectedGrad string     `json:"recalculateProjectedGrad,omitempty"`
	AdultStartDate           *time.Time `json:"adultStartDate,omitempty"`
	StudentGradData          string     `json:"studentGradData,omitempty"`
}

// CourseRow is a single row of legacy course or assessment history
type CourseRow struct {
	PEN              string `json:"pen"`
	CourseCode       string `json:"courseCode"`
	CourseLevel      string `json:"courseLevel"`
	CourseName       string `json:"courseName"`
	SessionDate      string `json:"sessionDate"`
	FinalPercent     string `json:"finalPercent"`
	FinalLetterGrade string `json:"finalLetterGrade"`
	Credits          int    `json:"credits"`
	ReportType       string `json:"reportType"`
	FoundationReq    string `json:"foundationReq"`
}

// AssessmentRow is a row of assessment history keyed by assessment code
type AssessmentRow struct {
	PEN              string `json:"pen"`
	AssessmentCode   string `json:"assessmentCode"`
	SessionDate      string `json:"sessionDate"`
	ProficiencyScore string `json:"proficiencyScore"`
	SpecialCase      string `json:"specialCase,omitempty"`
}
