package models

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentKind separates optional-program and career-program enrollments
type EnrollmentKind string

const (
	EnrollmentKindOptional EnrollmentKind = "OPTIONAL"
	EnrollmentKindCareer   EnrollmentKind = "CAREER"
)

// Enrollment is a dependent program enrollment keyed by (student, kind, code)
type Enrollment struct {
	ID             uuid.UUID      `json:"id,omitempty"`
	StudentID      uuid.UUID      `json:"studentID"`
	Kind           EnrollmentKind `json:"kind"`
	Code           string         `json:"code"`
	Program        string         `json:"program,omitempty"`
	CompletionDate *time.Time     `json:"completionDate,omitempty"`
}

// Key identifies the enrollment within one student
func (e Enrollment) Key() string {
	return string(e.Kind) + ":" + e.Code
}

// ProgramRequirement is a rule returned by the rule lookup service
type ProgramRequirement struct {
	Program       string `json:"graduationProgramCode"`
	RuleCode      string `json:"ruleCode"`
	FoundationReq string `json:"traxReqNumber"`
	Label         string `json:"label"`
	Description   string `json:"description"`
}

// SpecialCase is a non-numeric percentage marker, e.g. AEG
type SpecialCase struct {
	Code        string `json:"spCase"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// School is the subset of school data the dataset needs
type School struct {
	Code     string `json:"minCode"`
	Name     string `json:"schoolName"`
	Category string `json:"schoolCategory"`
	City     string `json:"city,omitempty"`
}
