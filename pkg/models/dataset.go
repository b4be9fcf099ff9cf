package models

import "time"

// GraduationDataset is the composite academic summary built for a graduated pass
type GraduationDataset struct {
	School                SchoolInfo              `json:"school"`
	Student               StudentInfo             `json:"student"`
	Program               string                  `json:"program"`
	ProgramCompletionDate *time.Time              `json:"programCompletionDate,omitempty"`
	Graduated             bool                    `json:"graduated"`
	Courses               []StudentCourse         `json:"courses"`
	Assessments           []StudentAssessment     `json:"assessments"`
	RequirementsMet       []RequirementMet        `json:"requirementsMet"`
	OptionalPrograms      []OptionalProgramStatus `json:"optionalPrograms"`
	GradMessage           string                  `json:"gradMessage,omitempty"`
}

type SchoolInfo struct {
	Code     string `json:"minCode"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type StudentInfo struct {
	StudentID      string     `json:"studentID"`
	PEN            string     `json:"pen"`
	LegalFirstName string     `json:"legalFirstName,omitempty"`
	LegalLastName  string     `json:"legalLastName,omitempty"`
	BirthDate      *time.Time `json:"dob,omitempty"`
	Grade          string     `json:"grade"`
	Status         string     `json:"status"`
}

type StudentCourse struct {
	CourseCode       string `json:"courseCode"`
	CourseLevel      string `json:"courseLevel"`
	CourseName       string `json:"courseName,omitempty"`
	SessionDate      string `json:"sessionDate"`
	FinalPercent     string `json:"finalPercent,omitempty"`
	FinalLetterGrade string `json:"finalLetterGrade,omitempty"`
	Credits          int    `json:"credits"`
	GradReqMet       string `json:"gradReqMet,omitempty"`
	GradReqMetDetail string `json:"gradReqMetDetail,omitempty"`
	SpecialCase      string `json:"specialCase,omitempty"`
}

type StudentAssessment struct {
	AssessmentCode   string `json:"assessmentCode"`
	SessionDate      string `json:"sessionDate"`
	ProficiencyScore string `json:"proficiencyScore,omitempty"`
	SpecialCase      string `json:"specialCase,omitempty"`
	GradReqMet       string `json:"gradReqMet,omitempty"`
}

// RequirementMet is compared by value; two entries with the same rule are the same requirement
type RequirementMet struct {
	Rule        string `json:"rule"`
	Description string `json:"description"`
}

// OptionalProgramStatus embeds the main course and assessment lists per optional program
type OptionalProgramStatus struct {
	Code            string              `json:"optionalProgramCode"`
	Completed       bool                `json:"completed"`
	CompletionDate  *time.Time          `json:"completionDate,omitempty"`
	Courses         []StudentCourse     `json:"courses"`
	Assessments     []StudentAssessment `json:"assessments"`
	RequirementsMet []RequirementMet    `json:"requirementsMet"`
}
