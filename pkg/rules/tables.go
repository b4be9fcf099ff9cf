package rules

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Optional and career program codes
const (
	DualDogwood       = "DD"
	FrenchImmersion   = "FI"
	CareerProgram     = "CP"
	FrenchSCCP        = "FR"
	AdvancedPlacement = "AD"
	IBCertificate     = "BC"
	IBDiploma         = "BD"

	// FrenchImmersionCoursePrefix marks a qualifying French immersion course
	FrenchImmersionCoursePrefix = "FRAL"

	// FrancophoneSchoolPrefix is the school-of-record prefix of the designated francophone schools
	FrancophoneSchoolPrefix = "093"
)

// FrenchImmersionRule is the grade level a French immersion course must reach
type FrenchImmersionRule struct {
	Grade  int
	Strict bool
}

// Qualifies reports whether a course level satisfies the rule
func (r FrenchImmersionRule) Qualifies(level int) bool {
	if r.Strict {
		return level == r.Grade
	}
	return level >= r.Grade
}

var frenchImmersionRules = map[string]FrenchImmersionRule{
	"2018-EN": {Grade: 10},
	"2004-EN": {Grade: 10},
	"1996-EN": {Grade: 11},
	"1986-EN": {Grade: 11, Strict: true},
}

// FrenchImmersionRuleFor returns the French immersion rule of an English-track program
func FrenchImmersionRuleFor(program string) (FrenchImmersionRule, bool) {
	rule, ok := frenchImmersionRules[program]
	return rule, ok
}

var optionalRequirements = map[string]models.RequirementMet{
	AdvancedPlacement: {Rule: "951", Description: "Advanced Placement"},
	IBCertificate:     {Rule: "952", Description: "International Baccalaureate Certificate"},
	IBDiploma:         {Rule: "953", Description: "International Baccalaureate Diploma"},
	CareerProgram:     {Rule: "954", Description: "Career Program"},
}

// OptionalRequirement returns the synthesized requirement of an optional program
func OptionalRequirement(code string) (models.RequirementMet, bool) {
	req, ok := optionalRequirements[code]
	return req, ok
}

var optionalAddOns = map[string]struct{}{
	AdvancedPlacement: {},
	IBCertificate:     {},
	IBDiploma:         {},
}

// IsOptionalAddOn reports whether a program add-on code is an optional program.
// Any other add-on code is a career program.
func IsOptionalAddOn(code string) bool {
	_, ok := optionalAddOns[code]
	return ok
}

// IsFrenchTrack reports whether the program is a Programme Francophone
func IsFrenchTrack(program string) bool {
	return strings.HasSuffix(program, "-PF")
}

// IsEnglishTrack reports whether the program is an English program
func IsEnglishTrack(program string) bool {
	return strings.HasSuffix(program, "-EN")
}

var statusCodes = map[string]string{
	"A": "CUR",
	"D": "DEC",
	"M": "MER",
	"T": "TER",
}

// Destination status codes
const (
	StatusCurrent  = "CUR"
	StatusMerged   = "MER"
	StatusArchived = "ARC"
)

// DestinationStatus maps a legacy status and archive flag to a destination status
func DestinationStatus(status, archiveFlag string) string {
	if status == "A" && archiveFlag == "I" {
		return StatusArchived
	}
	if mapped, ok := statusCodes[status]; ok {
		return mapped
	}
	return StatusCurrent
}

// Document kinds
const (
	DocumentTranscript = "TRANSCRIPT"
)

// CertificateKinds returns the certificate kinds a graduated program earns
func CertificateKinds(program string, dualDogwood, frenchSCCP bool) []string {
	switch {
	case program == "SCCP":
		if frenchSCCP {
			return []string{"SCF"}
		}
		return []string{"SC"}
	case program == "1950":
		return []string{"A"}
	case IsFrenchTrack(program):
		if dualDogwood {
			return []string{"S", "F"}
		}
		return []string{"S"}
	case IsEnglishTrack(program):
		return []string{"E"}
	default:
		return nil
	}
}
