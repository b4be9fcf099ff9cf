// Package classifier decides which conversion path a legacy record takes.
package classifier

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	// SchoolCompletionProgram is the non-diploma program completed with an interim date
	SchoolCompletionProgram = "SCCP"

	// AdultProgram is the adult graduation program code
	AdultProgram = "1950"

	completionDateLayout = "200601"
	interimDateLayout    = "20060102"
)

var (
	// ErrBadData is returned when a field required by the derived load type is missing
	ErrBadData = errors.New("bad data")

	// ErrMalformedDate is returned when a date string has the wrong width or format
	ErrMalformedDate = errors.New("malformed date")

	// ErrInvalidRecord is returned when the record fails structural validation
	ErrInvalidRecord = errors.New("invalid record")
)

// Result is the classification of one legacy record
type Result struct {
	LoadType       models.LoadType
	CompletionDate *time.Time
	InterimDate    *time.Time
}

// Classifier inspects raw records and rejects structurally invalid ones
type Classifier struct {
	validate *validator.Validate
}

// NewClassifier creates a new classifier
func NewClassifier() *Classifier {
	return &Classifier{validate: validator.New()}
}

// Classify derives the load type of a record
func (c *Classifier) Classify(rec *models.RawStudentRecord) (*Result, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}
	if err := c.validate.Struct(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	program := strings.TrimSpace(rec.Program)
	hasFinal := strings.TrimSpace(rec.ProgramCompletionDate) != ""
	hasInterim := strings.TrimSpace(rec.InterimCompletionDate) != ""

	result := &Result{LoadType: models.LoadTypeNotGraduated}

	if hasFinal {
		d, err := ParseCompletionDate(rec.ProgramCompletionDate)
		if err != nil {
			return nil, err
		}
		result.CompletionDate = d
	}
	if hasInterim {
		d, err := ParseInterimDate(rec.InterimCompletionDate)
		if err != nil {
			return nil, err
		}
		result.InterimDate = d
	}

	if !hasFinal && !hasInterim {
		return result, nil
	}

	if program == "" {
		return nil, fmt.Errorf("%w: completion date present without a program", ErrBadData)
	}

	if program == SchoolCompletionProgram {
		if !hasInterim {
			return nil, fmt.Errorf("%w: %s requires an interim completion date", ErrBadData, SchoolCompletionProgram)
		}
		result.LoadType = models.LoadTypeGraduatedSingleProgram
		result.CompletionDate = nil
		return result, nil
	}

	if hasInterim {
		result.LoadType = models.LoadTypeGraduatedTwoPrograms
		return result, nil
	}

	result.LoadType = models.LoadTypeGraduatedSingleProgram
	return result, nil
}

// ParseCompletionDate parses a yyyyMM program completion date
func ParseCompletionDate(s string) (*time.Time, error) {
	return parseFixedWidth(strings.TrimSpace(s), completionDateLayout)
}

// ParseInterimDate parses a yyyyMMdd interim completion date
func ParseInterimDate(s string) (*time.Time, error) {
	return parseFixedWidth(strings.TrimSpace(s), interimDateLayout)
}

// ParseBirthDate parses a yyyyMMdd birth date
func ParseBirthDate(s string) (*time.Time, error) {
	return parseFixedWidth(strings.TrimSpace(s), interimDateLayout)
}

func parseFixedWidth(s, layout string) (*time.Time, error) {
	if len(s) != len(layout) || !isDigits(s) {
		return nil, fmt.Errorf("%w: %q does not match %d-digit format", ErrMalformedDate, s, len(layout))
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedDate, s, err)
	}
	return &t, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
