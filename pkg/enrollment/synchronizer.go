// Package enrollment derives and persists optional and career program enrollments.
package enrollment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/classifier"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Store persists enrollments in the destination system
type Store interface {
	List(ctx context.Context, studentID uuid.UUID) ([]models.Enrollment, error)
	Create(ctx context.Context, enrollment models.Enrollment) (*models.Enrollment, error)
	Remove(ctx context.Context, studentID uuid.UUID, kind models.EnrollmentKind, code string) error
}

// Input is everything the synchronizer needs for one pass
type Input struct {
	StudentID      uuid.UUID
	Program        string
	CompletionDate *time.Time
	Graduated      bool
	// SkipOptional is set on the interim pass of a two-program student
	SkipOptional   bool
	EnglishCert    string
	SchoolOfRecord string
	AddOnCodes     []string
	Courses        []models.CourseRow
}

// Result lists the codes created during a pass
type Result struct {
	OptionalPrograms []string
	CareerPrograms   []string
}

// Ledger remembers what was created for one identity during a run so a code is
// never created twice, even across the passes of a two-program student.
type Ledger struct {
	created map[string]struct{}
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{created: make(map[string]struct{})}
}

func (l *Ledger) has(key string) bool {
	_, ok := l.created[key]
	return ok
}

func (l *Ledger) mark(key string) {
	l.created[key] = struct{}{}
}

// Synchronizer creates the dependent enrollments a pass implies
type Synchronizer struct {
	store  Store
	logger ectologger.Logger
}

// NewSynchronizer creates a new synchronizer
func NewSynchronizer(store Store, logger ectologger.Logger) *Synchronizer {
	return &Synchronizer{store: store, logger: logger}
}

// Sync creates any missing enrollments for the pass
func (s *Synchronizer) Sync(ctx context.Context, in Input, ledger *Ledger) (*Result, error) {
	result := &Result{}
	if in.SkipOptional {
		return result, nil
	}
	if ledger == nil {
		ledger = NewLedger()
	}

	ctx, span := tracing.StartSpan(ctx, "EnrollmentSynchronizer.Sync")
	defer span.End()

	existing, err := s.store.List(ctx, in.StudentID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	for _, e := range existing {
		ledger.mark(e.Key())
	}

	p := &pass{s: s, in: in, ledger: ledger, result: result}

	if in.Graduated && rules.IsFrenchTrack(in.Program) && strings.TrimSpace(in.EnglishCert) == "E" {
		if err := p.ensure(ctx, models.EnrollmentKindOptional, rules.DualDogwood); err != nil {
			return result, err
		}
	}

	if rule, ok := rules.FrenchImmersionRuleFor(in.Program); ok && hasFrenchImmersionCourse(in.Courses, rule) {
		if err := p.ensure(ctx, models.EnrollmentKindOptional, rules.FrenchImmersion); err != nil {
			return result, err
		}
	}

	careerCreated := false
	for _, raw := range in.AddOnCodes {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" {
			continue
		}
		if rules.IsOptionalAddOn(code) {
			if err := p.ensure(ctx, models.EnrollmentKindOptional, code); err != nil {
				return result, err
			}
			continue
		}
		before := len(result.CareerPrograms)
		if err := p.ensure(ctx, models.EnrollmentKindCareer, code); err != nil {
			return result, err
		}
		if len(result.CareerPrograms) > before {
			careerCreated = true
		}
	}
	if careerCreated {
		if err := p.ensure(ctx, models.EnrollmentKindOptional, rules.CareerProgram); err != nil {
			return result, err
		}
	}

	if in.Program == classifier.SchoolCompletionProgram && strings.HasPrefix(strings.TrimSpace(in.SchoolOfRecord), rules.FrancophoneSchoolPrefix) {
		if err := p.ensure(ctx, models.EnrollmentKindOptional, rules.FrenchSCCP); err != nil {
			return result, err
		}
	}

	return result, nil
}

// RemoveAll deletes every enrollment of a student. Used by full reloads.
func (s *Synchronizer) RemoveAll(ctx context.Context, studentID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "EnrollmentSynchronizer.RemoveAll")
	defer span.End()

	existing, err := s.store.List(ctx, studentID)
	if err != nil {
		return fmt.Errorf("failed to list enrollments: %w", err)
	}
	for _, e := range existing {
		if err := s.store.Remove(ctx, studentID, e.Kind, e.Code); err != nil {
			return fmt.Errorf("failed to remove enrollment %s: %w", e.Key(), err)
		}
	}
	return nil
}

// Enrollments lists every enrollment of a student
func (s *Synchronizer) Enrollments(ctx context.Context, studentID uuid.UUID) ([]models.Enrollment, error) {
	return s.store.List(ctx, studentID)
}

type pass struct {
	s      *Synchronizer
	in     Input
	ledger *Ledger
	result *Result
}

func (p *pass) ensure(ctx context.Context, kind models.EnrollmentKind, code string) error {
	e := models.Enrollment{
		StudentID: p.in.StudentID,
		Kind:      kind,
		Code:      code,
		Program:   p.in.Program,
	}
	if p.ledger.has(e.Key()) {
		return nil
	}
	if kind == models.EnrollmentKindOptional && p.in.Graduated {
		e.CompletionDate = p.in.CompletionDate
	}

	if _, err := p.s.store.Create(ctx, e); err != nil {
		return fmt.Errorf("failed to create %s enrollment %s: %w", strings.ToLower(string(kind)), code, err)
	}
	p.ledger.mark(e.Key())
	metrics.RecordEnrollment(string(kind), code)

	p.s.logger.WithContext(ctx).WithFields(map[string]any{
		"student_id": p.in.StudentID.String(),
		"kind":       string(kind),
		"code":       code,
	}).Debug("created enrollment")

	if kind == models.EnrollmentKindCareer {
		p.result.CareerPrograms = append(p.result.CareerPrograms, code)
	} else {
		p.result.OptionalPrograms = append(p.result.OptionalPrograms, code)
	}
	return nil
}

func hasFrenchImmersionCourse(courses []models.CourseRow, rule rules.FrenchImmersionRule) bool {
	for _, c := range courses {
		if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(c.CourseCode)), rules.FrenchImmersionCoursePrefix) {
			continue
		}
		level, ok := courseGrade(c.CourseLevel)
		if ok && rule.Qualifies(level) {
			return true
		}
	}
	return false
}

// courseGrade reads the leading grade number of a course level such as "11" or "12A"
func courseGrade(level string) (int, bool) {
	level = strings.TrimSpace(level)
	end := 0
	for end < len(level) && level[end] >= '0' && level[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(level[:end])
	return n, err == nil
}
