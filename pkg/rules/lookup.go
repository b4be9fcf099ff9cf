package rules

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service is the rule lookup service. SpecialCase and School return nil, nil
// when the code is unknown.
type Service interface {
	ProgramRequirements(ctx context.Context, program string) ([]models.ProgramRequirement, error)
	SpecialCase(ctx context.Context, label string) (*models.SpecialCase, error)
	School(ctx context.Context, code string) (*models.School, error)
}

// Lookup memoizes rule service lookups. It is shared by all partitions.
type Lookup struct {
	svc          Service
	logger       ectologger.Logger
	requirements *Cache[[]models.ProgramRequirement]
	specialCases *Cache[*models.SpecialCase]
	schools      *Cache[*models.School]
}

// NewLookup creates a new rule lookup
func NewLookup(svc Service, logger ectologger.Logger, config CacheConfig) *Lookup {
	l := &Lookup{
		svc:          svc,
		logger:       logger,
		requirements: NewCache[[]models.ProgramRequirement]("program_requirements", config),
		specialCases: NewCache[*models.SpecialCase]("special_cases", config),
		schools:      NewCache[*models.School]("schools", config),
	}
	l.requirements.onHit = metrics.RecordRuleCacheLookup
	l.specialCases.onHit = metrics.RecordRuleCacheLookup
	l.schools.onHit = metrics.RecordRuleCacheLookup
	return l
}

// ProgramRequirements returns every requirement rule of a program
func (l *Lookup) ProgramRequirements(ctx context.Context, program string) ([]models.ProgramRequirement, error) {
	return l.requirements.Get(ctx, program, func(ctx context.Context) ([]models.ProgramRequirement, error) {
		ctx, span := tracing.StartSpan(ctx, "rules.ProgramRequirements")
		defer span.End()

		reqs, err := l.svc.ProgramRequirements(ctx, program)
		if err != nil {
			l.logger.WithContext(ctx).WithError(err).WithField("program", program).Warn("failed to load program requirements")
			return nil, err
		}
		l.logger.WithContext(ctx).Debugf("loaded %d requirements for program %s", len(reqs), program)
		return reqs, nil
	})
}

// RequirementFor returns the rule matching a foundation requirement code of a
// program, or nil when the program has no such rule
func (l *Lookup) RequirementFor(ctx context.Context, program, foundationReq string) (*models.ProgramRequirement, error) {
	foundationReq = strings.TrimSpace(foundationReq)
	if foundationReq == "" {
		return nil, nil
	}
	reqs, err := l.ProgramRequirements(ctx, program)
	if err != nil {
		return nil, err
	}
	for i := range reqs {
		if reqs[i].FoundationReq == foundationReq {
			req := reqs[i]
			return &req, nil
		}
	}
	return nil, nil
}

// SpecialCase returns the special case for a non-numeric percentage label
func (l *Lookup) SpecialCase(ctx context.Context, label string) (*models.SpecialCase, error) {
	return l.specialCases.Get(ctx, label, func(ctx context.Context) (*models.SpecialCase, error) {
		return l.svc.SpecialCase(ctx, label)
	})
}

// School returns the school for a ministry code
func (l *Lookup) School(ctx context.Context, code string) (*models.School, error) {
	return l.schools.Get(ctx, code, func(ctx context.Context) (*models.School, error) {
		return l.svc.School(ctx, code)
	})
}

// Stats returns per-cache statistics keyed by cache name
func (l *Lookup) Stats() map[string]CacheStats {
	return map[string]CacheStats{
		l.requirements.name: l.requirements.Stats(),
		l.specialCases.name: l.specialCases.Stats(),
		l.schools.name:      l.schools.Stats(),
	}
}
