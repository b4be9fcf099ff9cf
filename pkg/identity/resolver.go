// Package identity maps legacy natural keys to destination student identities.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/classifier"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ErrNoIdentity is returned when a natural key matches no identity
var ErrNoIdentity = errors.New("no identity found for natural key")

// Service is the identity registry
type Service interface {
	FindByNaturalKey(ctx context.Context, pen string) ([]models.StudentIdentity, error)
	Register(ctx context.Context, candidate models.StudentIdentity) (*models.StudentIdentity, error)
}

// Resolver resolves natural keys, optionally registering unknown students
type Resolver struct {
	svc             Service
	logger          ectologger.Logger
	registerMissing bool
}

// NewResolver creates a new identity resolver
func NewResolver(svc Service, logger ectologger.Logger, registerMissing bool) *Resolver {
	return &Resolver{
		svc:             svc,
		logger:          logger,
		registerMissing: registerMissing,
	}
}

// Resolve returns every identity matching the record's natural key.
// A legacy key may legitimately match more than one identity.
func (r *Resolver) Resolve(ctx context.Context, rec *models.RawStudentRecord) ([]models.StudentIdentity, error) {
	ctx, span := tracing.StartSpan(ctx, "IdentityResolver.Resolve")
	defer span.End()

	pen := strings.TrimSpace(rec.PEN)
	identities, err := r.svc.FindByNaturalKey(ctx, pen)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to find identity for %s: %w", pen, err)
	}
	if len(identities) > 0 {
		if len(identities) > 1 {
			r.logger.WithContext(ctx).WithField("pen", pen).Warnf("natural key matched %d identities", len(identities))
		}
		return identities, nil
	}

	if !r.registerMissing {
		return nil, ErrNoIdentity
	}

	candidate := models.StudentIdentity{
		PEN:            pen,
		LegalFirstName: strings.TrimSpace(rec.LegalFirstName),
		LegalLastName:  strings.TrimSpace(rec.LegalLastName),
	}
	if rec.BirthDate != "" {
		dob, err := classifier.ParseBirthDate(rec.BirthDate)
		if err != nil {
			return nil, err
		}
		candidate.BirthDate = dob
	}

	registered, err := r.svc.Register(ctx, candidate)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("failed to register identity for %s: %w", pen, err)
	}
	if registered == nil {
		return nil, ErrNoIdentity
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"pen":        pen,
		"student_id": registered.ID.String(),
	}).Info("registered new student identity")

	return []models.StudentIdentity{*registered}, nil
}
