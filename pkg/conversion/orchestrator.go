// Package conversion runs the per-student conversion state machine.
package conversion

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fern/pkg/classifier"
	"github.com/Ramsey-B/fern/pkg/dataset"
	"github.com/Ramsey-B/fern/pkg/enrollment"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Classifier derives the load type of a raw record
type Classifier interface {
	Classify(rec *models.RawStudentRecord) (*classifier.Result, error)
}

// IdentityResolver maps a raw record to its destination identities
type IdentityResolver interface {
	Resolve(ctx context.Context, rec *models.RawStudentRecord) ([]models.StudentIdentity, error)
}

// DestinationStore is the graduation record store. Get returns nil, nil when
// the identity has no record yet.
type DestinationStore interface {
	Get(ctx context.Context, studentID uuid.UUID) (*models.GraduationStudentRecord, error)
	Upsert(ctx context.Context, studentID uuid.UUID, rec *models.GraduationStudentRecord) (*models.GraduationStudentRecord, error)
	RemoveAllForIdentity(ctx context.Context, studentID uuid.UUID) error
	UpdateStudentGradData(ctx context.Context, studentID uuid.UUID, data string) error
	SaveDocument(ctx context.Context, studentID uuid.UUID, kind string, content []byte) error
}

// EnrollmentSynchronizer creates dependent program enrollments
type EnrollmentSynchronizer interface {
	Sync(ctx context.Context, in enrollment.Input, ledger *enrollment.Ledger) (*enrollment.Result, error)
	RemoveAll(ctx context.Context, studentID uuid.UUID) error
	Enrollments(ctx context.Context, studentID uuid.UUID) ([]models.Enrollment, error)
}

// DatasetBuilder assembles graduation datasets
type DatasetBuilder interface {
	Build(ctx context.Context, in dataset.Input) (*models.GraduationDataset, error)
}

// CourseHistory supplies a student's raw course and assessment history
type CourseHistory interface {
	CoursesByKey(ctx context.Context, pen string) ([]models.CourseRow, error)
}

// DocumentRenderer renders a dataset into a printable document
type DocumentRenderer interface {
	Render(ctx context.Context, ds *models.GraduationDataset, kind string) ([]byte, error)
}

// EventPublisher announces converted students
type EventPublisher interface {
	PublishStudentConverted(ctx context.Context, evt models.StudentConvertedEvent) error
}

// Dependencies are the collaborators of an orchestrator. Renderer and Events may be nil.
type Dependencies struct {
	Classifier  Classifier
	Identities  IdentityResolver
	Destination DestinationStore
	Enrollments EnrollmentSynchronizer
	Datasets    DatasetBuilder
	History     CourseHistory
	Renderer    DocumentRenderer
	Events      EventPublisher
}

// RunOptions are the per-run switches
type RunOptions struct {
	RunID      string
	FullReload bool
}

// Orchestrator converts legacy records one at a time. It holds no per-record
// state and may be shared by partitions.
type Orchestrator struct {
	deps   Dependencies
	logger ectologger.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(deps Dependencies, logger ectologger.Logger) *Orchestrator {
	return &Orchestrator{deps: deps, logger: logger}
}

// passResult is what one pass produced, even when it failed part way
type passResult struct {
	upserted bool
	added    bool
	program  string
	optional []string
	career   []string
	state    State
}

// Convert runs every pass of one record and reports its outcome. Failures are
// recorded on the outcome and never returned.
func (o *Orchestrator) Convert(ctx context.Context, rec *models.RawStudentRecord, opts RunOptions) models.RecordOutcome {
	key := ""
	if rec != nil {
		key = strings.TrimSpace(rec.PEN)
	}
	outcome := models.RecordOutcome{Key: key}

	ctx, span := tracing.StartSpan(ctx, "Orchestrator.Convert", attribute.String("pen", key))
	defer span.End()

	logger := o.logger.WithContext(ctx).WithFields(map[string]any{"pen": key, "run_id": opts.RunID})

	fail := func(state State, err error) models.RecordOutcome {
		ce := Classify(state, key, err)
		outcome.Errors = append(outcome.Errors, ce.Entry())
		metrics.RecordError(string(ce.Kind))
		tracing.RecordError(span, err)
		logger.WithError(err).WithField("state", state.String()).Warn("record failed")
		return outcome
	}

	// Validate
	result, err := o.deps.Classifier.Classify(rec)
	if err != nil {
		return fail(StateValidate, err)
	}
	passes, err := PlanPasses(rec, result)
	if err != nil {
		return fail(StateValidate, err)
	}

	// ResolveIdentity
	identities, err := o.deps.Identities.Resolve(ctx, rec)
	if err != nil {
		return fail(StateResolveIdentity, err)
	}

	history, err := o.deps.History.CoursesByKey(ctx, key)
	if err != nil {
		return fail(StateResolveIdentity, err)
	}

	for _, id := range identities {
		idLogger := logger.WithField("student_id", id.ID.String())
		ledger := enrollment.NewLedger()

		if opts.FullReload {
			if err := o.reload(ctx, id.ID); err != nil {
				ce := Classify(StateUpsertDestination, key, err)
				outcome.Errors = append(outcome.Errors, ce.Entry())
				metrics.RecordError(string(ce.Kind))
				idLogger.WithError(err).Warn("full reload removal failed")
				continue
			}
		}

		for _, pass := range passes {
			res, err := o.runPass(ctx, id, pass, ledger, history, opts)
			if res.upserted {
				if res.added {
					outcome.Added = true
				} else {
					outcome.Updated = true
				}
				outcome.Programs = append(outcome.Programs, res.program)
			}
			outcome.OptionalPrograms = append(outcome.OptionalPrograms, res.optional...)
			outcome.CareerPrograms = append(outcome.CareerPrograms, res.career...)

			if err != nil {
				ce := Classify(res.state, key, err)
				outcome.Errors = append(outcome.Errors, ce.Entry())
				metrics.RecordError(string(ce.Kind))
				idLogger.WithError(err).WithFields(map[string]any{
					"pass":  pass.Number,
					"state": res.state.String(),
				}).Warn("pass failed")
			}
		}
	}

	status := "converted"
	if len(outcome.Errors) > 0 {
		status = "errored"
	}
	metrics.RecordRecord(result.LoadType.String(), status)
	return outcome
}

func (o *Orchestrator) reload(ctx context.Context, studentID uuid.UUID) error {
	if err := o.deps.Destination.RemoveAllForIdentity(ctx, studentID); err != nil {
		return err
	}
	return o.deps.Enrollments.RemoveAll(ctx, studentID)
}

// runPass walks the state machine once for one identity
func (o *Orchestrator) runPass(
	ctx context.Context,
	id models.StudentIdentity,
	pass PassInput,
	ledger *enrollment.Ledger,
	history []models.CourseRow,
	opts RunOptions,
) (passResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.runPass",
		attribute.Int("pass", pass.Number),
		attribute.String("program", pass.Program),
		attribute.String("load_type", pass.LoadType.String()),
	)
	defer span.End()

	res := passResult{program: pass.Program, state: StateUpsertDestination}
	var (
		saved *models.GraduationStudentRecord
		ds    *models.GraduationDataset
	)

	for res.state != StateDone {
		var err error
		switch res.state {
		case StateUpsertDestination:
			saved, err = o.upsert(ctx, id.ID, pass, &res)
		case StateSyncDependents:
			err = o.syncDependents(ctx, id.ID, pass, ledger, history, &res)
		case StateBuildDataset:
			ds, err = o.buildDataset(ctx, id, saved, pass, history)
		case StateTriggerDocumentGeneration:
			err = o.generateDocuments(ctx, id.ID, pass, ds)
		}
		if err != nil {
			tracing.RecordError(span, err)
			return res, err
		}
		res.state = res.state.next(pass.Graduated())
	}

	o.publish(ctx, id, pass, res, opts)
	return res, nil
}

func (o *Orchestrator) upsert(ctx context.Context, studentID uuid.UUID, pass PassInput, res *passResult) (*models.GraduationStudentRecord, error) {
	existing, err := o.deps.Destination.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}

	rec := destinationRecord(existing, studentID, pass)
	saved, err := o.deps.Destination.Upsert(ctx, studentID, rec)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		saved = rec
	}

	res.upserted = true
	res.added = existing == nil
	if res.added {
		metrics.RecordUpsert("added")
	} else {
		metrics.RecordUpsert("updated")
	}
	return saved, nil
}

func (o *Orchestrator) syncDependents(
	ctx context.Context,
	studentID uuid.UUID,
	pass PassInput,
	ledger *enrollment.Ledger,
	history []models.CourseRow,
	res *passResult,
) error {
	created, err := o.deps.Enrollments.Sync(ctx, enrollment.Input{
		StudentID:      studentID,
		Program:        pass.Program,
		CompletionDate: pass.CompletionDate,
		Graduated:      pass.Graduated(),
		SkipOptional:   pass.SkipOptional,
		EnglishCert:    pass.EnglishCert,
		SchoolOfRecord: pass.SchoolOfRecord,
		AddOnCodes:     pass.AddOnCodes,
		Courses:        history,
	}, ledger)
	// enrollments created before a failure still count
	if created != nil {
		res.optional = created.OptionalPrograms
		res.career = created.CareerPrograms
	}
	return err
}

func (o *Orchestrator) buildDataset(
	ctx context.Context,
	id models.StudentIdentity,
	saved *models.GraduationStudentRecord,
	pass PassInput,
	history []models.CourseRow,
) (*models.GraduationDataset, error) {
	enrolled, err := o.deps.Enrollments.Enrollments(ctx, id.ID)
	if err != nil {
		return nil, err
	}

	ds, err := o.deps.Datasets.Build(ctx, dataset.Input{
		Record:           saved,
		Identity:         id,
		History:          history,
		OptionalPrograms: enrolled,
		GradMessage:      pass.GradMessage,
	})
	if err != nil {
		return nil, err
	}

	data, err := dataset.Serialize(ds)
	if err != nil {
		return nil, err
	}
	if err := o.deps.Destination.UpdateStudentGradData(ctx, id.ID, data); err != nil {
		return nil, err
	}
	return ds, nil
}

func (o *Orchestrator) generateDocuments(ctx context.Context, studentID uuid.UUID, pass PassInput, ds *models.GraduationDataset) error {
	if o.deps.Renderer == nil || ds == nil {
		return nil
	}

	codes := ectolinq.Map(ds.OptionalPrograms, func(s models.OptionalProgramStatus) string { return s.Code })
	kinds := append([]string{rules.DocumentTranscript},
		rules.CertificateKinds(pass.Program, ectolinq.Contains(codes, rules.DualDogwood), ectolinq.Contains(codes, rules.FrenchSCCP))...)

	for _, kind := range kinds {
		content, err := o.deps.Renderer.Render(ctx, ds, kind)
		if err != nil {
			metrics.RecordDocument(kind, "failure")
			return err
		}
		if err := o.deps.Destination.SaveDocument(ctx, studentID, kind, content); err != nil {
			metrics.RecordDocument(kind, "failure")
			return err
		}
		metrics.RecordDocument(kind, "success")
	}
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, id models.StudentIdentity, pass PassInput, res passResult, opts RunOptions) {
	if o.deps.Events == nil {
		return
	}
	evt := models.StudentConvertedEvent{
		RunID:     opts.RunID,
		PEN:       id.PEN,
		StudentID: id.ID.String(),
		Program:   pass.Program,
		Pass:      pass.Number,
		LoadType:  pass.Original.String(),
		Added:     res.added,
		Timestamp: time.Now().UTC(),
	}
	if err := o.deps.Events.PublishStudentConverted(ctx, evt); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithField("pen", id.PEN).Warn("failed to publish student converted event")
	}
}
