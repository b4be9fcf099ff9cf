// Package conversiontest provides in-memory implementations of the services the
// conversion pipeline consumes.
package conversiontest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ErrInjected is returned by fakes configured to fail
var ErrInjected = errors.New("injected failure")

// Identities is an in-memory identity registry
type Identities struct {
	mu         sync.Mutex
	byPEN      map[string][]models.StudentIdentity
	FailFor    map[string]error
	Registered int
}

func NewIdentities() *Identities {
	return &Identities{byPEN: make(map[string][]models.StudentIdentity), FailFor: make(map[string]error)}
}

// Add registers identities for a natural key and returns them
func (f *Identities) Add(pen string, count int) []models.StudentIdentity {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < count; i++ {
		f.byPEN[pen] = append(f.byPEN[pen], models.StudentIdentity{ID: uuid.New(), PEN: pen})
	}
	return append([]models.StudentIdentity(nil), f.byPEN[pen]...)
}

func (f *Identities) FindByNaturalKey(_ context.Context, pen string) ([]models.StudentIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[pen]; ok {
		return nil, err
	}
	return append([]models.StudentIdentity(nil), f.byPEN[pen]...), nil
}

func (f *Identities) Register(_ context.Context, candidate models.StudentIdentity) (*models.StudentIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	candidate.ID = uuid.New()
	f.byPEN[candidate.PEN] = append(f.byPEN[candidate.PEN], candidate)
	f.Registered++
	return &candidate, nil
}

// Destination is an in-memory graduation record store
type Destination struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*models.GraduationStudentRecord
	documents map[uuid.UUID]map[string][]byte
	Upserts   []models.GraduationStudentRecord
	Removed   []uuid.UUID
	FailGet   error
	FailWrite error
	FailFor   map[uuid.UUID]error
}

func NewDestination() *Destination {
	return &Destination{
		records:   make(map[uuid.UUID]*models.GraduationStudentRecord),
		documents: make(map[uuid.UUID]map[string][]byte),
		FailFor:   make(map[uuid.UUID]error),
	}
}

// Put seeds an existing record
func (f *Destination) Put(rec models.GraduationStudentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.StudentID] = &rec
}

// Record returns a copy of the stored record
func (f *Destination) Record(id uuid.UUID) (models.GraduationStudentRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return models.GraduationStudentRecord{}, false
	}
	return *rec, true
}

// Documents returns the stored document kinds and content of a student
func (f *Destination) Documents(id uuid.UUID) map[string][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]byte, len(f.documents[id]))
	for k, v := range f.documents[id] {
		out[k] = v
	}
	return out
}

// UpsertsFor returns the upserts made for one identity
func (f *Destination) UpsertsFor(id uuid.UUID) []models.GraduationStudentRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.GraduationStudentRecord
	for _, u := range f.Upserts {
		if u.StudentID == id {
			out = append(out, u)
		}
	}
	return out
}

func (f *Destination) Get(_ context.Context, id uuid.UUID) (*models.GraduationStudentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailGet != nil {
		return nil, f.FailGet
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (f *Destination) Upsert(_ context.Context, id uuid.UUID, rec *models.GraduationStudentRecord) (*models.GraduationStudentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[id]; ok {
		return nil, err
	}
	if f.FailWrite != nil {
		return nil, f.FailWrite
	}
	stored := *rec
	f.records[id] = &stored
	f.Upserts = append(f.Upserts, stored)
	copied := stored
	return &copied, nil
}

func (f *Destination) RemoveAllForIdentity(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	delete(f.documents, id)
	f.Removed = append(f.Removed, id)
	return nil
}

func (f *Destination) UpdateStudentGradData(_ context.Context, id uuid.UUID, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "student %s not found", id)
	}
	rec.StudentGradData = data
	return nil
}

func (f *Destination) SaveDocument(_ context.Context, id uuid.UUID, kind string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.documents[id] == nil {
		f.documents[id] = make(map[string][]byte)
	}
	f.documents[id][kind] = content
	return nil
}

// Enrollments is an in-memory optional and career program store
type Enrollments struct {
	mu      sync.Mutex
	items   map[uuid.UUID][]models.Enrollment
	Creates int
	// FailFor makes Create fail for the given program codes
	FailFor map[string]error
}

func NewEnrollments() *Enrollments {
	return &Enrollments{items: make(map[uuid.UUID][]models.Enrollment), FailFor: map[string]error{}}
}

func (f *Enrollments) List(_ context.Context, id uuid.UUID) ([]models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Enrollment(nil), f.items[id]...), nil
}

func (f *Enrollments) Create(_ context.Context, e models.Enrollment) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[e.Code]; ok {
		return nil, err
	}
	for _, existing := range f.items[e.StudentID] {
		if existing.Key() == e.Key() {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict, "enrollment %s already exists", e.Key())
		}
	}
	e.ID = uuid.New()
	f.items[e.StudentID] = append(f.items[e.StudentID], e)
	f.Creates++
	return &e, nil
}

func (f *Enrollments) Remove(_ context.Context, id uuid.UUID, kind models.EnrollmentKind, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := make([]models.Enrollment, 0, len(f.items[id]))
	for _, e := range f.items[id] {
		if e.Kind != kind || e.Code != code {
			kept = append(kept, e)
		}
	}
	f.items[id] = kept
	return nil
}

// Count returns how many enrollments of a code a student holds
func (f *Enrollments) Count(id uuid.UUID, code string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.items[id] {
		if e.Code == code {
			n++
		}
	}
	return n
}

// Rules is an in-memory rule and school service
type Rules struct {
	mu           sync.Mutex
	Requirements map[string][]models.ProgramRequirement
	SpecialCases map[string]models.SpecialCase
	Schools      map[string]models.School
	Calls        int
}

func NewRules() *Rules {
	return &Rules{
		Requirements: map[string][]models.ProgramRequirement{},
		SpecialCases: map[string]models.SpecialCase{
			"AEG": {Code: "AEG", Label: "AEG", Description: "Aegrotat"},
		},
		Schools: map[string]models.School{
			"03939000": {Code: "03939000", Name: "Test Secondary", Category: "01"},
			"09399012": {Code: "09399012", Name: "Ecole Test", Category: "01"},
		},
	}
}

func (f *Rules) ProgramRequirements(_ context.Context, program string) ([]models.ProgramRequirement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	return f.Requirements[program], nil
}

func (f *Rules) SpecialCase(_ context.Context, label string) (*models.SpecialCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	sc, ok := f.SpecialCases[label]
	if !ok {
		return nil, nil
	}
	return &sc, nil
}

func (f *Rules) School(_ context.Context, code string) (*models.School, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	s, ok := f.Schools[code]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// History is an in-memory course and assessment history service
type History struct {
	mu          sync.Mutex
	Courses     map[string][]models.CourseRow
	Assessments map[string][]models.AssessmentRow
	FailFor     map[string]error
}

func NewHistory() *History {
	return &History{
		Courses:     make(map[string][]models.CourseRow),
		Assessments: make(map[string][]models.AssessmentRow),
		FailFor:     make(map[string]error),
	}
}

func (f *History) CoursesByKey(_ context.Context, pen string) ([]models.CourseRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[pen]; ok {
		return nil, err
	}
	return append([]models.CourseRow(nil), f.Courses[pen]...), nil
}

func (f *History) AssessmentsByKeyAndCode(_ context.Context, pen, code string) ([]models.AssessmentRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AssessmentRow
	for _, a := range f.Assessments[pen] {
		if a.AssessmentCode == code {
			out = append(out, a)
		}
	}
	return out, nil
}

// Renderer records render calls
type Renderer struct {
	mu    sync.Mutex
	Kinds []string
	Fail  error
}

func (f *Renderer) Render(_ context.Context, ds *models.GraduationDataset, kind string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return nil, f.Fail
	}
	f.Kinds = append(f.Kinds, kind)
	return []byte(fmt.Sprintf("%s:%s:%s", kind, ds.Student.PEN, ds.Program)), nil
}

// Events records published events
type Events struct {
	mu        sync.Mutex
	Converted []models.StudentConvertedEvent
	Completed []models.RunCompletedEvent
	Fail      error
}

func (f *Events) PublishStudentConverted(_ context.Context, evt models.StudentConvertedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return f.Fail
	}
	f.Converted = append(f.Converted, evt)
	return nil
}

func (f *Events) PublishRunCompleted(_ context.Context, evt models.RunCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return f.Fail
	}
	f.Completed = append(f.Completed, evt)
	return nil
}

// Source is an in-memory legacy record source
type Source struct {
	mu      sync.Mutex
	records map[string]models.RawStudentRecord
	keys    []string
	FailFor map[string]error
}

func NewSource(records ...models.RawStudentRecord) *Source {
	s := &Source{records: make(map[string]models.RawStudentRecord), FailFor: make(map[string]error)}
	for _, r := range records {
		s.records[r.PEN] = r
		s.keys = append(s.keys, r.PEN)
	}
	return s
}

func (f *Source) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys), nil
}

func (f *Source) ListKeys(_ context.Context, offset, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sorted := append([]string(nil), f.keys...)
	sort.Strings(sorted)
	if offset >= len(sorted) {
		return nil, nil
	}
	end := offset + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end], nil
}

func (f *Source) GetByKey(_ context.Context, pen string) (*models.RawStudentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[pen]; ok {
		return nil, err
	}
	rec, ok := f.records[pen]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "legacy student %s not found", pen)
	}
	return &rec, nil
}
