package clients

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ProgramClient talks to the optional and career program service. It implements enrollment.Store.
type ProgramClient struct {
	client *Client
}

// NewProgramClient creates a new program client
func NewProgramClient(client *Client) *ProgramClient {
	return &ProgramClient{client: client}
}

func programsPath(id uuid.UUID, kind models.EnrollmentKind) string {
	return "/api/v1/student/" + id.String() + "/programs/" + strings.ToLower(string(kind))
}

// List returns every optional and career enrollment of a student
func (c *ProgramClient) List(ctx context.Context, studentID uuid.UUID) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, kind := range []models.EnrollmentKind{models.EnrollmentKindOptional, models.EnrollmentKindCareer} {
		var page []models.Enrollment
		err := c.client.Do(ctx, http.MethodGet, programsPath(studentID, kind), nil, nil, &page)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for i := range page {
			page[i].StudentID = studentID
			page[i].Kind = kind
		}
		out = append(out, page...)
	}
	return out, nil
}

// Create adds an enrollment
func (c *ProgramClient) Create(ctx context.Context, e models.Enrollment) (*models.Enrollment, error) {
	var out models.Enrollment
	if err := c.client.Do(ctx, http.MethodPost, programsPath(e.StudentID, e.Kind), nil, e, &out); err != nil {
		return nil, err
	}
	out.StudentID = e.StudentID
	out.Kind = e.Kind
	return &out, nil
}

// Remove deletes one enrollment. Removing an absent enrollment is not an error.
func (c *ProgramClient) Remove(ctx context.Context, studentID uuid.UUID, kind models.EnrollmentKind, code string) error {
	err := c.client.Do(ctx, http.MethodDelete, programsPath(studentID, kind)+"/"+escape(code), nil, nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}
