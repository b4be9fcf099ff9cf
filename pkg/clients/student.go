package clients

import (
	"context"
	"net/http"

	"github.com/Ramsey-B/fern/pkg/models"
)

// StudentClient talks to the student identity service. It implements identity.Service.
type StudentClient struct {
	client *Client
}

// NewStudentClient creates a new student client
func NewStudentClient(client *Client) *StudentClient {
	return &StudentClient{client: client}
}

// FindByNaturalKey returns every identity registered for a PEN. A 404 is an empty result.
func (c *StudentClient) FindByNaturalKey(ctx context.Context, pen string) ([]models.StudentIdentity, error) {
	var out []models.StudentIdentity
	err := c.client.Do(ctx, http.MethodGet, "/api/v1/student/pen/"+escape(pen), nil, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Register creates a new identity from the candidate
func (c *StudentClient) Register(ctx context.Context, candidate models.StudentIdentity) (*models.StudentIdentity, error) {
	var out models.StudentIdentity
	if err := c.client.Do(ctx, http.MethodPost, "/api/v1/student", nil, candidate, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
