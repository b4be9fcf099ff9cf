package clients

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// GradClient talks to the graduation record service. It implements the
// orchestrator's destination store.
type GradClient struct {
	client *Client
}

// NewGradClient creates a new graduation record client
func NewGradClient(client *Client) *GradClient {
	return &GradClient{client: client}
}

type gradDataRequest struct {
	StudentGradData string `json:"studentGradData"`
}

type documentRequest struct {
	DocumentType string `json:"documentType"`
	Content      string `json:"content"`
}

func studentPath(id uuid.UUID) string {
	return "/api/v1/student/" + id.String()
}

// Get returns the destination record, or nil when the student has none
func (c *GradClient) Get(ctx context.Context, studentID uuid.UUID) (*models.GraduationStudentRecord, error) {
	var out models.GraduationStudentRecord
	err := c.client.Do(ctx, http.MethodGet, studentPath(studentID), nil, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Upsert creates or replaces the destination record
func (c *GradClient) Upsert(ctx context.Context, studentID uuid.UUID, rec *models.GraduationStudentRecord) (*models.GraduationStudentRecord, error) {
	var out models.GraduationStudentRecord
	if err := c.client.Do(ctx, http.MethodPost, studentPath(studentID), nil, rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveAllForIdentity deletes the record and everything hanging off it
func (c *GradClient) RemoveAllForIdentity(ctx context.Context, studentID uuid.UUID) error {
	err := c.client.Do(ctx, http.MethodDelete, studentPath(studentID), nil, nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// UpdateStudentGradData stores the serialized graduation dataset on the record
func (c *GradClient) UpdateStudentGradData(ctx context.Context, studentID uuid.UUID, data string) error {
	return c.client.Do(ctx, http.MethodPut, studentPath(studentID)+"/graddata", nil, gradDataRequest{StudentGradData: data}, nil)
}

// SaveDocument stores a rendered document against the student
func (c *GradClient) SaveDocument(ctx context.Context, studentID uuid.UUID, kind string, content []byte) error {
	req := documentRequest{DocumentType: kind, Content: base64.StdEncoding.EncodeToString(content)}
	return c.client.Do(ctx, http.MethodPost, studentPath(studentID)+"/document/"+escape(kind), nil, req, nil)
}
