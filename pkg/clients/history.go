package clients

import (
	"context"
	"net/http"

	"github.com/Ramsey-B/fern/pkg/models"
)

// HistoryClient talks to the legacy course and assessment history service
type HistoryClient struct {
	client *Client
}

// NewHistoryClient creates a new history client
func NewHistoryClient(client *Client) *HistoryClient {
	return &HistoryClient{client: client}
}

// CoursesByKey returns the raw course and assessment rows of a student
func (c *HistoryClient) CoursesByKey(ctx context.Context, pen string) ([]models.CourseRow, error) {
	var out []models.CourseRow
	err := c.client.Do(ctx, http.MethodGet, "/api/v1/history/courses/"+escape(pen), nil, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AssessmentsByKeyAndCode returns assessment attempts for one assessment code
func (c *HistoryClient) AssessmentsByKeyAndCode(ctx context.Context, pen, code string) ([]models.AssessmentRow, error) {
	var out []models.AssessmentRow
	err := c.client.Do(ctx, http.MethodGet, "/api/v1/history/assessments/"+escape(pen)+"/"+escape(code), nil, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
