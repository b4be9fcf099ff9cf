package clients

import (
	"context"
	"net/http"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ReportClient talks to the document generation service. It implements the
// orchestrator's document renderer.
type ReportClient struct {
	client *Client
}

// NewReportClient creates a new report client
func NewReportClient(client *Client) *ReportClient {
	return &ReportClient{client: client}
}

type renderRequest struct {
	ReportType string                    `json:"reportType"`
	Data       *models.GraduationDataset `json:"data"`
}

// Render renders a dataset into the requested document kind
func (c *ReportClient) Render(ctx context.Context, ds *models.GraduationDataset, kind string) ([]byte, error) {
	return c.client.DoRaw(ctx, http.MethodPost, "/api/v1/reports/"+escape(kind), nil, renderRequest{ReportType: kind, Data: ds})
}
