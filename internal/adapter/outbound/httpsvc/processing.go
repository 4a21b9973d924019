package httpsvc

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/Sentinel-Gate/edgegate/internal/domain/job"
)

// ProcessingClient is the direct transport to the catalog processing
// backend.
type ProcessingClient struct {
	client *Client
}

// NewProcessingClient wraps client as a job.DirectTransport.
func NewProcessingClient(client *Client) *ProcessingClient {
	return &ProcessingClient{client: client}
}

// Submit posts the job to /jobs.
func (p *ProcessingClient) Submit(ctx context.Context, req job.Request) error {
	_, err := p.client.PostJSON(ctx, "/jobs", req)
	return err
}

// Status fetches /jobs/{id}/status.
func (p *ProcessingClient) Status(ctx context.Context, jobID string) (json.RawMessage, error) {
	return p.client.GetJSON(ctx, "/jobs/"+url.PathEscape(jobID)+"/status", nil)
}

// Results fetches /jobs/{id}/results.
func (p *ProcessingClient) Results(ctx context.Context, jobID string) (json.RawMessage, error) {
	return p.client.GetJSON(ctx, "/jobs/"+url.PathEscape(jobID)+"/results", nil)
}

var _ job.DirectTransport = (*ProcessingClient)(nil)
