// Package job contains the domain types of the bulk file-submission
// workflow: what a submission carries, which transport delivered it, and
// the ports it is delivered through.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is the gateway-side status reported for a submission.
// PROCESSING and later states belong to the processing backend.
type Status string

const (
	// StatusProcessing means the processing backend accepted the job directly.
	StatusProcessing Status = "processing"
	// StatusQueuedFallback means the job was emitted on the broker instead.
	StatusQueuedFallback Status = "queued_fallback"
	// StatusUnknown is returned by a status query the backend could not answer.
	StatusUnknown Status = "unknown"
	// StatusError is returned by a results query the backend could not answer.
	StatusError Status = "error"
)

// Transport identifies how a submission reached the processing backend.
type Transport string

const (
	TransportHTTPDirect     Transport = "HTTP_DIRECT"
	TransportBrokerFallback Transport = "BROKER_FALLBACK"
)

// ErrNoFiles is returned by Submit when the batch is empty.
var ErrNoFiles = errors.New("at least one file is required")

// File describes one uploaded file already stored on local disk.
type File struct {
	Path         string `json:"path"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// Request is the job metadata handed to either transport. The same value
// is sent on the direct path and emitted on the fallback path so the
// downstream backend can deduplicate by JobID.
type Request struct {
	JobID       string    `json:"jobId"`
	Files       []File    `json:"files"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Subscription tells the caller where asynchronous progress for a job is
// published.
type Subscription struct {
	Transport string `json:"transport"`
	URL       string `json:"url"`
	Channel   string `json:"channel"`
}

// SubmitResult is the response of a bulk submission.
type SubmitResult struct {
	JobID         string       `json:"jobId"`
	Status        Status       `json:"status"`
	TransportUsed Transport    `json:"transportUsed"`
	Subscription  Subscription `json:"subscription"`
	FileCount     int          `json:"fileCount"`
	// Error carries the primary transport failure on the fallback path.
	Error string `json:"error,omitempty"`
}

// QueryFailure is the best-effort body returned when a status or results
// query cannot be answered by the processing backend.
type QueryFailure struct {
	JobID  string `json:"jobId"`
	Status Status `json:"status"`
	Error  string `json:"error"`
}

// Record is a ledger row: the facts of one submission as decided by the
// gateway. It never holds job status beyond the submission outcome.
type Record struct {
	JobID        string    `json:"jobId"`
	Transport    Transport `json:"transportUsed"`
	Status       Status    `json:"submittedStatus"`
	FileCount    int       `json:"fileCount"`
	PrimaryError string    `json:"primaryError,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DirectTransport is the processing backend's direct HTTP interface.
type DirectTransport interface {
	// Submit hands a job to the backend. Any error means the job was not
	// accepted as far as the gateway can tell.
	Submit(ctx context.Context, req Request) error
	// Status fetches the backend's current status document for a job.
	Status(ctx context.Context, jobID string) (json.RawMessage, error)
	// Results fetches the backend's results document for a job.
	Results(ctx context.Context, jobID string) (json.RawMessage, error)
}

// Ledger persists submission records for operators.
type Ledger interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
}
