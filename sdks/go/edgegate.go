// Package edgegate provides a Go client for the edge gateway HTTP API.
//
// The client covers authentication, the bulk upload workflow and generic
// calls to any gateway route. Every gateway failure is decoded from the
// uniform error body into an *APIError. It uses only the Go standard
// library.
//
// Quick start:
//
//	// Set EDGE_GATE_SERVER_ADDR (and optionally EDGE_GATE_TOKEN), then:
//	client := edgegate.NewClient()
//
//	if _, err := client.Login(ctx, "seller@example.com", "secret"); err != nil {
//	    var apiErr *edgegate.APIError
//	    if errors.As(err, &apiErr) {
//	        fmt.Printf("login failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
//	    }
//	}
//
//	result, err := client.SubmitBulkUpload(ctx, edgegate.FileFromPath("catalog.xlsx"))
//	status, err := client.WaitForJob(ctx, result.JobID)
package edgegate

import (
	"encoding/json"
	"time"
)

// Role is a gateway user role.
type Role string

const (
	RoleSeller     Role = "SELLER"
	RoleSupervisor Role = "SUPERVISOR"
	RoleAdmin      Role = "ADMIN"
)

// Identity is the caller as verified by the gateway.
type Identity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Subscription tells where progress events for a job are published.
type Subscription struct {
	// Transport is "websocket".
	Transport string `json:"transport"`
	// URL is the gateway path of the progress websocket.
	URL string `json:"url"`
	// Channel is the broker channel the gateway relays.
	Channel string `json:"channel"`
}

// SubmitResult is the answer to a bulk upload.
type SubmitResult struct {
	JobID string `json:"jobId"`
	// Status is "processing" or "queued_fallback".
	Status string `json:"status"`
	// TransportUsed is "HTTP_DIRECT" or "BROKER_FALLBACK".
	TransportUsed string       `json:"transportUsed"`
	Subscription  Subscription `json:"subscription"`
	FileCount     int          `json:"fileCount"`
	// Error is the direct transport failure that caused the fallback.
	Error string `json:"error,omitempty"`
}

// Queued reports whether the job went through the broker fallback.
func (r *SubmitResult) Queued() bool {
	return r.Status == "queued_fallback"
}

// JobStatus is the processing backend's status document. Raw keeps every
// field the backend sent.
type JobStatus struct {
	JobID    string  `json:"jobId"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress,omitempty"`
	Error    string  `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Terminal reports whether the status is final.
func (s *JobStatus) Terminal() bool {
	switch s.Status {
	case "COMPLETED", "FAILED", "CANCELLED", "completed", "failed", "cancelled":
		return true
	}
	return false
}

// JobRecord is one entry of the gateway's submission ledger.
type JobRecord struct {
	JobID           string    `json:"jobId"`
	TransportUsed   string    `json:"transportUsed"`
	SubmittedStatus string    `json:"submittedStatus"`
	FileCount       int       `json:"fileCount"`
	PrimaryError    string    `json:"primaryError,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
