package edgegate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client talks to the edge gateway. It is safe for concurrent use.
type Client struct {
	serverAddr   string
	apiPrefix    string
	timeout      time.Duration
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a new gateway client.
// It reads configuration from EDGE_GATE_* environment variables by default.
// Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr:   os.Getenv("EDGE_GATE_SERVER_ADDR"),
		apiPrefix:    envOrDefault("EDGE_GATE_API_PREFIX", "/api/v1"),
		token:        os.Getenv("EDGE_GATE_TOKEN"),
		timeout:      parseDurationEnv("EDGE_GATE_TIMEOUT", 30*time.Second),
		pollInterval: 2 * time.Second,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// Token returns the bearer token currently in use.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login authenticates with email and password. On success the returned
// access token is kept and sent on every later request. The raw login
// answer is returned as well since the auth backend may add fields.
func (c *Client) Login(ctx context.Context, email, password string) (json.RawMessage, error) {
	var raw json.RawMessage
	payload := map[string]string{"email": email, "password": password}
	if err := c.Do(ctx, http.MethodPost, "/auth/login", payload, &raw); err != nil {
		return nil, err
	}

	var tokens struct {
		AccessToken string `json:"access_token"`
		Camel       string `json:"accessToken"`
		Token       string `json:"token"`
	}
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return raw, fmt.Errorf("edgegate: decode login response: %w", err)
	}
	switch {
	case tokens.AccessToken != "":
		c.setToken(tokens.AccessToken)
	case tokens.Camel != "":
		c.setToken(tokens.Camel)
	case tokens.Token != "":
		c.setToken(tokens.Token)
	default:
		return raw, errors.New("edgegate: login response carries no access token")
	}
	return raw, nil
}

// Profile returns the identity the gateway resolved for the current token.
func (c *Client) Profile(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.Do(ctx, http.MethodGet, "/auth/profile", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// UploadFile is one file of a bulk upload.
type UploadFile struct {
	// Name is the original file name sent to the gateway.
	Name string
	// ContentType defaults to application/octet-stream.
	ContentType string
	// Open returns the file content. It is called once per upload.
	Open func() (io.ReadCloser, error)
}

// FileFromPath builds an UploadFile reading from the local file at path.
func FileFromPath(path string) UploadFile {
	return UploadFile{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// FileFromBytes builds an in-memory UploadFile.
func FileFromBytes(name string, data []byte) UploadFile {
	return UploadFile{
		Name: name,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

// SubmitBulkUpload sends files as one catalog processing job.
func (c *Client) SubmitBulkUpload(ctx context.Context, files ...UploadFile) (*SubmitResult, error) {
	if len(files) == 0 {
		return nil, errors.New("edgegate: at least one file is required")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeFiles(mw, files))
	}()

	var result SubmitResult
	if err := c.doRaw(ctx, http.MethodPost, "/catalog/bulk-upload", pr, mw.FormDataContentType(), &result); err != nil {
		// Unblock the writer when the request failed before draining the pipe.
		pr.CloseWithError(err)
		return nil, err
	}
	return &result, nil
}

func writeFiles(mw *multipart.Writer, files []UploadFile) error {
	for _, f := range files {
		if err := writeFile(mw, f); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFile(mw *multipart.Writer, f UploadFile) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(map[string][]string, 2)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name)}
	h["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, rc)
	return err
}

// JobStatus fetches the current status of a job. A status the processing
// backend could not provide comes back with Status "unknown".
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/status", nil, &raw); err != nil {
		return nil, err
	}
	var status JobStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("edgegate: decode job status: %w", err)
	}
	status.Raw = raw
	return &status, nil
}

// JobResults fetches the results document of a job as sent by the
// processing backend.
func (c *Client) JobResults(ctx context.Context, jobID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID)+"/results", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// RecentJobs lists the latest submissions. Requires an ADMIN token.
func (c *Client) RecentJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	path := "/jobs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var records []JobRecord
	if err := c.Do(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// WaitForJob polls the job status until it is terminal, ctx is done or the
// client timeout elapses. Transient poll failures are logged and retried.
func (c *Client) WaitForJob(ctx context.Context, jobID string) (*JobStatus, error) {
	deadline := time.Now().Add(c.timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var last *JobStatus
	for {
		status, err := c.JobStatus(ctx, jobID)
		switch {
		case err == nil:
			last = status
			if status.Terminal() {
				return status, nil
			}
		case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
			return nil, err
		default:
			c.logger.Debug("job status poll failed", "job_id", jobID, "error", err)
		}

		if time.Now().After(deadline) {
			return last, &JobTimeoutError{JobID: jobID, Last: last}
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Do sends a JSON request to a gateway route and decodes the answer into
// result. path is relative to the API prefix. body and result may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("edgegate: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.doRaw(ctx, method, path, reader, contentType, result)
}

func (c *Client) doRaw(ctx context.Context, method, path string, body io.Reader, contentType string, result any) error {
	if c.serverAddr == "" {
		return &ServerUnreachableError{Cause: errors.New("server address not configured (set EDGE_GATE_SERVER_ADDR)")}
	}

	endpoint := strings.TrimRight(c.serverAddr, "/") + "/" + strings.Trim(c.apiPrefix, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("edgegate: create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ServerUnreachableError{Cause: err}
	}
	defer resp.Body.Close()

	// Error bodies are small; cap reads so a misbehaving proxy cannot
	// exhaust memory.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return &ServerUnreachableError{Cause: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if result == nil || len(data) == 0 {
		return nil
	}
	if raw, ok := result.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("edgegate: decode response: %w", err)
	}
	return nil
}

// envOrDefault returns the environment variable value or the default.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDurationEnv parses a duration from an environment variable.
func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
