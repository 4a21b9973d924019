package httpsvc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
	"github.com/Sentinel-Gate/edgegate/internal/domain/job"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient("sales", srv.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewClient_RejectsScheme(t *testing.T) {
	if _, err := NewClient("sales", "ftp://x", time.Second); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestClient_URL(t *testing.T) {
	c, _ := NewClient("sales", "http://sales:8000/api/", time.Second)
	got := c.URL("/health", url.Values{"q": {"a b"}})
	if got != "http://sales:8000/api/health?q=a+b" {
		t.Errorf("URL() = %q", got)
	}
}

func TestClient_GetJSON(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))

	got, err := c.GetJSON(context.Background(), "/health", nil)
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if string(got) != `{"status":"ok"}` {
		t.Errorf("GetJSON() = %s", got)
	}
}

func TestClient_EmptyBodyIsNull(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	got, err := c.PostJSON(context.Background(), "/x", map[string]int{"a": 1})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "null" {
		t.Errorf("got %s, want null", got)
	}
}

func TestClient_StatusErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   *apierr.Error
	}{
		{"string detail", 404, `{"detail":"Recorrido not found"}`, apierr.New(404, "Recorrido not found")},
		{"validation list", 422, `{"detail":[{"msg":"field required"},{"msg":"bad date"}]}`, apierr.New(422, "field required; bad date")},
		{"no detail", 500, `boom`, apierr.New(500, apierr.MessageInternal)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			_, err := c.GetJSON(context.Background(), "/x", nil)
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want *StatusError", err)
			}
			got := AsAPIError(err)
			if got.StatusCode != tt.want.StatusCode || got.Message != tt.want.Message {
				t.Errorf("AsAPIError() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAsAPIError_Transport(t *testing.T) {
	c, _ := NewClient("purchases", "http://127.0.0.1:1", time.Second)
	_, err := c.GetJSON(context.Background(), "/", nil)
	if err == nil {
		t.Fatal("expected connection error")
	}
	if got := AsAPIError(err).StatusCode; got != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", got)
	}

	if got := AsAPIError(context.DeadlineExceeded).StatusCode; got != http.StatusGatewayTimeout {
		t.Errorf("deadline status = %d, want 504", got)
	}
}

func TestAsAPIError_ClientTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c, _ := NewClient("sales", srv.URL, 30*time.Millisecond)
	_, err := c.GetJSON(context.Background(), "/slow", nil)
	if got := AsAPIError(err).StatusCode; got != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504 (err %v)", got, err)
	}
}

func TestProcessingClient(t *testing.T) {
	var submitted job.Request
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			_ = json.NewDecoder(r.Body).Decode(&submitted)
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, `{"accepted":true}`)
		case r.URL.Path == "/jobs/j-1/status":
			_, _ = io.WriteString(w, `{"jobId":"j-1","status":"PROCESSING"}`)
		case r.URL.Path == "/jobs/j-1/results":
			_, _ = io.WriteString(w, `{"jobId":"j-1","items":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	p := NewProcessingClient(c)
	ctx := context.Background()

	req := job.Request{JobID: "j-1", Files: []job.File{{Path: "/tmp/a", OriginalName: "a.png", MimeType: "image/png", Size: 3}}}
	if err := p.Submit(ctx, req); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if submitted.JobID != "j-1" || len(submitted.Files) != 1 || submitted.Files[0].OriginalName != "a.png" {
		t.Errorf("backend received %+v", submitted)
	}

	status, err := p.Status(ctx, "j-1")
	if err != nil || !strings.Contains(string(status), "PROCESSING") {
		t.Errorf("Status() = %s, %v", status, err)
	}
	results, err := p.Results(ctx, "j-1")
	if err != nil || !strings.Contains(string(results), "items") {
		t.Errorf("Results() = %s, %v", results, err)
	}
	if _, err := p.Status(ctx, "missing"); err == nil {
		t.Error("expected error for unknown job")
	}
}
