package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
	"github.com/Sentinel-Gate/edgegate/internal/domain/command"
	"github.com/Sentinel-Gate/edgegate/internal/domain/job"
)

// JobSubmitter is the bulk submission service.
type JobSubmitter interface {
	Submit(ctx context.Context, files []job.File) (*job.SubmitResult, error)
	Status(ctx context.Context, jobID string) (json.RawMessage, error)
	Results(ctx context.Context, jobID string) (json.RawMessage, error)
	Recent(ctx context.Context, limit int) ([]job.Record, error)
	ProgressChannel(jobID string) string
}

// ProgressStream yields raw progress messages until closed.
type ProgressStream interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// ProgressSource opens a stream on a broker channel.
type ProgressSource interface {
	Subscribe(ctx context.Context, channel string) (ProgressStream, error)
}

// JSONGetter fetches a JSON document from a plain HTTP backend.
type JSONGetter interface {
	GetJSON(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
}

// Deps are the collaborators of the route handlers. Broker backends are
// long-lived handles resolved once at startup.
type Deps struct {
	Auth       command.Sender
	Gescom     command.Sender
	Sales      command.Sender
	Purchases  command.Sender
	RAGBackend command.Sender
	ETLIndexer command.Sender

	SalesHTTP     JSONGetter
	PurchasesHTTP JSONGetter
	// SalesProxy serves the sales route-validator subtree.
	SalesProxy http.Handler

	Jobs     JobSubmitter
	Progress ProgressSource
	Uploads  UploadLimits

	// AllowedOrigins gates websocket handshakes.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Handlers implements the gateway routes.
type Handlers struct {
	deps Deps
}

// NewHandlers creates the route handlers.
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handlers{deps: deps}
}

// forward sends the request's JSON body unchanged as pattern's payload.
// An empty body is sent as {}.
func forward(sender command.Sender, pattern command.Pattern) HandlerFunc {
	return func(r *http.Request) (any, error) {
		body, err := readJSONBody(r)
		if err != nil {
			return nil, err
		}
		return sender.Send(r.Context(), pattern, body)
	}
}

// send sends a fixed payload built from the request.
func send(sender command.Sender, pattern command.Pattern, payload func(r *http.Request) any) HandlerFunc {
	return func(r *http.Request) (any, error) {
		return sender.Send(r.Context(), pattern, payload(r))
	}
}

// readJSONBody returns the body as raw JSON. It is not interpreted beyond
// checking that it parses.
func readJSONBody(r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierr.New(http.StatusRequestEntityTooLarge, "Request body too large")
		}
		return nil, apierr.BadRequest(apierr.MessageValidationFailed, "could not read request body")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(data) {
		return nil, apierr.BadRequest(apierr.MessageValidationFailed, "request body must be valid JSON")
	}
	return json.RawMessage(data), nil
}

// readJSONObject decodes the body as a JSON object.
func readJSONObject(r *http.Request) (map[string]json.RawMessage, error) {
	body, err := readJSONBody(r)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, apierr.BadRequest(apierr.MessageValidationFailed, "request body must be a JSON object")
	}
	return obj, nil
}

// queryPayload turns query parameters into a flat object, first value wins.
func queryPayload(r *http.Request) any {
	q := r.URL.Query()
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func emptyPayload(*http.Request) any {
	return struct{}{}
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierr.BadRequest(apierr.MessageValidationFailed, name+" must be a positive integer")
	}
	return id, nil
}
