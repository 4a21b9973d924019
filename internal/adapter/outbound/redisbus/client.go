package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
	"github.com/Sentinel-Gate/edgegate/internal/domain/command"
)

// Call outcome labels reported to the Observer.
const (
	OutcomeOK          = "ok"
	OutcomeRemoteError = "remote_error"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
	OutcomeAbandoned   = "abandoned"
)

// Observer receives call metadata. Payloads are never passed.
type Observer interface {
	ObserveBackendCall(backend, outcome string, elapsed time.Duration)
}

// Client is the command.Client for one named backend.
type Client struct {
	backend  string
	bus      *Bus
	timeout  time.Duration
	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithObserver sets the metrics observer.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) { c.observer = o }
}

// WithTracer sets the tracer used for command.send spans.
func WithTracer(t trace.Tracer) ClientOption {
	return func(c *Client) { c.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client for backend over bus with a default timeout.
func NewClient(backend string, bus *Bus, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		backend: backend,
		bus:     bus,
		timeout: timeout,
		tracer:  noop.NewTracerProvider().Tracer(""),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend returns the logical backend name.
func (c *Client) Backend() string {
	return c.backend
}

// Send performs one request/response call. A backend error reply comes
// back as *command.RemoteError carrying the raw err value; transport
// failures come back as *apierr.Error. No retry is attempted.
func (c *Client) Send(ctx context.Context, pattern command.Pattern, data any, opts ...command.SendOption) (json.RawMessage, error) {
	o := command.SendOptions{Timeout: c.timeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Timeout <= 0 {
		o.Timeout = c.timeout
	}

	ctx, span := c.tracer.Start(ctx, "command.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("backend", c.backend),
			attribute.String("pattern", pattern.Name()),
		))
	defer span.End()

	start := time.Now()
	out, err := c.bus.Call(ctx, pattern, data, o.Timeout)
	elapsed := time.Since(start)

	outcome, result, callErr := c.classify(pattern, out, err)
	span.SetAttributes(attribute.String("outcome", outcome))
	if callErr != nil {
		span.SetStatus(codes.Error, outcome)
	}
	if c.observer != nil {
		c.observer.ObserveBackendCall(c.backend, outcome, elapsed)
	}

	level := slog.LevelDebug
	if outcome == OutcomeTimeout || outcome == OutcomeUnavailable {
		level = slog.LevelWarn
	}
	c.logger.Log(ctx, level, "backend call",
		"backend", c.backend,
		"pattern", pattern.Name(),
		"outcome", outcome,
		"duration_ms", elapsed.Milliseconds())

	return result, callErr
}

func (c *Client) classify(pattern command.Pattern, out command.Outcome, err error) (string, json.RawMessage, error) {
	switch {
	case err == nil && out.Err != nil:
		return OutcomeRemoteError, nil, &command.RemoteError{Backend: c.backend, Pattern: pattern, Raw: out.Err}
	case err == nil:
		return OutcomeOK, out.Result, nil
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout, nil, apierr.GatewayTimeout()
	case errors.Is(err, ErrAbandoned):
		return OutcomeAbandoned, nil, apierr.ClientClosed()
	case errors.Is(err, ErrPublish), errors.Is(err, ErrClosed):
		return OutcomeUnavailable, nil, apierr.BadGateway()
	default:
		return OutcomeUnavailable, nil, err
	}
}

// Emit publishes a fire-and-forget event.
func (c *Client) Emit(ctx context.Context, pattern command.Pattern, data any) error {
	_, span := c.tracer.Start(ctx, "command.emit",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("backend", c.backend),
			attribute.String("pattern", pattern.Name()),
		))
	defer span.End()

	if err := c.bus.Publish(ctx, pattern, data); err != nil {
		span.SetStatus(codes.Error, "publish failed")
		return err
	}
	return nil
}

var _ command.Client = (*Client)(nil)
