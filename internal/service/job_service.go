package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
	"github.com/Sentinel-Gate/edgegate/internal/domain/command"
	"github.com/Sentinel-Gate/edgegate/internal/domain/job"
)

// JobObserver receives one event per submission.
type JobObserver interface {
	ObserveJobSubmission(transport string)
}

// JobServiceConfig holds the static settings of the job service.
type JobServiceConfig struct {
	// FallbackPattern is emitted on the fallback backend when the direct
	// transport fails.
	FallbackPattern command.Pattern
	// EventsURLPrefix is the public path under which /{jobId}/events is served.
	EventsURLPrefix string
	// ProgressChannelPrefix is the broker channel prefix for progress events.
	ProgressChannelPrefix string
	// EmitTimeout bounds a single fallback emission.
	EmitTimeout time.Duration
}

// JobService submits file batches to the processing backend, falling back
// to a broker emission when the direct call fails.
//
// The service decides the transport and records the submission. It never
// tracks processing status: status and results are fetched from the
// processing backend on every query.
type JobService struct {
	direct   job.DirectTransport
	fallback command.Emitter
	ledger   job.Ledger
	cfg      JobServiceConfig

	observer JobObserver
	tracer   trace.Tracer
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time

	// wg tracks in-flight fallback emissions.
	wg sync.WaitGroup
}

// JobOption configures JobService.
type JobOption func(*JobService)

// WithJobLedger records every submission in l.
func WithJobLedger(l job.Ledger) JobOption {
	return func(s *JobService) { s.ledger = l }
}

// WithJobObserver sets the submission metrics observer.
func WithJobObserver(o JobObserver) JobOption {
	return func(s *JobService) { s.observer = o }
}

// WithJobTracer sets the tracer for job.submit spans.
func WithJobTracer(t trace.Tracer) JobOption {
	return func(s *JobService) { s.tracer = t }
}

// NewJobService creates a JobService.
func NewJobService(direct job.DirectTransport, fallback command.Emitter, cfg JobServiceConfig, logger *slog.Logger, opts ...JobOption) *JobService {
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = 10 * time.Second
	}
	if cfg.ProgressChannelPrefix == "" {
		cfg.ProgressChannelPrefix = "jobs.progress"
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &JobService{
		direct:   direct,
		fallback: fallback,
		cfg:      cfg,
		tracer:   noop.NewTracerProvider().Tracer(""),
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit assigns a job id and delivers the batch. A failure of the direct
// transport is not an error: the job is emitted on the broker instead and
// the result reports queued_fallback with the primary failure message.
//
// The emission is fire-and-forget. If the direct call failed only from the
// gateway's point of view (e.g. a timeout after the backend accepted it),
// the backend sees the same jobId twice and must deduplicate.
func (s *JobService) Submit(ctx context.Context, files []job.File) (*job.SubmitResult, error) {
	if len(files) == 0 {
		return nil, apierr.BadRequest(apierr.MessageValidationFailed, job.ErrNoFiles.Error())
	}

	req := job.Request{
		JobID:       s.newID(),
		Files:       files,
		SubmittedAt: s.now().UTC(),
	}

	ctx, span := s.tracer.Start(ctx, "job.submit", trace.WithAttributes(
		attribute.String("job.id", req.JobID),
		attribute.Int("job.files", len(files)),
	))
	defer span.End()

	logger := s.logger.With("job_id", req.JobID)
	result := &job.SubmitResult{
		JobID:         req.JobID,
		Status:        job.StatusProcessing,
		TransportUsed: job.TransportHTTPDirect,
		Subscription:  s.SubscriptionFor(req.JobID),
		FileCount:     len(files),
	}

	if err := s.direct.Submit(ctx, req); err != nil {
		logger.Warn("direct job submission failed, falling back to broker", "error", err)
		result.Status = job.StatusQueuedFallback
		result.TransportUsed = job.TransportBrokerFallback
		result.Error = err.Error()
		s.emitFallback(ctx, req, logger)
	} else {
		logger.Info("job submitted", "transport", result.TransportUsed, "files", len(files))
	}
	span.SetAttributes(attribute.String("job.transport", string(result.TransportUsed)))

	if s.observer != nil {
		s.observer.ObserveJobSubmission(string(result.TransportUsed))
	}
	if s.ledger != nil {
		rec := job.Record{
			JobID:        req.JobID,
			Transport:    result.TransportUsed,
			Status:       result.Status,
			FileCount:    len(files),
			PrimaryError: result.Error,
			CreatedAt:    req.SubmittedAt,
		}
		if err := s.ledger.Append(context.WithoutCancel(ctx), rec); err != nil {
			logger.Error("failed to record job submission", "error", err)
		}
	}
	return result, nil
}

// emitFallback publishes the job on the broker without waiting for it.
// The emission outlives the inbound request; Wait drains it on shutdown.
func (s *JobService) emitFallback(ctx context.Context, req job.Request, logger *slog.Logger) {
	emitCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(emitCtx, s.cfg.EmitTimeout)
		defer cancel()
		if err := s.fallback.Emit(ctx, s.cfg.FallbackPattern, req); err != nil {
			logger.Error("fallback job emission failed", "pattern", s.cfg.FallbackPattern.Name(), "error", err)
			return
		}
		logger.Info("job queued on broker", "pattern", s.cfg.FallbackPattern.Name())
	}()
}

// SubscriptionFor returns where progress for jobID is published.
func (s *JobService) SubscriptionFor(jobID string) job.Subscription {
	return job.Subscription{
		Transport: "websocket",
		URL:       strings.TrimRight(s.cfg.EventsURLPrefix, "/") + "/" + jobID + "/events",
		Channel:   s.ProgressChannel(jobID),
	}
}

// ProgressChannel is the broker channel carrying progress for jobID.
func (s *JobService) ProgressChannel(jobID string) string {
	return s.cfg.ProgressChannelPrefix + "." + jobID
}

// Status returns the processing backend's status document for jobID. When
// the backend cannot answer, a body with status "unknown" is returned
// instead of an error.
func (s *JobService) Status(ctx context.Context, jobID string) (json.RawMessage, error) {
	if err := ValidateJobID(jobID); err != nil {
		return nil, err
	}
	doc, err := s.direct.Status(ctx, jobID)
	if err != nil {
		s.logger.Warn("job status query failed", "job_id", jobID, "error", err)
		return queryFailure(jobID, job.StatusUnknown), nil
	}
	return doc, nil
}

// Results returns the processing backend's results for jobID. When the
// backend cannot answer, a body with status "error" is returned instead of
// an error.
func (s *JobService) Results(ctx context.Context, jobID string) (json.RawMessage, error) {
	if err := ValidateJobID(jobID); err != nil {
		return nil, err
	}
	doc, err := s.direct.Results(ctx, jobID)
	if err != nil {
		s.logger.Warn("job results query failed", "job_id", jobID, "error", err)
		return queryFailure(jobID, job.StatusError), nil
	}
	return doc, nil
}

// Recent lists recorded submissions, newest first.
func (s *JobService) Recent(ctx context.Context, limit int) ([]job.Record, error) {
	if s.ledger == nil {
		return []job.Record{}, nil
	}
	return s.ledger.Recent(ctx, limit)
}

// Wait blocks until every fallback emission started so far has finished.
func (s *JobService) Wait() {
	s.wg.Wait()
}

// ValidateJobID rejects ids that are not UUIDs.
func ValidateJobID(jobID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return apierr.BadRequest("Invalid job id", "jobId must be a UUID")
	}
	return nil
}

// queryUnavailable is reported to polling clients in place of the
// backend error, which may name internal hosts.
const queryUnavailable = "Processing service unavailable or job not found"

func queryFailure(jobID string, status job.Status) json.RawMessage {
	data, _ := json.Marshal(job.QueryFailure{JobID: jobID, Status: status, Error: queryUnavailable})
	return data
}
