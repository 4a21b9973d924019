package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
	"github.com/Sentinel-Gate/edgegate/internal/domain/command"
	"github.com/Sentinel-Gate/edgegate/internal/domain/job"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDirect implements job.DirectTransport.
type fakeDirect struct {
	mu        sync.Mutex
	submitErr error
	queryErr  error
	submitted []job.Request
}

func (f *fakeDirect) Submit(_ context.Context, req job.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	return f.submitErr
}

func (f *fakeDirect) Status(_ context.Context, jobID string) (json.RawMessage, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return json.RawMessage(`{"jobId":"` + jobID + `","status":"PROCESSING","progress":40}`), nil
}

func (f *fakeDirect) Results(_ context.Context, jobID string) (json.RawMessage, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return json.RawMessage(`{"jobId":"` + jobID + `","status":"COMPLETED","items":[]}`), nil
}

// fakeEmitter implements command.Emitter.
type fakeEmitter struct {
	mu      sync.Mutex
	err     error
	emitted []emitted
	ctxErr  error
}

type emitted struct {
	pattern command.Pattern
	req     job.Request
}

func (f *fakeEmitter) Emit(ctx context.Context, p command.Pattern, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, emitted{pattern: p, req: data.(job.Request)})
	f.ctxErr = ctx.Err()
	return f.err
}

func (f *fakeEmitter) calls() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitted(nil), f.emitted...)
}

// memLedger implements job.Ledger.
type memLedger struct {
	mu      sync.Mutex
	records []job.Record
}

func (m *memLedger) Append(_ context.Context, rec job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memLedger) Recent(_ context.Context, limit int) ([]job.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.records) {
		limit = len(m.records)
	}
	return append([]job.Record(nil), m.records[:limit]...), nil
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveJobSubmission(transport string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[transport]++
}

const testJobID = "3f2b8c1e-4d5a-4e6f-9a7b-8c9d0e1f2a3b"

func newTestJobService(direct *fakeDirect, emitter *fakeEmitter, opts ...JobOption) *JobService {
	s := NewJobService(direct, emitter, JobServiceConfig{
		FallbackPattern:       command.Topic("catalog.process_bulk_upload"),
		EventsURLPrefix:       "/api/v1/jobs/",
		ProgressChannelPrefix: "jobs.progress",
	}, discardLogger(), opts...)
	s.newID = func() string { return testJobID }
	return s
}

func threeFiles() []job.File {
	return []job.File{
		{Path: "/tmp/u/1.png", OriginalName: "a.png", MimeType: "image/png", Size: 10},
		{Path: "/tmp/u/2.png", OriginalName: "b.png", MimeType: "image/png", Size: 20},
		{Path: "/tmp/u/3.pdf", OriginalName: "c.pdf", MimeType: "application/pdf", Size: 30},
	}
}

func TestJobService_Submit_Direct(t *testing.T) {
	defer goleak.VerifyNone(t)

	direct := &fakeDirect{}
	emitter := &fakeEmitter{}
	ledger := &memLedger{}
	obs := &countingObserver{}
	s := newTestJobService(direct, emitter, WithJobLedger(ledger), WithJobObserver(obs))

	res, err := s.Submit(context.Background(), threeFiles())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	s.Wait()

	if res.JobID != testJobID || res.Status != job.StatusProcessing || res.TransportUsed != job.TransportHTTPDirect {
		t.Errorf("result = %+v", res)
	}
	if res.Error != "" {
		t.Errorf("Error = %q, want empty", res.Error)
	}
	want := job.Subscription{Transport: "websocket", URL: "/api/v1/jobs/" + testJobID + "/events", Channel: "jobs.progress." + testJobID}
	if res.Subscription != want {
		t.Errorf("Subscription = %+v, want %+v", res.Subscription, want)
	}
	if len(emitter.calls()) != 0 {
		t.Error("fallback emitted after a successful direct submission")
	}
	if len(direct.submitted) != 1 || len(direct.submitted[0].Files) != 3 {
		t.Errorf("direct received %+v", direct.submitted)
	}
	if len(ledger.records) != 1 || ledger.records[0].Transport != job.TransportHTTPDirect {
		t.Errorf("ledger = %+v", ledger.records)
	}
	if obs.counts["HTTP_DIRECT"] != 1 {
		t.Errorf("observer = %v", obs.counts)
	}
}

func TestJobService_Submit_Fallback(t *testing.T) {
	defer goleak.VerifyNone(t)

	primaryErr := errors.New(`POST processing: dial tcp 10.0.0.5:8000: connect: connection refused`)
	direct := &fakeDirect{submitErr: primaryErr}
	emitter := &fakeEmitter{}
	ledger := &memLedger{}
	s := newTestJobService(direct, emitter, WithJobLedger(ledger))

	res, err := s.Submit(context.Background(), threeFiles())
	if err != nil {
		t.Fatalf("Submit() must not surface the primary failure, got %v", err)
	}
	s.Wait()

	if res.Status != job.StatusQueuedFallback || res.TransportUsed != job.TransportBrokerFallback {
		t.Errorf("result = %+v", res)
	}
	if res.Error != primaryErr.Error() {
		t.Errorf("Error = %q, want %q", res.Error, primaryErr.Error())
	}
	if res.Subscription.Channel != "jobs.progress."+testJobID {
		t.Errorf("Subscription = %+v", res.Subscription)
	}

	calls := emitter.calls()
	if len(calls) != 1 {
		t.Fatalf("fallback emitted %d times, want 1", len(calls))
	}
	if calls[0].pattern != command.Topic("catalog.process_bulk_upload") {
		t.Errorf("pattern = %v", calls[0].pattern)
	}
	if calls[0].req.JobID != testJobID || len(calls[0].req.Files) != 3 {
		t.Errorf("emitted %+v", calls[0].req)
	}
	if ledger.records[0].PrimaryError != primaryErr.Error() || ledger.records[0].Status != job.StatusQueuedFallback {
		t.Errorf("ledger = %+v", ledger.records[0])
	}
}

func TestJobService_Submit_FallbackOutlivesRequest(t *testing.T) {
	defer goleak.VerifyNone(t)

	direct := &fakeDirect{submitErr: errors.New("timeout")}
	emitter := &fakeEmitter{}
	s := newTestJobService(direct, emitter)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := s.Submit(ctx, threeFiles()); err != nil {
		t.Fatal(err)
	}
	cancel()
	s.Wait()

	if len(emitter.calls()) != 1 {
		t.Fatal("fallback not emitted")
	}
	if emitter.ctxErr != nil {
		t.Errorf("emission context already done: %v", emitter.ctxErr)
	}
}

func TestJobService_Submit_FallbackEmitFailureStillQueued(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestJobService(&fakeDirect{submitErr: errors.New("down")}, &fakeEmitter{err: errors.New("broker down")})
	res, err := s.Submit(context.Background(), threeFiles())
	s.Wait()
	if err != nil || res.Status != job.StatusQueuedFallback {
		t.Errorf("Submit() = %+v, %v", res, err)
	}
}

func TestJobService_Submit_NoFiles(t *testing.T) {
	direct := &fakeDirect{}
	s := newTestJobService(direct, &fakeEmitter{})

	_, err := s.Submit(context.Background(), nil)
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Fatalf("error = %v, want 400", err)
	}
	if len(direct.submitted) != 0 {
		t.Error("direct transport called for an empty batch")
	}
}

func TestJobService_StatusAndResults(t *testing.T) {
	s := newTestJobService(&fakeDirect{}, &fakeEmitter{})

	doc, err := s.Status(context.Background(), testJobID)
	if err != nil || !strings.Contains(string(doc), "PROCESSING") {
		t.Errorf("Status() = %s, %v", doc, err)
	}
	doc, err = s.Results(context.Background(), testJobID)
	if err != nil || !strings.Contains(string(doc), "COMPLETED") {
		t.Errorf("Results() = %s, %v", doc, err)
	}
}

func TestJobService_QueryFailureIsBestEffort(t *testing.T) {
	s := newTestJobService(&fakeDirect{queryErr: errors.New("dial tcp 10.0.0.5: refused")}, &fakeEmitter{})

	tests := []struct {
		name  string
		query func(context.Context, string) (json.RawMessage, error)
		want  job.Status
	}{
		{"status", s.Status, job.StatusUnknown},
		{"results", s.Results, job.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := tt.query(context.Background(), testJobID)
			if err != nil {
				t.Fatalf("error = %v, want best-effort body", err)
			}
			var body job.QueryFailure
			if err := json.Unmarshal(doc, &body); err != nil {
				t.Fatal(err)
			}
			if body.JobID != testJobID || body.Status != tt.want || body.Error == "" {
				t.Errorf("body = %+v", body)
			}
			if strings.Contains(body.Error, "10.0.0.5") {
				t.Error("internal address leaked to client")
			}
		})
	}
}

func TestJobService_InvalidJobID(t *testing.T) {
	s := newTestJobService(&fakeDirect{}, &fakeEmitter{})
	for _, id := range []string{"", "../etc", "not-a-uuid"} {
		if _, err := s.Status(context.Background(), id); err == nil {
			t.Errorf("Status(%q) accepted", id)
		}
	}
}

func TestJobService_Recent(t *testing.T) {
	s := newTestJobService(&fakeDirect{}, &fakeEmitter{})
	recs, err := s.Recent(context.Background(), 10)
	if err != nil || len(recs) != 0 {
		t.Errorf("Recent() without ledger = %v, %v", recs, err)
	}

	ledger := &memLedger{records: []job.Record{{JobID: "a", CreatedAt: time.Now()}}}
	s = newTestJobService(&fakeDirect{}, &fakeEmitter{}, WithJobLedger(ledger))
	recs, _ = s.Recent(context.Background(), 10)
	if len(recs) != 1 {
		t.Errorf("Recent() = %v", recs)
	}
}
