package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFiles struct {
	docs map[string]string
}

func (f *fakeFiles) Exists(ref string) bool { _, ok := f.docs[ref]; return ok }

func (f *fakeFiles) DocumentName(ref string) string { return f.docs[ref] }

type fakePrinters struct {
	known map[string]bool
}

func (p *fakePrinters) Exists(id string) bool { return p.known[id] }

type fakeProcessor struct {
	ref   string
	err   error
	calls int
}

func (p *fakeProcessor) Process(_ context.Context, _ string, _ DocumentSettings) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.ref, nil
}

type fakeDispatcher struct {
	err     error
	calls   int
	lastRef string
}

func (d *fakeDispatcher) Dispatch(_ context.Context, _ string, fileRef string, _ PrintSettings) error {
	d.calls++
	d.lastRef = fileRef
	return d.err
}

type fakeStarter struct {
	mu      sync.Mutex
	started []string
}

func (s *fakeStarter) StartMonitor(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, job.ID)
}

type gatewayFixture struct {
	registry   *Registry
	gateway    *Gateway
	processor  *fakeProcessor
	dispatcher *fakeDispatcher
	starter    *fakeStarter
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	registry := NewRegistry(RegistryConfig{}, nil, nil, quietLogger())
	processor := &fakeProcessor{ref: "processed-1"}
	dispatcher := &fakeDispatcher{}
	starter := &fakeStarter{}

	gw := NewGateway(
		registry,
		NewResolver(DefaultLimits()),
		&fakeFiles{docs: map[string]string{"file-1": "report.pdf"}},
		&fakePrinters{known: map[string]bool{"printer-1": true}},
		processor,
		dispatcher,
		starter,
		quietLogger(),
	)
	return &gatewayFixture{registry: registry, gateway: gw, processor: processor, dispatcher: dispatcher, starter: starter}
}

func TestSubmitUnknownFile(t *testing.T) {
	fx := newGatewayFixture(t)

	_, err := fx.gateway.Submit(context.Background(), "ghost", "printer-1", RawPrintSettings{}, RawDocumentSettings{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "file_id", verr.Field)

	// rejected before a job record exists or any collaborator is touched
	assert.Equal(t, 0, fx.registry.ActiveCount())
	assert.Equal(t, 0, fx.processor.calls)
	assert.Equal(t, 0, fx.dispatcher.calls)
}

func TestSubmitUnknownPrinter(t *testing.T) {
	fx := newGatewayFixture(t)

	_, err := fx.gateway.Submit(context.Background(), "file-1", "laserjet-9", RawPrintSettings{}, RawDocumentSettings{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "printer_id", verr.Field)
	assert.Equal(t, 0, fx.registry.ActiveCount())
}

func TestSubmitInvalidSettings(t *testing.T) {
	fx := newGatewayFixture(t)

	_, err := fx.gateway.Submit(context.Background(), "file-1", "printer-1",
		RawPrintSettings{PageRange: "5-1"}, RawDocumentSettings{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, fx.registry.ActiveCount())
}

func TestSubmitSuccess(t *testing.T) {
	fx := newGatewayFixture(t)

	id, err := fx.gateway.Submit(context.Background(), "file-1", "printer-1", RawPrintSettings{}, RawDocumentSettings{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := fx.registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPrinting, job.Status)
	assert.Equal(t, "report.pdf", job.DocumentName)
	assert.Equal(t, 0, job.Progress)

	// no document settings, so the processor stays out of the path
	assert.Equal(t, 0, fx.processor.calls)
	assert.Equal(t, 1, fx.dispatcher.calls)
	assert.Equal(t, "file-1", fx.dispatcher.lastRef)
	assert.Equal(t, []string{id}, fx.starter.started)
}

func TestSubmitRunsProcessor(t *testing.T) {
	fx := newGatewayFixture(t)

	id, err := fx.gateway.Submit(context.Background(), "file-1", "printer-1",
		RawPrintSettings{}, RawDocumentSettings{ColorMode: "grayscale"})
	require.NoError(t, err)

	assert.Equal(t, 1, fx.processor.calls)
	assert.Equal(t, "processed-1", fx.dispatcher.lastRef)

	job, err := fx.registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "processed-1", job.ProcessedRef)
	assert.Equal(t, "processed-1", job.WorkingRef())
}

func TestSubmitProcessorFailure(t *testing.T) {
	fx := newGatewayFixture(t)
	fx.processor.err = errors.New("unsupported encoding")

	id, err := fx.gateway.Submit(context.Background(), "file-1", "printer-1",
		RawPrintSettings{}, RawDocumentSettings{Brightness: intPtr(10)})
	var perr *ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.True(t, strings.HasPrefix(err.Error(), "processing failed:"))

	// the job stays observable with the failure recorded
	job, gerr := fx.registry.Get(id)
	require.NoError(t, gerr)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "unsupported encoding")

	assert.Equal(t, 0, fx.dispatcher.calls)
	assert.Empty(t, fx.starter.started)
}

func TestSubmitDispatchFailure(t *testing.T) {
	fx := newGatewayFixture(t)
	cause := errors.New("connection refused")
	fx.dispatcher.err = cause

	id, err := fx.gateway.Submit(context.Background(), "file-1", "printer-1", RawPrintSettings{}, RawDocumentSettings{})
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "printer-1", serr.PrinterID)
	assert.ErrorIs(t, err, cause)

	job, gerr := fx.registry.Get(id)
	require.NoError(t, gerr)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Empty(t, fx.starter.started)
}

func TestRetryFailedJob(t *testing.T) {
	fx := newGatewayFixture(t)
	fx.dispatcher.err = errors.New("connection refused")

	origID, err := fx.gateway.Submit(context.Background(), "file-1", "printer-1",
		RawPrintSettings{Copies: intPtr(3)}, RawDocumentSettings{})
	require.Error(t, err)

	fx.dispatcher.err = nil
	newID, err := fx.gateway.Retry(context.Background(), origID)
	require.NoError(t, err)
	assert.NotEqual(t, origID, newID)

	retried, err := fx.registry.Get(newID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPrinting, retried.Status)
	assert.Equal(t, 3, retried.Print.Copies)

	// original record is untouched
	original, err := fx.registry.Get(origID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, original.Status)
}

type cancellingSink struct {
	registry *Registry
}

func (s *cancellingSink) JobEvent(event string, job Job) {
	if event == EventJobSubmitted {
		_ = s.registry.Cancel(job.ID)
	}
}

func TestSubmitSkipsDispatchAfterPendingCancel(t *testing.T) {
	sink := &cancellingSink{}
	registry := NewRegistry(RegistryConfig{HistoryGrace: time.Hour}, sink, nil, quietLogger())
	sink.registry = registry

	dispatcher := &fakeDispatcher{}
	starter := &fakeStarter{}
	gw := NewGateway(
		registry,
		NewResolver(DefaultLimits()),
		&fakeFiles{docs: map[string]string{"file-1": "report.pdf"}},
		&fakePrinters{known: map[string]bool{"printer-1": true}},
		&fakeProcessor{ref: "processed-1"},
		dispatcher,
		starter,
		quietLogger(),
	)

	id, err := gw.Submit(context.Background(), "file-1", "printer-1", RawPrintSettings{}, RawDocumentSettings{})
	require.NoError(t, err)

	job, err := registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, job.Status)

	// the cancel landed while pending, so the printer is never touched
	assert.Equal(t, 0, dispatcher.calls)
	assert.Empty(t, starter.started)
}

func TestSubmitConcurrentReadsDuringProcessing(t *testing.T) {
	fx := newGatewayFixture(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				jobs, _, _ := fx.registry.List("", 1, 50)
				for _, j := range jobs {
					_, _ = fx.registry.Get(j.ID)
				}
			}
		}()
	}

	for i := 0; i < 25; i++ {
		_, err := fx.gateway.Submit(context.Background(), "file-1", "printer-1",
			RawPrintSettings{}, RawDocumentSettings{ColorMode: "grayscale"})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 25, fx.processor.calls)
	assert.Equal(t, 25, fx.dispatcher.calls)
	assert.Equal(t, "processed-1", fx.dispatcher.lastRef)
}

func TestRetryRequiresFailedState(t *testing.T) {
	fx := newGatewayFixture(t)

	id, err := fx.gateway.Submit(context.Background(), "file-1", "printer-1", RawPrintSettings{}, RawDocumentSettings{})
	require.NoError(t, err)

	var iserr *InvalidStateError
	_, err = fx.gateway.Retry(context.Background(), id)
	require.ErrorAs(t, err, &iserr)
	assert.Equal(t, JobStatusPrinting, iserr.Status)

	_, err = fx.gateway.Retry(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
