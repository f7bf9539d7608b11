package core

import (
	"context"
	"log/slog"
)

// MonitorStarter starts progress tracking for a job that reached printing.
type MonitorStarter interface {
	StartMonitor(job *Job)
}

// Gateway drives a submission through validation, document processing,
// printer dispatch and monitor start. The job is registered before any
// fallible work begins so partial failures stay visible to the caller.
type Gateway struct {
	registry   *Registry
	resolver   *Resolver
	files      FileStore
	printers   PrinterDirectory
	processor  DocumentProcessor
	dispatcher Dispatcher
	monitors   MonitorStarter
	logger     *slog.Logger
}

func NewGateway(
	registry *Registry,
	resolver *Resolver,
	files FileStore,
	printers PrinterDirectory,
	processor DocumentProcessor,
	dispatcher Dispatcher,
	monitors MonitorStarter,
	logger *slog.Logger,
) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		registry:   registry,
		resolver:   resolver,
		files:      files,
		printers:   printers,
		processor:  processor,
		dispatcher: dispatcher,
		monitors:   monitors,
		logger:     logger,
	}
}

// Submit validates the request, creates the job and runs it. The job id is
// returned together with any processing or dispatch error; once the job is
// registered it stays observable even when the submission fails.
func (g *Gateway) Submit(ctx context.Context, fileRef, printerID string, raw RawPrintSettings, rawDoc RawDocumentSettings) (string, error) {
	ps, ds, err := g.resolver.Resolve(raw, rawDoc)
	if err != nil {
		return "", err
	}

	if fileRef == "" || !g.files.Exists(fileRef) {
		return "", &ValidationError{Field: "file_id", Reason: "unknown file: " + fileRef}
	}
	if printerID == "" || !g.printers.Exists(printerID) {
		return "", &ValidationError{Field: "printer_id", Reason: "unknown printer: " + printerID}
	}

	job := NewJob(fileRef, g.files.DocumentName(fileRef), printerID, ps, ds)
	if err := g.registry.Add(job); err != nil {
		return "", err
	}

	g.logger.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("printer_id", printerID),
		slog.String("file_ref", fileRef),
	)

	return job.ID, g.run(ctx, job)
}

// Retry creates a brand-new job for a failed one, reusing its file and
// settings, and re-enters the submission pipeline. The original record is
// left untouched.
func (g *Gateway) Retry(ctx context.Context, jobID string) (string, error) {
	original, err := g.registry.Get(jobID)
	if err != nil {
		return "", err
	}
	if original.Status != JobStatusFailed {
		return "", &InvalidStateError{JobID: jobID, Status: original.Status, Op: "retry"}
	}

	if !g.files.Exists(original.FileRef) {
		return "", &ValidationError{Field: "file_id", Reason: "unknown file: " + original.FileRef}
	}
	if !g.printers.Exists(original.PrinterID) {
		return "", &ValidationError{Field: "printer_id", Reason: "unknown printer: " + original.PrinterID}
	}

	job := NewJob(original.FileRef, g.files.DocumentName(original.FileRef), original.PrinterID, original.Print, original.Document)
	if err := g.registry.Add(job); err != nil {
		return "", err
	}

	g.logger.Info("job retried",
		slog.String("job_id", job.ID),
		slog.String("original_job_id", jobID),
	)

	return job.ID, g.run(ctx, job)
}

func (g *Gateway) run(ctx context.Context, job *Job) error {
	if !job.Document.IsNoop() {
		processedRef, err := g.processor.Process(ctx, job.FileRef, job.Document)
		if err != nil {
			procErr := &ProcessingError{Detail: err.Error()}
			g.fail(job.ID, procErr.Error())
			return procErr
		}
		if terr := g.registry.Update(job.ID, func(j *Job) {
			j.ProcessedRef = processedRef
		}); terr != nil {
			// cancelled while processing
			return nil
		}
	}

	// re-read a snapshot before touching the printer: it carries the
	// processed ref and reflects a cancel that landed while pending
	current, err := g.registry.Get(job.ID)
	if err != nil || current.Status != JobStatusPending {
		return nil
	}

	if err := g.dispatcher.Dispatch(ctx, current.PrinterID, current.WorkingRef(), current.Print); err != nil {
		subErr := &SubmissionError{PrinterID: current.PrinterID, Cause: err}
		g.fail(job.ID, subErr.Error())
		return subErr
	}

	if err := g.registry.Transition(job.ID, JobStatusPending, JobStatusPrinting, nil); err != nil {
		// cancelled between dispatch and transition; the monitor never starts
		return nil
	}

	g.monitors.StartMonitor(current)
	return nil
}

func (g *Gateway) fail(jobID, detail string) {
	err := g.registry.Transition(jobID, JobStatusPending, JobStatusFailed, func(j *Job) {
		j.ErrorMessage = detail
	})
	if err != nil {
		g.logger.Warn("could not mark job failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
