package core

import "context"

type PrinterState string

const (
	PrinterReady   PrinterState = "ready"
	PrinterBusy    PrinterState = "busy"
	PrinterOffline PrinterState = "offline"
	PrinterError   PrinterState = "error"
)

// QueueEntry is one document in a printer's reported queue.
type QueueEntry struct {
	Document     string `json:"document"`
	PagesPrinted int    `json:"pages_printed"`
	TotalPages   int    `json:"total_pages"`
}

type PrinterDetail struct {
	State     PrinterState `json:"status"`
	Connected bool         `json:"connected"`
	Queue     []QueueEntry `json:"queue"`
}

// StatusProvider reports per-device status and per-document queue progress.
type StatusProvider interface {
	DetailedStatus(ctx context.Context, printerID string) (*PrinterDetail, error)
}

// Dispatcher hands a prepared artifact to a physical output device.
type Dispatcher interface {
	Dispatch(ctx context.Context, printerID, fileRef string, settings PrintSettings) error
}

// DocumentProcessor applies format conversion, color adjustment, splitting
// and page-range extraction, returning a reference to the processed artifact.
type DocumentProcessor interface {
	Process(ctx context.Context, fileRef string, settings DocumentSettings) (string, error)
}

// EventSink receives job-state change notifications for display.
type EventSink interface {
	JobEvent(event string, job Job)
}

type FileStore interface {
	Exists(fileRef string) bool
	DocumentName(fileRef string) string
}

type PrinterDirectory interface {
	Exists(printerID string) bool
}

// HistoryStore persists the capped terminal-job history across restarts.
type HistoryStore interface {
	Append(job Job) error
	Load(limit int) ([]Job, error)
	Trim(capSize int) error
}

const (
	EventJobSubmitted = "job_submitted"
	EventJobPrinting  = "job_printing"
	EventJobCompleted = "job_completed"
	EventJobFailed    = "job_failed"
	EventJobCancelled = "job_cancelled"
)
