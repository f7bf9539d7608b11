package core

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusPrinting  JobStatus = "printing"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:  {JobStatusPrinting, JobStatusFailed, JobStatusCancelled},
	JobStatusPrinting: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Job struct {
	ID           string           `json:"id"`
	FileRef      string           `json:"file_ref"`
	ProcessedRef string           `json:"processed_ref,omitempty"`
	DocumentName string           `json:"document_name"`
	PrinterID    string           `json:"printer_id"`
	Status       JobStatus        `json:"status"`
	Progress     int              `json:"progress"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Print        PrintSettings    `json:"print_settings"`
	Document     DocumentSettings `json:"document_settings"`
	CreatedAt    time.Time        `json:"created_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

func NewJob(fileRef, documentName, printerID string, ps PrintSettings, ds DocumentSettings) *Job {
	return &Job{
		ID:           uuid.NewString(),
		FileRef:      fileRef,
		DocumentName: documentName,
		PrinterID:    printerID,
		Status:       JobStatusPending,
		Print:        ps,
		Document:     ds,
		CreatedAt:    time.Now(),
	}
}

// WorkingRef is the artifact actually sent to the printer: the processed
// artifact when document processing ran, the original upload otherwise.
func (j *Job) WorkingRef() string {
	if j.ProcessedRef != "" {
		return j.ProcessedRef
	}
	return j.FileRef
}

func (j *Job) clone() *Job {
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
