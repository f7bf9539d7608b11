package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rebinmas/printserver/internal/core"
)

// JobHistoryStore adapts the job_history table to the registry's
// persistence interface.
type JobHistoryStore struct{}

func NewJobHistoryStore() *JobHistoryStore {
	return &JobHistoryStore{}
}

func (s *JobHistoryStore) Append(job core.Job) error {
	printJSON, err := json.Marshal(job.Print)
	if err != nil {
		return fmt.Errorf("failed to encode print settings: %w", err)
	}
	docJSON, err := json.Marshal(job.Document)
	if err != nil {
		return fmt.Errorf("failed to encode document settings: %w", err)
	}

	record := &HistoryRecord{
		JobID:        job.ID,
		FileRef:      job.FileRef,
		ProcessedRef: job.ProcessedRef,
		DocumentName: job.DocumentName,
		PrinterID:    job.PrinterID,
		Status:       string(job.Status),
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		PrintJSON:    string(printJSON),
		DocumentJSON: string(docJSON),
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
	return History.AppendRecord(context.Background(), record)
}

func (s *JobHistoryStore) Load(limit int) ([]core.Job, error) {
	records, err := History.ListRecords(context.Background(), limit)
	if err != nil {
		return nil, err
	}

	jobs := make([]core.Job, 0, len(records))
	for _, r := range records {
		job := core.Job{
			ID:           r.JobID,
			FileRef:      r.FileRef,
			ProcessedRef: r.ProcessedRef,
			DocumentName: r.DocumentName,
			PrinterID:    r.PrinterID,
			Status:       core.JobStatus(r.Status),
			Progress:     r.Progress,
			ErrorMessage: r.ErrorMessage,
			CreatedAt:    r.CreatedAt,
			CompletedAt:  r.CompletedAt,
		}
		if r.PrintJSON != "" {
			if err := json.Unmarshal([]byte(r.PrintJSON), &job.Print); err != nil {
				return nil, fmt.Errorf("failed to decode print settings for job %s: %w", r.JobID, err)
			}
		}
		if r.DocumentJSON != "" {
			if err := json.Unmarshal([]byte(r.DocumentJSON), &job.Document); err != nil {
				return nil, fmt.Errorf("failed to decode document settings for job %s: %w", r.JobID, err)
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *JobHistoryStore) Trim(capSize int) error {
	return History.TrimRecords(context.Background(), capSize)
}
