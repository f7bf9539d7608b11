package core

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrDuplicateJob = errors.New("job already registered")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

type SubmissionError struct {
	PrinterID string
	Cause     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("dispatch to printer %s failed: %v", e.PrinterID, e.Cause)
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

type ProcessingError struct {
	Detail string
}

func (e *ProcessingError) Error() string {
	return "processing failed: " + e.Detail
}

type PrinterFailure struct {
	PrinterID    string
	DeviceStatus string
}

func (e *PrinterFailure) Error() string {
	return fmt.Sprintf("printer %s reported %s", e.PrinterID, e.DeviceStatus)
}

type InvalidStateError struct {
	JobID  string
	Status JobStatus
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s job %s in state %s", e.Op, e.JobID, e.Status)
}
