package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rebinmas/printserver/internal/core"
)

type CreateJobRequest struct {
	FileID           string                   `json:"file_id" binding:"required"`
	PrinterID        string                   `json:"printer_id" binding:"required"`
	PrintSettings    core.RawPrintSettings    `json:"print_settings"`
	DocumentSettings core.RawDocumentSettings `json:"document_settings"`
}

type JobResponse struct {
	ID           string                `json:"id"`
	FileID       string                `json:"file_id"`
	DocumentName string                `json:"document_name"`
	PrinterID    string                `json:"printer_id"`
	Status       string                `json:"status"`
	Progress     int                   `json:"progress"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Print        core.PrintSettings    `json:"print_settings"`
	Document     core.DocumentSettings `json:"document_settings"`
	CreatedAt    time.Time             `json:"created_at"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}

type JobHandler struct {
	gateway  *core.Gateway
	registry *core.Registry
}

func NewJobHandler(gateway *core.Gateway, registry *core.Registry) *JobHandler {
	return &JobHandler{gateway: gateway, registry: registry}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := h.gateway.Submit(c.Request.Context(), req.FileID, req.PrinterID, req.PrintSettings, req.DocumentSettings)
	if err != nil {
		writeJobError(c, jobID, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      jobID,
		"message": "job submitted successfully",
	})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, jobToResponse(job))
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	status := core.JobStatus(c.Query("status"))
	switch status {
	case "", core.JobStatusPending, core.JobStatusPrinting,
		core.JobStatusCompleted, core.JobStatusFailed, core.JobStatusCancelled:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize > 100 {
		pageSize = 100
	}

	jobs, total, pages := h.registry.List(status, page, pageSize)

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToResponse(job))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":      responses,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"pages":     pages,
	})
}

func (h *JobHandler) GetHistory(c *gin.Context) {
	history := h.registry.History()

	responses := make([]JobResponse, 0, len(history))
	for _, job := range history {
		responses = append(responses, jobToResponse(job))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  responses,
		"count": len(responses),
	})
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Cancel(id); err != nil {
		var iserr *core.InvalidStateError
		switch {
		case errors.Is(err, core.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.As(err, &iserr):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": string(iserr.Status)})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "message": "job cancelled"})
}

func (h *JobHandler) RetryJob(c *gin.Context) {
	jobID, err := h.gateway.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeJobError(c, jobID, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      jobID,
		"message": "job resubmitted",
	})
}

// writeJobError maps engine errors to HTTP statuses. Processing and
// dispatch failures still created a job, so the response carries its id.
func writeJobError(c *gin.Context, jobID string, err error) {
	var verr *core.ValidationError
	var iserr *core.InvalidStateError
	var perr *core.ProcessingError
	var serr *core.SubmissionError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, core.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.As(err, &iserr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": string(iserr.Status)})
	case errors.As(err, &perr), errors.As(err, &serr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "id": jobID})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit job"})
	}
}

func jobToResponse(job *core.Job) JobResponse {
	return JobResponse{
		ID:           job.ID,
		FileID:       job.FileRef,
		DocumentName: job.DocumentName,
		PrinterID:    job.PrinterID,
		Status:       string(job.Status),
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		Print:        job.Print,
		Document:     job.Document,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
}
