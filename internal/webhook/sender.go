package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rebinmas/printserver/internal/core"
	"github.com/rebinmas/printserver/internal/db"
)

const EventPrinterStatusChanged = "printer_status_changed"

type Payload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Signature string      `json:"signature,omitempty"`
}

type JobEventData struct {
	JobID        string     `json:"job_id"`
	PrinterID    string     `json:"printer_id"`
	DocumentName string     `json:"document_name"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type PrinterStatusData struct {
	PrinterID      string    `json:"printer_id"`
	PrinterName    string    `json:"printer_name"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Timestamp      time.Time `json:"timestamp"`
}

// Registrations looks up the webhooks subscribed to an event.
type Registrations interface {
	ListActiveWebhooksForEvent(ctx context.Context, event string) ([]*db.Webhook, error)
}

type Config struct {
	RetryCount  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	WorkerCount int
	QueueSize   int
}

type task struct {
	webhook *db.Webhook
	payload *Payload
	attempt int
}

// Sender delivers job and printer events to registered webhook endpoints
// through a bounded queue and a fixed worker pool. Deliveries carry an
// HMAC-SHA256 signature when the registration has a secret; 4xx responses
// are not retried.
type Sender struct {
	registrations Registrations
	httpClient    *http.Client
	retryCount    int
	retryDelay    time.Duration
	workerCount   int
	queue         chan *task
	stopCh        chan struct{}
	wg            sync.WaitGroup
	logger        *slog.Logger
}

func NewSender(registrations Registrations, cfg Config, logger *slog.Logger) *Sender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sender{
		registrations: registrations,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		retryCount:    cfg.RetryCount,
		retryDelay:    cfg.RetryDelay,
		workerCount:   cfg.WorkerCount,
		queue:         make(chan *task, cfg.QueueSize),
		stopCh:        make(chan struct{}),
		logger:        logger,
	}
}

func (s *Sender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

func (s *Sender) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// JobEvent feeds job-state changes from the registry into the delivery
// queue.
func (s *Sender) JobEvent(event string, job core.Job) {
	s.enqueue(event, &JobEventData{
		JobID:        job.ID,
		PrinterID:    job.PrinterID,
		DocumentName: job.DocumentName,
		Status:       string(job.Status),
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	})
}

func (s *Sender) PrinterStatusChanged(printerID, printerName, oldStatus, newStatus string) {
	s.enqueue(EventPrinterStatusChanged, &PrinterStatusData{
		PrinterID:      printerID,
		PrinterName:    printerName,
		PreviousStatus: oldStatus,
		NewStatus:      newStatus,
		Timestamp:      time.Now(),
	})
}

func (s *Sender) enqueue(event string, data interface{}) {
	webhooks, err := s.registrations.ListActiveWebhooksForEvent(context.Background(), event)
	if err != nil {
		s.logger.Error("failed to look up webhooks", slog.String("event", event), slog.String("error", err.Error()))
		return
	}

	for _, webhook := range webhooks {
		t := &task{
			webhook: webhook,
			payload: &Payload{
				Event:     event,
				Timestamp: time.Now(),
				Data:      data,
			},
		}

		select {
		case s.queue <- t:
		default:
			s.logger.Warn("webhook queue full, dropping delivery",
				slog.Int64("webhook_id", webhook.ID),
				slog.String("event", event),
			)
		}
	}
}

func (s *Sender) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case t := <-s.queue:
			if err := s.sendWithRetry(t); err != nil {
				s.logger.Error("webhook delivery failed",
					slog.Int64("webhook_id", t.webhook.ID),
					slog.String("event", t.payload.Event),
					slog.Int("attempts", t.attempt),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (s *Sender) sendWithRetry(t *task) error {
	var lastErr error
	for t.attempt < s.retryCount {
		t.attempt++

		err := s.sendRequest(t.webhook, t.payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if isClientError(err) {
			return err
		}

		if t.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(t.attempt-1))
			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) sendRequest(webhook *db.Webhook, payload *Payload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if webhook.Secret != "" {
		payload.Signature = signPayload(dataBytes, webhook.Secret)
	}

	fullPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, webhook.URL, bytes.NewReader(fullPayload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", payload.Signature)
	req.Header.Set("X-Webhook-Event", payload.Event)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode}
	}

	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http error: %d", e.code)
}

func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	var serr *statusError
	return errors.As(err, &serr) && serr.code >= 400 && serr.code < 500
}
