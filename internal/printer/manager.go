package printer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rebinmas/printserver/internal/core"
	"github.com/rebinmas/printserver/internal/db"
)

var (
	ErrPrinterNotFound      = errors.New("printer not found")
	ErrPrinterOffline       = errors.New("printer is offline")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrPrinterAlreadyExists = errors.New("printer already exists")
	ErrAgentRejected        = errors.New("printer agent rejected the job")
)

const (
	defaultTCPPort        = "9100"
	defaultDialTimeout    = 10 * time.Second
	agentStatusPath       = "/status/detailed"
	agentPrintPath        = "/print"
)

type Config struct {
	HealthCheckInterval time.Duration
	ConnectionTimeout   time.Duration
}

// StatusNotifier is told about device status flips found by the health
// checker.
type StatusNotifier interface {
	PrinterStatusChanged(printerID, name, oldStatus, newStatus string)
}

// Repository persists the printer roster.
type Repository interface {
	ListPrinters(ctx context.Context) ([]*db.Printer, error)
	CreatePrinter(ctx context.Context, p *db.Printer) error
	UpdatePrinter(ctx context.Context, p *db.Printer) error
	UpdatePrinterStatus(ctx context.Context, id string, status string) error
	DeletePrinter(ctx context.Context, id string) error
}

// FileSource resolves a job's file reference to its content.
type FileSource interface {
	Open(ref string) (io.ReadCloser, error)
	DocumentName(ref string) string
}

// Manager holds the printer roster in memory, health-checks devices in the
// background and talks to each device's status agent over HTTP. Devices
// without an agent URL are driven over raw TCP and report coarse status
// from the probe alone.
type Manager struct {
	cfg      Config
	repo     Repository
	source   FileSource
	notifier StatusNotifier
	client   *http.Client
	logger   *slog.Logger

	mu       sync.RWMutex
	printers map[string]*db.Printer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewManager(cfg Config, repo Repository, source FileSource, notifier StatusNotifier, logger *slog.Logger) *Manager {
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = defaultDialTimeout
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		repo:     repo,
		source:   source,
		notifier: notifier,
		client:   &http.Client{Timeout: cfg.ConnectionTimeout},
		logger:   logger,
		printers: make(map[string]*db.Printer),
		stopCh:   make(chan struct{}),
	}
}

// Start loads the roster and begins the health-check loop.
func (m *Manager) Start(ctx context.Context) error {
	printers, err := m.repo.ListPrinters(ctx)
	if err != nil {
		return fmt.Errorf("failed to load printers: %w", err)
	}

	m.mu.Lock()
	for _, p := range printers {
		m.printers[p.ID] = p
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.healthCheckLoop()
	return nil
}

func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Manager) Register(ctx context.Context, p *db.Printer) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = string(core.PrinterOffline)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.printers[p.ID]; exists {
		return ErrPrinterAlreadyExists
	}
	if err := m.repo.CreatePrinter(ctx, p); err != nil {
		return err
	}
	m.printers[p.ID] = p
	return nil
}

func (m *Manager) Update(ctx context.Context, p *db.Printer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.printers[p.ID]
	if !exists {
		return ErrPrinterNotFound
	}
	if err := m.repo.UpdatePrinter(ctx, p); err != nil {
		return err
	}
	existing.Name = p.Name
	existing.Address = p.Address
	existing.AgentURL = p.AgentURL
	return nil
}

func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.printers[id]; !exists {
		return ErrPrinterNotFound
	}
	if err := m.repo.DeletePrinter(ctx, id); err != nil {
		return err
	}
	delete(m.printers, id)
	return nil
}

func (m *Manager) Get(id string) (*db.Printer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.printers[id]
	if !exists {
		return nil, ErrPrinterNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *Manager) List() []*db.Printer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	printers := make([]*db.Printer, 0, len(m.printers))
	for _, p := range m.printers {
		copied := *p
		printers = append(printers, &copied)
	}
	return printers
}

func (m *Manager) Exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.printers[id]
	return exists
}

// DetailedStatus asks the device's agent for per-document queue progress.
// Agentless devices report from the TCP probe with an empty queue.
func (m *Manager) DetailedStatus(ctx context.Context, id string) (*core.PrinterDetail, error) {
	m.mu.RLock()
	p, exists := m.printers[id]
	if !exists {
		m.mu.RUnlock()
		return nil, ErrPrinterNotFound
	}
	agentURL := p.AgentURL
	address := p.Address
	m.mu.RUnlock()

	if agentURL == "" {
		if err := m.probe(address); err != nil {
			m.setStatus(id, string(core.PrinterOffline))
			return &core.PrinterDetail{State: core.PrinterOffline}, nil
		}
		m.setStatus(id, string(core.PrinterReady))
		return &core.PrinterDetail{State: core.PrinterReady, Connected: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(agentURL, "/")+agentStatusPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: agent returned %d", ErrConnectionFailed, resp.StatusCode)
	}

	var detail core.PrinterDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("failed to decode agent status: %w", err)
	}

	m.setStatus(id, string(detail.State))
	return &detail, nil
}

// Dispatch hands the document to the device: multipart POST to the agent
// when one is configured, a raw byte stream over TCP otherwise.
func (m *Manager) Dispatch(ctx context.Context, id string, fileRef string, settings core.PrintSettings) error {
	m.mu.RLock()
	p, exists := m.printers[id]
	if !exists {
		m.mu.RUnlock()
		return ErrPrinterNotFound
	}
	agentURL := p.AgentURL
	address := p.Address
	m.mu.RUnlock()

	content, err := m.source.Open(fileRef)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer content.Close()

	if agentURL == "" {
		return m.dispatchTCP(address, content)
	}
	return m.dispatchAgent(ctx, agentURL, m.source.DocumentName(fileRef), content, settings)
}

func (m *Manager) dispatchAgent(ctx context.Context, agentURL, documentName string, content io.Reader, settings core.PrintSettings) error {
	var body strings.Builder
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", documentName)
	if err != nil {
		return fmt.Errorf("failed to build print request: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := writer.WriteField("settings", string(settingsJSON)); err != nil {
		return fmt.Errorf("failed to build print request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to build print request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(agentURL, "/")+agentPrintPath, strings.NewReader(body.String()))
	if err != nil {
		return fmt.Errorf("failed to build print request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", ErrAgentRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (m *Manager) dispatchTCP(address string, content io.Reader) error {
	conn, err := net.DialTimeout("tcp", withDefaultPort(address), m.cfg.ConnectionTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrinterOffline, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(m.cfg.ConnectionTimeout))
	if _, err := io.Copy(conn, content); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

func (m *Manager) probe(address string) error {
	conn, err := net.DialTimeout("tcp", withDefaultPort(address), m.cfg.ConnectionTimeout)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

func (m *Manager) setStatus(id, status string) {
	m.mu.Lock()
	p, exists := m.printers[id]
	if !exists {
		m.mu.Unlock()
		return
	}
	oldStatus := p.Status
	p.Status = status
	now := time.Now()
	p.LastSeenAt = &now
	name := p.Name
	m.mu.Unlock()

	if oldStatus == status {
		return
	}

	if err := m.repo.UpdatePrinterStatus(context.Background(), id, status); err != nil {
		m.logger.Error("failed to persist printer status", "printer_id", id, "error", err)
	}
	if m.notifier != nil {
		go m.notifier.PrinterStatusChanged(id, name, oldStatus, status)
	}
}

func (m *Manager) CheckAll(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.printers))
	for id := range m.printers {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if _, err := m.DetailedStatus(ctx, id); err != nil {
			m.setStatus(id, string(core.PrinterOffline))
		}
	}
}

func (m *Manager) healthCheckLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	m.CheckAll(context.Background())

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.CheckAll(context.Background())
		}
	}
}

func withDefaultPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, defaultTCPPort)
}
