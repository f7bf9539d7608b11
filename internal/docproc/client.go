package docproc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rebinmas/printserver/internal/core"
)

var ErrNotConfigured = errors.New("document processor not configured")

// ArtifactStore reads source documents and stores processed output.
type ArtifactStore interface {
	Open(ref string) (io.ReadCloser, error)
	DocumentName(ref string) string
	SaveProcessed(srcRef, suffix string, r io.Reader) (string, error)
}

// Client sends documents to the external conversion service and stores the
// returned artifact. It implements the gateway's document-processing step.
type Client struct {
	baseURL string
	client  *http.Client
	store   ArtifactStore
	logger  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, store ArtifactStore, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		store:   store,
		logger:  logger,
	}
}

// Process uploads the document with its processing settings and stores the
// converted result, returning the new file reference.
func (c *Client) Process(ctx context.Context, fileRef string, settings core.DocumentSettings) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}

	src, err := c.store.Open(fileRef)
	if err != nil {
		return "", fmt.Errorf("failed to open source document: %w", err)
	}
	defer src.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", c.store.DocumentName(fileRef))
	if err != nil {
		return "", fmt.Errorf("failed to build process request: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return "", fmt.Errorf("failed to read source document: %w", err)
	}

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := writer.WriteField("settings", string(settingsJSON)); err != nil {
		return "", fmt.Errorf("failed to build process request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build process request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process", &body)
	if err != nil {
		return "", fmt.Errorf("failed to build process request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("processor unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("processor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	suffix := ""
	if settings.TargetFormat != "" {
		suffix = "." + settings.TargetFormat
	}
	ref, err := c.store.SaveProcessed(fileRef, suffix, resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to store processed document: %w", err)
	}

	c.logger.Debug("document processed", slog.String("source", fileRef), slog.String("result", ref))
	return ref, nil
}
