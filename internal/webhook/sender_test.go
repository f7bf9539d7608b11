package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rebinmas/printserver/internal/core"
	"github.com/rebinmas/printserver/internal/db"
)

type staticRegistrations struct {
	webhooks []*db.Webhook
}

func (r *staticRegistrations) ListActiveWebhooksForEvent(_ context.Context, event string) ([]*db.Webhook, error) {
	var out []*db.Webhook
	for _, w := range r.webhooks {
		var events []string
		if err := json.Unmarshal([]byte(w.EventsJSON), &events); err != nil {
			continue
		}
		for _, e := range events {
			if e == event {
				out = append(out, w)
				break
			}
		}
	}
	return out, nil
}

type capturedDelivery struct {
	event     string
	signature string
	body      []byte
}

func newSenderFixture(t *testing.T, handler http.HandlerFunc, events string, secret string) (*Sender, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	regs := &staticRegistrations{webhooks: []*db.Webhook{
		{ID: 1, Name: "test", URL: srv.URL, Secret: secret, EventsJSON: events, Enabled: true},
	}}
	sender := NewSender(regs, Config{
		RetryCount: 3,
		RetryDelay: 5 * time.Millisecond,
		Timeout:    time.Second,
	}, nil)
	sender.Start()
	t.Cleanup(sender.Stop)
	return sender, srv
}

func testCompletedJob() core.Job {
	now := time.Now()
	return core.Job{
		ID:           "job-1",
		PrinterID:    "printer-1",
		DocumentName: "report.pdf",
		Status:       core.JobStatusCompleted,
		Progress:     100,
		CreatedAt:    now.Add(-time.Minute),
		CompletedAt:  &now,
	}
}

func TestJobEventDelivery(t *testing.T) {
	var mu sync.Mutex
	var deliveries []capturedDelivery

	sender, _ := newSenderFixture(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		deliveries = append(deliveries, capturedDelivery{
			event:     r.Header.Get("X-Webhook-Event"),
			signature: r.Header.Get("X-Webhook-Signature"),
			body:      body,
		})
		mu.Unlock()
	}, `["job_completed"]`, "hook-secret")

	sender.JobEvent(core.EventJobCompleted, testCompletedJob())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deliveries) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	d := deliveries[0]
	mu.Unlock()

	assert.Equal(t, "job_completed", d.event)

	var payload Payload
	require.NoError(t, json.Unmarshal(d.body, &payload))
	assert.Equal(t, "job_completed", payload.Event)

	dataBytes, err := json.Marshal(payload.Data)
	require.NoError(t, err)
	var data JobEventData
	require.NoError(t, json.Unmarshal(dataBytes, &data))
	assert.Equal(t, "job-1", data.JobID)
	assert.Equal(t, 100, data.Progress)
	assert.Equal(t, "completed", data.Status)

	// signature covers the data document
	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write(dataBytes)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), d.signature)
}

func TestUnsubscribedEventSkipped(t *testing.T) {
	var hits atomic.Int32
	sender, _ := newSenderFixture(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}, `["job_failed"]`, "")

	sender.JobEvent(core.EventJobCompleted, testCompletedJob())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), hits.Load())
}

func TestRetryOnServerError(t *testing.T) {
	var hits atomic.Int32
	sender, _ := newSenderFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}, `["job_completed"]`, "")

	sender.JobEvent(core.EventJobCompleted, testCompletedJob())

	require.Eventually(t, func() bool {
		return hits.Load() == 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32
	sender, _ := newSenderFixture(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}, `["job_completed"]`, "")

	sender.JobEvent(core.EventJobCompleted, testCompletedJob())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClientErrorDetection(t *testing.T) {
	assert.True(t, isClientError(&statusError{code: 404}))
	assert.True(t, isClientError(fmt.Errorf("max retries exceeded: %w", &statusError{code: 422})))
	assert.False(t, isClientError(&statusError{code: 503}))

	// only the typed status matters, not the message text
	assert.False(t, isClientError(errors.New("http error: 400")))
	assert.False(t, isClientError(nil))
}

func TestPrinterStatusChangedDelivery(t *testing.T) {
	var mu sync.Mutex
	var body []byte

	sender, _ := newSenderFixture(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = b
		mu.Unlock()
	}, `["printer_status_changed"]`, "")

	sender.PrinterStatusChanged("printer-1", "Office", "offline", "ready")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return body != nil
	}, time.Second, 5*time.Millisecond)

	var payload Payload
	mu.Lock()
	require.NoError(t, json.Unmarshal(body, &payload))
	mu.Unlock()
	assert.Equal(t, EventPrinterStatusChanged, payload.Event)

	dataBytes, _ := json.Marshal(payload.Data)
	var data PrinterStatusData
	require.NoError(t, json.Unmarshal(dataBytes, &data))
	assert.Equal(t, "offline", data.PreviousStatus)
	assert.Equal(t, "ready", data.NewStatus)
}
