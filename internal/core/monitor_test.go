package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	mu     sync.Mutex
	detail *PrinterDetail
	err    error
}

func (p *scriptedProvider) DetailedStatus(_ context.Context, _ string) (*PrinterDetail, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	d := *p.detail
	d.Queue = append([]QueueEntry(nil), p.detail.Queue...)
	return &d, nil
}

func (p *scriptedProvider) set(detail *PrinterDetail, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detail = detail
	p.err = err
}

func queued(document string, printed, total int) *PrinterDetail {
	return &PrinterDetail{
		State:     PrinterBusy,
		Connected: true,
		Queue:     []QueueEntry{{Document: document, PagesPrinted: printed, TotalPages: total}},
	}
}

func idle() *PrinterDetail {
	return &PrinterDetail{State: PrinterReady, Connected: true}
}

func startMonitoredJob(t *testing.T, provider StatusProvider, cfg MonitorConfig) (*Registry, *MonitorRunner, *Job) {
	t.Helper()
	reg := NewRegistry(RegistryConfig{}, nil, nil, quietLogger())
	runner := NewMonitorRunner(reg, provider, cfg, quietLogger())
	t.Cleanup(runner.Stop)

	job := testJob("printer-1")
	require.NoError(t, reg.Add(job))
	require.NoError(t, reg.Transition(job.ID, JobStatusPending, JobStatusPrinting, nil))
	runner.StartMonitor(job)
	return reg, runner, job
}

func fastConfig() MonitorConfig {
	return MonitorConfig{PollInterval: 5 * time.Millisecond, FallbackStep: 5}
}

func TestMonitorTracksQueueProgress(t *testing.T) {
	provider := &scriptedProvider{detail: queued("doc.pdf", 5, 10)}
	reg, _, job := startMonitoredJob(t, provider, fastConfig())

	require.Eventually(t, func() bool {
		got, err := reg.Get(job.ID)
		return err == nil && got.Progress == 50
	}, time.Second, time.Millisecond)

	// document leaves the queue after having been seen: confirmed complete
	provider.set(idle(), nil)

	require.Eventually(t, func() bool {
		got, err := reg.Get(job.ID)
		return err == nil && got.Status == JobStatusCompleted && got.Progress == 100
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		return !reg.MonitorActive(job.ID)
	}, time.Second, time.Millisecond)
}

func TestMonitorCapsEstimatedProgress(t *testing.T) {
	// the device reports all pages printed but the document is still queued
	provider := &scriptedProvider{detail: queued("doc.pdf", 10, 10)}
	reg, _, job := startMonitoredJob(t, provider, fastConfig())

	require.Eventually(t, func() bool {
		got, err := reg.Get(job.ID)
		return err == nil && got.Progress == 95
	}, time.Second, time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 95, got.Progress)
	assert.Equal(t, JobStatusPrinting, got.Status)
}

func TestMonitorFailsOnOfflinePrinter(t *testing.T) {
	provider := &scriptedProvider{detail: queued("doc.pdf", 2, 10)}
	reg, _, job := startMonitoredJob(t, provider, fastConfig())

	require.Eventually(t, func() bool {
		got, err := reg.Get(job.ID)
		return err == nil && got.Progress > 0
	}, time.Second, time.Millisecond)

	provider.set(&PrinterDetail{State: PrinterOffline}, nil)

	require.Eventually(t, func() bool {
		got, err := reg.Get(job.ID)
		return err == nil && got.Status == JobStatusFailed
	}, time.Second, time.Millisecond)

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Contains(t, got.ErrorMessage, "offline")

	require.Eventually(t, func() bool {
		return !reg.MonitorActive(job.ID)
	}, time.Second, time.Millisecond)
}

func TestMonitorEstimatesThroughTransientErrors(t *testing.T) {
	provider := &scriptedProvider{}
	provider.set(nil, errors.New("agent timeout"))
	reg, _, job := startMonitoredJob(t, provider, fastConfig())

	// estimates climb by the fallback step and stop at the ceiling
	require.Eventually(t, func() bool {
		got, err := reg.Get(job.ID)
		return err == nil && got.Progress == 95
	}, 2*time.Second, time.Millisecond)

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPrinting, got.Status)
}

func TestMonitorStopsAfterCancel(t *testing.T) {
	provider := &scriptedProvider{detail: queued("doc.pdf", 3, 10)}
	reg, _, job := startMonitoredJob(t, provider, fastConfig())

	require.Eventually(t, func() bool {
		got, err := reg.Get(job.ID)
		return err == nil && got.Progress == 30
	}, time.Second, time.Millisecond)

	require.NoError(t, reg.Cancel(job.ID))

	require.Eventually(t, func() bool {
		return !reg.MonitorActive(job.ID)
	}, time.Second, time.Millisecond)

	// progress is frozen at its last value
	time.Sleep(30 * time.Millisecond)
	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, got.Status)
	assert.Equal(t, 30, got.Progress)
}

func TestMonitorCompletesIdleNearDoneJob(t *testing.T) {
	// never seen in the queue, but estimated past the ceiling while the
	// device sits ready with nothing queued
	provider := &scriptedProvider{detail: idle()}
	reg := NewRegistry(RegistryConfig{}, nil, nil, quietLogger())
	runner := NewMonitorRunner(reg, provider, fastConfig(), quietLogger())
	t.Cleanup(runner.Stop)

	job := testJob("printer-1")
	require.NoError(t, reg.Add(job))
	require.NoError(t, reg.Transition(job.ID, JobStatusPending, JobStatusPrinting, nil))
	require.NoError(t, reg.SetProgress(job.ID, 95))
	runner.StartMonitor(job)

	require.Eventually(t, func() bool {
		got, err := reg.Get(job.ID)
		return err == nil && got.Status == JobStatusCompleted && got.Progress == 100
	}, time.Second, time.Millisecond)
}

func TestStartMonitorIsIdempotent(t *testing.T) {
	provider := &scriptedProvider{detail: queued("doc.pdf", 1, 10)}
	reg, runner, job := startMonitoredJob(t, provider, fastConfig())

	// second start finds the slot taken and backs off
	runner.StartMonitor(job)
	assert.True(t, reg.MonitorActive(job.ID))
}
