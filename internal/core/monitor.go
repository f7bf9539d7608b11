package core

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type MonitorConfig struct {
	PollInterval time.Duration
	FallbackStep int
}

// progressCeiling caps estimated progress below 100: a printer may report
// the full page count before physically finishing, so 100 is only written
// when completion is confirmed.
const progressCeiling = 95

// MonitorRunner runs one independent polling task per active job. Each task
// derives the job's progress from the Printer Status Provider and stops
// itself on the first terminal status it observes.
type MonitorRunner struct {
	registry *Registry
	provider StatusProvider
	interval time.Duration
	step     int
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewMonitorRunner(registry *Registry, provider StatusProvider, cfg MonitorConfig, logger *slog.Logger) *MonitorRunner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.FallbackStep <= 0 {
		cfg.FallbackStep = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitorRunner{
		registry: registry,
		provider: provider,
		interval: cfg.PollInterval,
		step:     cfg.FallbackStep,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// StartMonitor spawns the polling task for a job. The registry's monitor
// slot guarantees at most one task per job id; a second start is a no-op.
func (m *MonitorRunner) StartMonitor(job *Job) {
	if !m.registry.AcquireMonitor(job.ID) {
		m.logger.Warn("monitor already active", slog.String("job_id", job.ID))
		return
	}
	m.wg.Add(1)
	go m.watch(job.ID, job.PrinterID, job.DocumentName)
}

// Stop terminates all monitor tasks and waits for them to exit.
func (m *MonitorRunner) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *MonitorRunner) watch(jobID, printerID, document string) {
	defer m.wg.Done()
	defer m.registry.ReleaseMonitor(jobID)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	seenInQueue := false
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			done, seen := m.tick(jobID, printerID, document, seenInQueue)
			if done {
				return
			}
			seenInQueue = seen
		}
	}
}

// tick runs one poll cycle. It returns done=true when the monitor must stop
// and the updated seen-in-queue flag otherwise.
func (m *MonitorRunner) tick(jobID, printerID, document string, seenInQueue bool) (done, seen bool) {
	job, err := m.registry.Get(jobID)
	if err != nil {
		return true, seenInQueue
	}
	if job.Status.Terminal() {
		// set externally, e.g. by cancellation; no further writes
		return true, seenInQueue
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	detail, err := m.provider.DetailedStatus(ctx, printerID)
	cancel()
	if err != nil {
		// transient provider failure: estimate and keep polling
		m.bump(jobID, job.Progress)
		return false, seenInQueue
	}

	if detail.State == PrinterOffline || detail.State == PrinterError {
		failure := &PrinterFailure{PrinterID: printerID, DeviceStatus: string(detail.State)}
		m.failJob(jobID, failure.Error())
		return true, seenInQueue
	}

	entry := matchQueueEntry(detail.Queue, document)
	switch {
	case entry != nil && entry.TotalPages > 0:
		seenInQueue = true
		progress := entry.PagesPrinted * 100 / entry.TotalPages
		if progress > progressCeiling {
			progress = progressCeiling
		}
		if err := m.registry.SetProgress(jobID, progress); err != nil {
			return true, seenInQueue
		}

	case entry != nil:
		seenInQueue = true
		m.bump(jobID, job.Progress)

	default:
		// the document is no longer queued: either it finished or it has
		// progressed past the point of being queued
		if seenInQueue || (job.Progress >= progressCeiling && detail.State == PrinterReady && len(detail.Queue) == 0) {
			m.complete(jobID)
			return true, seenInQueue
		}
		m.bump(jobID, job.Progress)
	}

	return false, seenInQueue
}

func (m *MonitorRunner) bump(jobID string, current int) {
	next := current + m.step
	if next > progressCeiling {
		next = progressCeiling
	}
	if err := m.registry.SetProgress(jobID, next); err != nil {
		m.logger.Debug("progress write rejected", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}

func (m *MonitorRunner) complete(jobID string) {
	err := m.registry.Transition(jobID, JobStatusPrinting, JobStatusCompleted, func(j *Job) {
		j.Progress = 100
	})
	if err != nil {
		// lost the race against a cancel; leave the job as it is
		m.logger.Debug("completion superseded", slog.String("job_id", jobID), slog.String("error", err.Error()))
		return
	}
	m.logger.Info("job completed", slog.String("job_id", jobID))
}

func (m *MonitorRunner) failJob(jobID, detail string) {
	err := m.registry.Transition(jobID, JobStatusPrinting, JobStatusFailed, func(j *Job) {
		j.ErrorMessage = detail
	})
	if err != nil {
		m.logger.Debug("failure superseded", slog.String("job_id", jobID), slog.String("error", err.Error()))
		return
	}
	m.logger.Warn("job failed", slog.String("job_id", jobID), slog.String("detail", detail))
}

func matchQueueEntry(queue []QueueEntry, document string) *QueueEntry {
	for i := range queue {
		if queue[i].Document == document || strings.Contains(queue[i].Document, document) {
			return &queue[i]
		}
	}
	return nil
}
