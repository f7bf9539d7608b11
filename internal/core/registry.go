package core

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

type RegistryConfig struct {
	HistoryCap   int
	HistoryGrace time.Duration
}

// Registry owns every job. Jobs are mutated only through its transition
// operations, which compare the current status before writing so a cancel
// is never overwritten by a monitor tick scheduled before the cancel landed.
type Registry struct {
	mu         sync.RWMutex
	jobs       map[string]*Job
	history    []*Job
	historyCap int
	grace      time.Duration
	monitors   map[string]struct{}
	sink       EventSink
	store      HistoryStore
	logger     *slog.Logger
}

func NewRegistry(cfg RegistryConfig, sink EventSink, store HistoryStore, logger *slog.Logger) *Registry {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		jobs:       make(map[string]*Job),
		historyCap: cfg.HistoryCap,
		grace:      cfg.HistoryGrace,
		monitors:   make(map[string]struct{}),
		sink:       sink,
		store:      store,
		logger:     logger,
	}
}

// Restore loads persisted terminal jobs into history, most recent first.
func (r *Registry) Restore() error {
	if r.store == nil {
		return nil
	}
	jobs, err := r.store.Load(r.historyCap)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = r.history[:0]
	for i := range jobs {
		j := jobs[i]
		r.history = append(r.history, &j)
	}
	return nil
}

func (r *Registry) Add(job *Job) error {
	r.mu.Lock()
	if _, exists := r.jobs[job.ID]; exists {
		r.mu.Unlock()
		return ErrDuplicateJob
	}
	r.jobs[job.ID] = job
	snapshot := *job.clone()
	r.mu.Unlock()

	r.notify(EventJobSubmitted, snapshot)
	return nil
}

// Get returns a copy of the job, looking in the active set first and then
// in history.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if job, ok := r.jobs[id]; ok {
		return job.clone(), nil
	}
	for _, job := range r.history {
		if job.ID == id {
			return job.clone(), nil
		}
	}
	return nil, ErrJobNotFound
}

// Transition moves a job from one status to another atomically. The write
// only happens when the job is still in the expected state and the move is
// allowed by the state graph; otherwise an InvalidStateError is returned.
func (r *Registry) Transition(id string, from, to JobStatus, mutate func(*Job)) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return ErrJobNotFound
	}
	if job.Status != from || !from.CanTransitionTo(to) {
		status := job.Status
		r.mu.Unlock()
		return &InvalidStateError{JobID: id, Status: status, Op: "transition to " + string(to)}
	}

	job.Status = to
	if mutate != nil {
		mutate(job)
	}
	if to.Terminal() {
		now := time.Now()
		job.CompletedAt = &now
	}
	snapshot := *job.clone()
	r.mu.Unlock()

	r.notify(statusEvent(to), snapshot)
	if to.Terminal() {
		r.scheduleMigration(id)
	}
	return nil
}

// Cancel applies cancel semantics: pending and printing jobs move straight
// to cancelled; terminal jobs are rejected with an InvalidStateError.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		for _, h := range r.history {
			if h.ID == id {
				status := h.Status
				r.mu.Unlock()
				return &InvalidStateError{JobID: id, Status: status, Op: "cancel"}
			}
		}
		r.mu.Unlock()
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		status := job.Status
		r.mu.Unlock()
		return &InvalidStateError{JobID: id, Status: status, Op: "cancel"}
	}

	job.Status = JobStatusCancelled
	now := time.Now()
	job.CompletedAt = &now
	snapshot := *job.clone()
	r.mu.Unlock()

	r.notify(EventJobCancelled, snapshot)
	r.scheduleMigration(id)
	return nil
}

// Update mutates a job in place without changing its status. Terminal jobs
// are rejected.
func (r *Registry) Update(id string, mutate func(*Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return &InvalidStateError{JobID: id, Status: job.Status, Op: "update"}
	}
	mutate(job)
	return nil
}

// SetProgress records a new progress value. Values never decrease, never
// exceed 100, and are rejected once the job is terminal so a late monitor
// tick cannot write after a cancel.
func (r *Registry) SetProgress(id string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return &InvalidStateError{JobID: id, Status: job.Status, Op: "update progress of"}
	}
	if progress > 100 {
		progress = 100
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	return nil
}

// List pages through active jobs and history, newest first, optionally
// filtered by status. Returns the page items, the total match count and the
// number of pages.
func (r *Registry) List(status JobStatus, page, pageSize int) ([]*Job, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	r.mu.RLock()
	matched := make([]*Job, 0, len(r.jobs)+len(r.history))
	for _, job := range r.jobs {
		if status == "" || job.Status == status {
			matched = append(matched, job.clone())
		}
	}
	for _, job := range r.history {
		if status == "" || job.Status == status {
			matched = append(matched, job.clone())
		}
	}
	r.mu.RUnlock()

	sortJobsNewestFirst(matched)

	total := len(matched)
	pages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start >= total {
		return []*Job{}, total, pages
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, pages
}

// History returns a copy of the terminal-job history, most recent first.
func (r *Registry) History() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Job, 0, len(r.history))
	for _, job := range r.history {
		out = append(out, job.clone())
	}
	return out
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// AcquireMonitor claims the single monitor slot for a job id. It returns
// false when a monitor is already active for that job.
func (r *Registry) AcquireMonitor(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, running := r.monitors[id]; running {
		return false
	}
	r.monitors[id] = struct{}{}
	return true
}

func (r *Registry) ReleaseMonitor(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.monitors, id)
}

func (r *Registry) MonitorActive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, running := r.monitors[id]
	return running
}

func (r *Registry) scheduleMigration(id string) {
	if r.grace <= 0 {
		r.migrateToHistory(id)
		return
	}
	time.AfterFunc(r.grace, func() { r.migrateToHistory(id) })
}

// migrateToHistory moves a terminal job from the active set to the front of
// the capped history, evicting the oldest entry when the cap is exceeded.
func (r *Registry) migrateToHistory(id string) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok || !job.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	delete(r.jobs, id)
	r.history = append([]*Job{job}, r.history...)
	if len(r.history) > r.historyCap {
		r.history = r.history[:r.historyCap]
	}
	snapshot := *job.clone()
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Append(snapshot); err != nil {
			r.logger.Error("failed to persist job history", "job_id", id, "error", err)
		} else if err := r.store.Trim(r.historyCap); err != nil {
			r.logger.Error("failed to trim job history", "error", err)
		}
	}
}

func (r *Registry) notify(event string, job Job) {
	if r.sink == nil {
		return
	}
	r.sink.JobEvent(event, job)
}

func statusEvent(status JobStatus) string {
	switch status {
	case JobStatusPrinting:
		return EventJobPrinting
	case JobStatusCompleted:
		return EventJobCompleted
	case JobStatusFailed:
		return EventJobFailed
	case JobStatusCancelled:
		return EventJobCancelled
	default:
		return EventJobSubmitted
	}
}

func sortJobsNewestFirst(jobs []*Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
