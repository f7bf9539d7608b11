package core

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) JobEvent(event string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event+":"+job.ID)
}

func (s *recordingSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type fakeHistoryStore struct {
	mu       sync.Mutex
	appended []Job
	seed     []Job
	trims    []int
}

func (s *fakeHistoryStore) Append(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, job)
	return nil
}

func (s *fakeHistoryStore) Load(limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seed) > limit {
		return s.seed[:limit], nil
	}
	return s.seed, nil
}

func (s *fakeHistoryStore) Trim(capSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trims = append(s.trims, capSize)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, cfg RegistryConfig) (*Registry, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	return NewRegistry(cfg, sink, nil, quietLogger()), sink
}

func testJob(printerID string) *Job {
	return NewJob("file-1", "doc.pdf", printerID, PrintSettings{Copies: 1}, DocumentSettings{})
}

func TestTransitionGraph(t *testing.T) {
	reg, _ := newTestRegistry(t, RegistryConfig{})

	job := testJob("p1")
	require.NoError(t, reg.Add(job))

	// pending cannot jump straight to completed
	err := reg.Transition(job.ID, JobStatusPending, JobStatusCompleted, nil)
	var iserr *InvalidStateError
	require.ErrorAs(t, err, &iserr)

	require.NoError(t, reg.Transition(job.ID, JobStatusPending, JobStatusPrinting, nil))

	// stale expected status is rejected
	err = reg.Transition(job.ID, JobStatusPending, JobStatusFailed, nil)
	require.ErrorAs(t, err, &iserr)

	require.NoError(t, reg.Transition(job.ID, JobStatusPrinting, JobStatusCompleted, nil))

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	err = reg.Transition(job.ID, JobStatusCompleted, JobStatusFailed, nil)
	assert.Error(t, err)
}

func TestTransitionUnknownJob(t *testing.T) {
	reg, _ := newTestRegistry(t, RegistryConfig{})
	err := reg.Transition("nope", JobStatusPending, JobStatusPrinting, nil)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCancelSemantics(t *testing.T) {
	reg, _ := newTestRegistry(t, RegistryConfig{})

	job := testJob("p1")
	require.NoError(t, reg.Add(job))
	require.NoError(t, reg.Cancel(job.ID))

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, got.Status)
	require.NotNil(t, got.CompletedAt)

	// already terminal, now living in history
	var iserr *InvalidStateError
	err = reg.Cancel(job.ID)
	require.ErrorAs(t, err, &iserr)
	assert.Equal(t, JobStatusCancelled, iserr.Status)

	err = reg.Cancel("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCancelPrintingJob(t *testing.T) {
	reg, sink := newTestRegistry(t, RegistryConfig{})

	job := testJob("p1")
	require.NoError(t, reg.Add(job))
	require.NoError(t, reg.Transition(job.ID, JobStatusPending, JobStatusPrinting, nil))
	require.NoError(t, reg.Cancel(job.ID))

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, got.Status)

	assert.Equal(t, []string{
		EventJobSubmitted + ":" + job.ID,
		EventJobPrinting + ":" + job.ID,
		EventJobCancelled + ":" + job.ID,
	}, sink.all())
}

func TestSetProgressMonotonic(t *testing.T) {
	reg, _ := newTestRegistry(t, RegistryConfig{})

	job := testJob("p1")
	require.NoError(t, reg.Add(job))
	require.NoError(t, reg.Transition(job.ID, JobStatusPending, JobStatusPrinting, nil))

	require.NoError(t, reg.SetProgress(job.ID, 40))
	require.NoError(t, reg.SetProgress(job.ID, 25)) // lower values are ignored

	got, _ := reg.Get(job.ID)
	assert.Equal(t, 40, got.Progress)

	require.NoError(t, reg.SetProgress(job.ID, 150))
	got, _ = reg.Get(job.ID)
	assert.Equal(t, 100, got.Progress)
}

func TestSetProgressAfterTerminal(t *testing.T) {
	reg, _ := newTestRegistry(t, RegistryConfig{HistoryGrace: time.Minute})

	job := testJob("p1")
	require.NoError(t, reg.Add(job))
	require.NoError(t, reg.Cancel(job.ID))

	var iserr *InvalidStateError
	err := reg.SetProgress(job.ID, 50)
	require.ErrorAs(t, err, &iserr)

	got, _ := reg.Get(job.ID)
	assert.Equal(t, 0, got.Progress)
}

func TestUpdateRejectsTerminal(t *testing.T) {
	reg, _ := newTestRegistry(t, RegistryConfig{HistoryGrace: time.Minute})

	job := testJob("p1")
	require.NoError(t, reg.Add(job))
	require.NoError(t, reg.Update(job.ID, func(j *Job) { j.ProcessedRef = "proc-1" }))

	got, _ := reg.Get(job.ID)
	assert.Equal(t, "proc-1", got.ProcessedRef)

	require.NoError(t, reg.Cancel(job.ID))
	var iserr *InvalidStateError
	err := reg.Update(job.ID, func(j *Job) { j.ProcessedRef = "proc-2" })
	assert.ErrorAs(t, err, &iserr)
}

func TestHistoryCapEviction(t *testing.T) {
	store := &fakeHistoryStore{}
	reg := NewRegistry(RegistryConfig{HistoryCap: 20}, nil, store, quietLogger())

	ids := make([]string, 0, 21)
	for i := 0; i < 21; i++ {
		job := testJob(fmt.Sprintf("p%d", i))
		require.NoError(t, reg.Add(job))
		require.NoError(t, reg.Cancel(job.ID))
		ids = append(ids, job.ID)
	}

	history := reg.History()
	require.Len(t, history, 20)

	// newest first, oldest evicted
	assert.Equal(t, ids[20], history[0].ID)
	_, err := reg.Get(ids[0])
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = reg.Get(ids[1])
	assert.NoError(t, err)

	assert.Equal(t, 0, reg.ActiveCount())
	store.mu.Lock()
	assert.Len(t, store.appended, 21)
	assert.Len(t, store.trims, 21)
	store.mu.Unlock()
}

func TestRestoreFromStore(t *testing.T) {
	seed := []Job{
		{ID: "h1", Status: JobStatusCompleted, DocumentName: "a.pdf"},
		{ID: "h2", Status: JobStatusFailed, DocumentName: "b.pdf"},
	}
	store := &fakeHistoryStore{seed: seed}
	reg := NewRegistry(RegistryConfig{}, nil, store, quietLogger())

	require.NoError(t, reg.Restore())
	history := reg.History()
	require.Len(t, history, 2)
	assert.Equal(t, "h1", history[0].ID)

	got, err := reg.Get("h2")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
}

func TestListPaginationAndFilter(t *testing.T) {
	reg, _ := newTestRegistry(t, RegistryConfig{})
	base := time.Now()

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		job := testJob("p1")
		job.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, reg.Add(job))
		ids = append(ids, job.ID)
	}
	// two of them reach a terminal state
	require.NoError(t, reg.Cancel(ids[1]))
	require.NoError(t, reg.Cancel(ids[3]))

	items, total, pages := reg.List("", 1, 2)
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, pages)
	require.Len(t, items, 2)
	assert.Equal(t, ids[4], items[0].ID)
	assert.Equal(t, ids[3], items[1].ID)

	items, _, _ = reg.List("", 3, 2)
	require.Len(t, items, 1)
	assert.Equal(t, ids[0], items[0].ID)

	items, total, _ = reg.List(JobStatusCancelled, 1, 10)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)

	items, total, pages = reg.List("", 9, 2)
	assert.Empty(t, items)
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, pages)
}

func TestMonitorSlot(t *testing.T) {
	reg, _ := newTestRegistry(t, RegistryConfig{})

	assert.True(t, reg.AcquireMonitor("j1"))
	assert.False(t, reg.AcquireMonitor("j1"))
	assert.True(t, reg.MonitorActive("j1"))

	reg.ReleaseMonitor("j1")
	assert.False(t, reg.MonitorActive("j1"))
	assert.True(t, reg.AcquireMonitor("j1"))
}

func TestDuplicateAdd(t *testing.T) {
	reg, _ := newTestRegistry(t, RegistryConfig{})
	job := testJob("p1")
	require.NoError(t, reg.Add(job))
	assert.ErrorIs(t, reg.Add(job), ErrDuplicateJob)
}
