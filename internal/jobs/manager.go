// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mapsheets/mapsheets/internal/log"
	"github.com/mapsheets/mapsheets/internal/sheets"
)

// Job is a snapshot of one download batch.
type Job struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Progress  Progress  `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type jobState struct {
	job    Job
	cancel context.CancelFunc
}

// Manager starts download jobs and tracks their state in memory.
type Manager struct {
	runner *Runner

	mu   sync.Mutex
	jobs map[string]*jobState
}

// NewManager builds a Manager around a Runner.
func NewManager(runner *Runner) *Manager {
	return &Manager{runner: runner, jobs: make(map[string]*jobState)}
}

// Start launches a download batch in the background and returns its job id.
// The job runs detached from the caller's request lifetime; ctx only seeds
// log context values.
func (m *Manager) Start(ctx context.Context, selection []*sheets.Sheet, opts Options) string {
	id := uuid.NewString()
	now := time.Now().UTC()

	runCtx, cancel := context.WithCancel(context.Background())
	runCtx = log.ContextWithJobID(runCtx, id)
	if rid := log.RequestIDFromContext(ctx); rid != "" {
		runCtx = log.ContextWithRequestID(runCtx, rid)
	}

	m.mu.Lock()
	m.jobs[id] = &jobState{
		job: Job{
			ID:        id,
			Status:    StatusPending,
			Progress:  Progress{Total: len(selection)},
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}
	m.mu.Unlock()

	go m.run(runCtx, id, selection, opts)
	return id
}

func (m *Manager) run(ctx context.Context, id string, selection []*sheets.Sheet, opts Options) {
	logger := log.WithComponentFromContext(ctx, "jobs")

	m.transition(id, StatusRunning, "")
	logger.Info().
		Str("event", "job.started").
		Int("sheets", len(selection)).
		Msg("download job started")

	progress, err := m.runner.Run(ctx, selection, opts, func(p Progress) {
		m.setProgress(id, p)
	})
	m.setProgress(id, progress)

	switch {
	case err != nil && ctx.Err() != nil:
		m.transition(id, StatusCancelled, "")
		logger.Info().Str("event", "job.cancelled").Msg("download job cancelled")
	case err != nil:
		m.transition(id, StatusFailed, err.Error())
		logger.Error().Err(err).Str("event", "job.failed").Msg("download job failed")
	default:
		m.transition(id, StatusCompleted, "")
		logger.Info().
			Str("event", "job.completed").
			Int("done", progress.Done).
			Int("failed", progress.Failed).
			Int("skipped", progress.Skipped).
			Msg("download job completed")
	}
}

// Get returns a snapshot of the job with the given id.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return st.job, true
}

// List returns snapshots of all known jobs, newest first.
func (m *Manager) List() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, st := range m.jobs {
		out = append(out, st.job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Cancel requests cancellation of a running job. Cancelling a terminal job
// is a no-op; unknown ids return false.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	st, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	st.cancel()
	return true
}

func (m *Manager) transition(id string, target Status, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.jobs[id]
	if !ok || !st.job.Status.CanTransitionTo(target) {
		return
	}
	st.job.Status = target
	st.job.Error = errMsg
	st.job.UpdatedAt = time.Now().UTC()
}

func (m *Manager) setProgress(id string, p Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.jobs[id]; ok {
		st.job.Progress = p
		st.job.UpdatedAt = time.Now().UTC()
	}
}
