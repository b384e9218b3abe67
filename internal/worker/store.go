package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"dental-inference-service/internal/core/domain"
)

// job is one submitted analysis as the store tracks it. Jobs live in memory
// for the lifetime of the process.
type job struct {
	ID        string
	Status    domain.JobStatus
	Input     domain.JobInput
	Output    json.RawMessage
	Error     string
	CreatedAt time.Time

	cancel context.CancelFunc
}

type jobStore struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[string]*job)}
}

func (st *jobStore) create(input domain.JobInput) *domain.RemoteJob {
	st.mu.Lock()
	defer st.mu.Unlock()

	j := &job{
		ID:        uuid.New().String(),
		Status:    domain.JobStatusInQueue,
		Input:     input,
		CreatedAt: time.Now(),
	}
	st.jobs[j.ID] = j
	return snapshot(j)
}

func (st *jobStore) get(id string) (*domain.RemoteJob, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	j, ok := st.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return snapshot(j), nil
}

func (st *jobStore) remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.jobs, id)
}

// markRunning moves a queued job to IN_PROGRESS and installs its cancel
// function. It reports false when the job is gone or no longer queued, which
// happens when a cancel raced the dispatcher.
func (st *jobStore) markRunning(id string, cancel context.CancelFunc) (domain.JobInput, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	j, ok := st.jobs[id]
	if !ok || j.Status != domain.JobStatusInQueue {
		return domain.JobInput{}, false
	}
	j.Status = domain.JobStatusInProgress
	j.cancel = cancel
	return j.Input, true
}

func (st *jobStore) complete(id string, output json.RawMessage) {
	st.mu.Lock()
	defer st.mu.Unlock()

	j, ok := st.jobs[id]
	if !ok || j.Status.IsTerminal() {
		return
	}
	j.Status = domain.JobStatusCompleted
	j.Output = output
	j.cancel = nil
}

func (st *jobStore) fail(id, message string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	j, ok := st.jobs[id]
	if !ok || j.Status.IsTerminal() {
		return
	}
	j.Status = domain.JobStatusFailed
	j.Error = message
	j.cancel = nil
}

// cancel stops a queued or running job and marks it FAILED. Terminal jobs
// are returned as they are.
func (st *jobStore) cancel(id string) (*domain.RemoteJob, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	j, ok := st.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if !j.Status.IsTerminal() {
		if j.cancel != nil {
			j.cancel()
		}
		j.Status = domain.JobStatusFailed
		j.Error = "cancelled by request"
		j.cancel = nil
	}
	return snapshot(j), nil
}

// snapshot copies the wire-visible part of a job. Callers hold the store
// lock.
func snapshot(j *job) *domain.RemoteJob {
	return &domain.RemoteJob{
		ID:     j.ID,
		Status: j.Status,
		Output: j.Output,
		Error:  j.Error,
	}
}
