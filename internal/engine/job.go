package engine

import (
	"sync"
	"time"

	"github.com/zheng/gpuswitch/pkg/models"
)

// jobTracker owns the current-switch record (JOB_STATE_LOCK in the
// spec): the pipeline goroutine is the sole writer, and snapshot returns
// deep copies to readers so a concurrent GET /status never observes a
// job record mid-mutation.
type jobTracker struct {
	mu      sync.Mutex
	current *models.SwitchJob
	nextID  int64
}

func newJobTracker() *jobTracker {
	return &jobTracker{}
}

// start creates and installs a new job record as the current one,
// returning it for the pipeline to mutate directly (only the owning
// goroutine touches the returned pointer's fields outside the mutex;
// all mutation goes through the tracker's methods below).
func (t *jobTracker) start(fromModel, toModel string) *models.SwitchJob {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	now := time.Now()
	job := &models.SwitchJob{
		ID:        t.nextID,
		State:     models.JobRunning,
		FromModel: fromModel,
		ToModel:   toModel,
		StartedAt: now,
		UpdatedAt: now,
	}
	t.current = job
	return job
}

// step appends a step record and advances current_step/state_text.
func (t *jobTracker) step(job *models.SwitchJob, name string, ok bool, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	job.Steps = append(job.Steps, models.StepRecord{Step: name, At: now, OK: ok, Detail: detail})
	job.CurrentStep = name
	job.UpdatedAt = now
}

// setStateText updates the human-readable progress text without
// recording a step.
func (t *jobTracker) setStateText(job *models.SwitchJob, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job.StateText = text
	job.UpdatedAt = time.Now()
}

// finish marks job terminal.
func (t *jobTracker) finish(job *models.SwitchJob, state models.JobState, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	job.State = state
	job.Error = errMsg
	job.FinishedAt = &now
	job.DurationMS = now.Sub(job.StartedAt).Milliseconds()
	job.UpdatedAt = now
	job.Ready = state == models.JobSuccess
}

// snapshot returns a deep copy of job suitable for a concurrent reader.
func (t *jobTracker) snapshot(job *models.SwitchJob) *models.SwitchJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	return deepCopyJob(job)
}

// currentSnapshot returns a deep copy of the most-recently-started job,
// or nil if none has started.
func (t *jobTracker) currentSnapshot() *models.SwitchJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	return deepCopyJob(t.current)
}

func deepCopyJob(job *models.SwitchJob) *models.SwitchJob {
	cp := *job
	cp.Steps = make([]models.StepRecord, len(job.Steps))
	copy(cp.Steps, job.Steps)
	if job.FinishedAt != nil {
		finished := *job.FinishedAt
		cp.FinishedAt = &finished
	}
	return &cp
}
