// Package jobmanager implements C9 JobManager: job lifecycle,
// in-memory progress tracking and cooperative pause/resume/cancel
// (spec.md §4.9).
package jobmanager

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/videoindex/ingestor/internal/apperr"
	"github.com/videoindex/ingestor/internal/models"
	"github.com/videoindex/ingestor/internal/pipeline"
)

// SnapshotStore mirrors job state into Postgres (spec.md §5,
// internal/snapshot) as a best-effort, write-only sink: a mirror
// failure is logged, never surfaced to the caller, and jobs are never
// restored from it.
type SnapshotStore interface {
	UpsertJob(job models.Job) error
}

// jobState is the mutable runtime state for one Job, kept separate
// from the persisted-looking models.Job so the control flags never
// get serialized out to API responses by accident.
type jobState struct {
	mu              sync.Mutex
	job             models.Job
	paused          bool
	cancel          context.CancelFunc
	cancelRequested bool
	done            bool
	authCookies     string
}

// Dispatcher hands a job id off for background execution. The
// concrete implementation (internal/queue) enqueues an asynq task that
// calls back into Manager.Execute on a worker goroutine. Job state is
// held only in this Manager's memory, so Execute finds only jobs that
// this process started; it is not restored after a restart.
type Dispatcher interface {
	Enqueue(jobID string) error
}

// Manager owns every known Job and, once dispatched, runs each job's
// creators serially through the pipeline.
type Manager struct {
	pipeline   *pipeline.Pipeline
	dispatcher Dispatcher
	snapshots  SnapshotStore

	jobsMutex sync.RWMutex
	jobs      map[string]*jobState
}

// New builds a Manager around an already-wired Pipeline. SetDispatcher
// must be called before Start, once the queue is constructed (the
// queue in turn needs a reference back to the manager, so the two are
// wired after both exist).
func New(p *pipeline.Pipeline) *Manager {
	return &Manager{pipeline: p, jobs: map[string]*jobState{}}
}

// SetDispatcher wires the background dispatcher. Must be called once
// at startup before any Start call.
func (m *Manager) SetDispatcher(d Dispatcher) {
	m.dispatcher = d
}

// SetSnapshotStore wires the optional Postgres job mirror. Safe to
// leave unset (or set to nil): snapshotJob becomes a no-op.
func (m *Manager) SetSnapshotStore(s SnapshotStore) {
	m.snapshots = s
}

// snapshotJob mirrors the current job state, best-effort.
func (m *Manager) snapshotJob(job models.Job) {
	if m.snapshots == nil {
		return
	}
	if err := m.snapshots.UpsertJob(job); err != nil {
		log.Printf("job %s: snapshot mirror failed: %v", job.JobID, err)
	}
}

// Start creates a new Job for the given creators and hands it to the
// dispatcher for background execution. Returns the job id immediately.
func (m *Manager) Start(creators []string, filters models.Filters, settings models.Settings, authCookies string) (string, error) {
	jobID := uuid.NewString()
	_, cancel := context.WithCancel(context.Background())

	job := models.Job{
		JobID:     jobID,
		Creators:  creators,
		Filters:   filters,
		Settings:  settings,
		Status:    models.JobQueued,
		CreatedAt: time.Now(),
	}
	for _, c := range creators {
		job.Accounts = append(job.Accounts, models.AccountProgress{Creator: c, Status: "queued"})
	}

	state := &jobState{job: job, cancel: cancel, authCookies: authCookies}

	m.jobsMutex.Lock()
	m.jobs[jobID] = state
	m.jobsMutex.Unlock()
	m.snapshotJob(job)

	if err := m.dispatcher.Enqueue(jobID); err != nil {
		return "", apperr.Wrap(apperr.KindInternalError, "enqueue job", err)
	}
	return jobID, nil
}

// Execute drives one job's creators sequentially, per spec.md §4.9: a
// job spans one or more creators, each processed in turn, with
// progress visible the whole way through. Called by the queue's
// worker handler once a task is dequeued.
func (m *Manager) Execute(jobID string) error {
	state, err := m.lookup(jobID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	authCookies := state.authCookies
	state.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	state.mu.Lock()
	state.cancel = cancel
	requestedEarly := state.cancelRequested
	state.mu.Unlock()
	if requestedEarly {
		cancel()
	}

	m.run(ctx, state, authCookies)
	return nil
}

func (m *Manager) run(ctx context.Context, state *jobState, authCookies string) {
	now := time.Now()
	state.mu.Lock()
	state.job.Status = models.JobFetchingMetadata
	state.job.StartedAt = &now
	job := state.job
	state.mu.Unlock()
	m.snapshotJob(job)

	for i := range state.job.Accounts {
		creator := state.job.Accounts[i].Creator

		state.mu.Lock()
		state.job.Accounts[i].Status = "running"
		filters := state.job.Filters
		settings := state.job.Settings
		state.mu.Unlock()

		hook := func(update pipeline.VideoUpdate) {
			m.applyVideoUpdate(state, creator, update)
		}
		suspend := func() bool {
			state.mu.Lock()
			defer state.mu.Unlock()
			return state.paused
		}

		err := m.pipeline.ProcessAccount(ctx, creator, filters, settings, authCookies, hook, suspend)

		state.mu.Lock()
		if err != nil {
			if ctx.Err() != nil {
				state.job.Status = models.JobCancelled
				job := state.job
				state.mu.Unlock()
				m.snapshotJob(job)
				m.finish(state)
				return
			}
			state.job.Accounts[i].Status = "failed"
			state.job.Error = err.Error()
			log.Printf("job %s: account %s failed: %v", state.job.JobID, creator, err)
		} else {
			state.job.Accounts[i].Status = "complete"
		}
		state.mu.Unlock()
	}

	state.mu.Lock()
	if state.job.Status != models.JobCancelled {
		if state.job.Error != "" {
			state.job.Status = models.JobFailed
		} else {
			state.job.Status = models.JobComplete
		}
		completed := time.Now()
		state.job.CompletedAt = &completed
	}
	job := state.job
	state.mu.Unlock()
	m.snapshotJob(job)

	m.finish(state)
}

func (m *Manager) finish(state *jobState) {
	state.mu.Lock()
	state.done = true
	state.mu.Unlock()
}

func (m *Manager) applyVideoUpdate(state *jobState, creator string, update pipeline.VideoUpdate) {
	state.mu.Lock()
	defer state.mu.Unlock()

	for i := range state.job.Accounts {
		if state.job.Accounts[i].Creator != creator {
			continue
		}
		acc := &state.job.Accounts[i]
		acc.CurrentVideo = update.VideoID

		var video *models.VideoProgress
		for j := range acc.Videos {
			if acc.Videos[j].VideoID == update.VideoID {
				video = &acc.Videos[j]
				break
			}
		}
		if video == nil {
			acc.Videos = append(acc.Videos, models.VideoProgress{VideoID: update.VideoID})
			video = &acc.Videos[len(acc.Videos)-1]
			acc.FilteredCount++
		}
		video.Status = update.Status
		video.Step = update.Status
		video.Error = update.Error

		switch update.Status {
		case "fetching":
			started := time.Now()
			video.StartedAt = &started
		case "complete":
			completed := time.Now()
			video.CompletedAt = &completed
			video.ProgressPct = 100
			acc.Processed++
		case "skipped_no_speech", "skipped_existing":
			completed := time.Now()
			video.CompletedAt = &completed
			acc.Skipped++
		case "failed":
			completed := time.Now()
			video.CompletedAt = &completed
			acc.Failed++
		}
		return
	}
}

// Get returns a snapshot copy of a Job, or apperr.KindJobNotFound.
func (m *Manager) Get(jobID string) (models.Job, error) {
	m.jobsMutex.RLock()
	state, ok := m.jobs[jobID]
	m.jobsMutex.RUnlock()
	if !ok {
		return models.Job{}, apperr.New(apperr.KindJobNotFound, fmt.Sprintf("job %s not found", jobID))
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.job, nil
}

// List returns a snapshot copy of every known Job.
func (m *Manager) List() []models.Job {
	m.jobsMutex.RLock()
	defer m.jobsMutex.RUnlock()
	out := make([]models.Job, 0, len(m.jobs))
	for _, state := range m.jobs {
		state.mu.Lock()
		out = append(out, state.job)
		state.mu.Unlock()
	}
	return out
}

// Pause flips the cooperative pause flag; the pipeline observes it at
// its next per-video suspension point (spec.md §4.9). Terminal jobs
// cannot be paused.
func (m *Manager) Pause(jobID string) error {
	state, err := m.lookup(jobID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	if isTerminal(state.job.Status) {
		state.mu.Unlock()
		return apperr.New(apperr.KindJobNotPausable, fmt.Sprintf("job %s is already terminal", jobID))
	}
	state.paused = true
	state.job.Status = models.JobPaused
	job := state.job
	state.mu.Unlock()
	m.snapshotJob(job)
	return nil
}

// Resume clears the pause flag, letting the run loop continue.
func (m *Manager) Resume(jobID string) error {
	state, err := m.lookup(jobID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	if state.job.Status != models.JobPaused {
		state.mu.Unlock()
		return apperr.New(apperr.KindJobNotResumable, fmt.Sprintf("job %s is not paused", jobID))
	}
	state.paused = false
	state.job.Status = models.JobDownloading
	job := state.job
	state.mu.Unlock()
	m.snapshotJob(job)
	return nil
}

// Cancel terminates a job's context, stopping it at the next context
// check (spec.md §4.9: cancellation is cooperative but prompt).
func (m *Manager) Cancel(jobID string) error {
	state, err := m.lookup(jobID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	if isTerminal(state.job.Status) {
		state.mu.Unlock()
		return apperr.New(apperr.KindJobAlreadyTerminal, fmt.Sprintf("job %s is already terminal", jobID))
	}
	state.cancelRequested = true
	cancel := state.cancel
	job := state.job
	state.mu.Unlock()
	m.snapshotJob(job)
	cancel()
	return nil
}

func (m *Manager) lookup(jobID string) (*jobState, error) {
	m.jobsMutex.RLock()
	defer m.jobsMutex.RUnlock()
	state, ok := m.jobs[jobID]
	if !ok {
		return nil, apperr.New(apperr.KindJobNotFound, fmt.Sprintf("job %s not found", jobID))
	}
	return state, nil
}

func isTerminal(status models.JobStatus) bool {
	switch status {
	case models.JobComplete, models.JobFailed, models.JobCancelled:
		return true
	default:
		return false
	}
}
