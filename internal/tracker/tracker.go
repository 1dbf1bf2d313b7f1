// Package tracker follows one uploaded log file through submission and
// polling until the service resolves it to a record or fails it.
//
// All state is guarded by a single mutex. Network calls never run under the
// lock. Each submission gets a new generation number and results carrying an
// older generation are discarded, so a poll that was already in flight when
// the job was cancelled or replaced has no effect. Terminal transitions set a
// latch in the same critical section as the state change, and the callback
// runs once after the lock is released.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/raphaelgruber/loglens/internal/models"
	"github.com/raphaelgruber/loglens/internal/schedule"
)

const (
	// DefaultPollInterval is the delay between status checks.
	DefaultPollInterval = 1500 * time.Millisecond

	// DefaultMaxBackoff caps the delay between checks after failed polls.
	DefaultMaxBackoff = 30 * time.Second

	// DefaultMaxPollDuration is the poll budget config applies when none is set.
	DefaultMaxPollDuration = 30 * time.Minute
)

// Backend uploads files and reports job status. *client.Client satisfies it.
type Backend interface {
	Upload(ctx context.Context, candidate models.UploadCandidate) (string, error)
	PollJob(ctx context.Context, jobID string) (*models.Job, error)
}

// Callbacks are invoked from the polling goroutine without the tracker lock
// held. They may call Snapshot, Reset, Cancel, SelectFile, Submit or Track,
// but must not call Close.
type Callbacks struct {
	// OnComplete fires exactly once when a job completes with a record id.
	OnComplete func(job models.Job)

	// OnFailure fires exactly once when a job fails, times out, or completes
	// without a record id.
	OnFailure func(job models.Job, err error)

	// OnTransientError fires for each poll that failed without ending the job.
	OnTransientError func(err error)
}

// Config controls polling.
type Config struct {
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// MaxBackoff defaults to DefaultMaxBackoff.
	MaxBackoff time.Duration

	// MaxConsecutiveErrors fails the job after that many failed polls in a
	// row. Zero means failed polls are retried until the job resolves.
	MaxConsecutiveErrors int

	// MaxPollDuration fails the job once it has been polled this long.
	// Zero disables the limit.
	MaxPollDuration time.Duration

	Callbacks Callbacks
	Logger    *slog.Logger
}

// Tracker owns the lifecycle of one job at a time.
type Tracker struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger

	mu                sync.Mutex
	state             State
	candidate         *models.UploadCandidate
	job               *models.Job
	active            bool
	lastErr           error
	gen               uint64
	latched           bool
	task              *schedule.Task
	cancelSubmit      context.CancelFunc
	startedAt         time.Time
	polls             int
	consecutiveErrors int
	subs              map[int]*subscriber
	nextSub           int
	closed            bool
}

// New creates an idle tracker.
func New(backend Backend, cfg Config) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.MaxBackoff < cfg.PollInterval {
		cfg.MaxBackoff = cfg.PollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		subs:    make(map[int]*subscriber),
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		State:             t.state,
		Candidate:         cloneCandidate(t.candidate),
		Job:               cloneJob(t.job),
		LastError:         t.lastErr,
		Generation:        t.gen,
		Polls:             t.polls,
		ConsecutiveErrors: t.consecutiveErrors,
	}
	if t.active {
		s.ActiveJob = cloneJob(t.job)
	}
	return s
}

func invalid(event string, from State) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, event, from)
}

// SelectFile stores the file to submit. Legal while idle, after a previous
// selection, or after a cancellation.
func (t *Tracker) SelectFile(candidate models.UploadCandidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	switch t.state {
	case Idle, Uploaded, Cancelled:
	default:
		return invalid("select file", t.state)
	}

	t.candidate = &candidate
	t.job = nil
	t.lastErr = nil
	t.state = Uploaded
	t.publishLocked()
	return nil
}

// Submit uploads the selected file and starts polling the returned job.
// It blocks for the upload only. Submitting while a job is polling cancels
// that job first. On upload failure the tracker returns to Uploaded with the
// candidate retained and the error is both returned and published.
func (t *Tracker) Submit(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return "", ErrClosed
	}
	switch t.state {
	case Uploaded, Cancelled, Polling:
	default:
		err := invalid("submit", t.state)
		t.mu.Unlock()
		return "", err
	}
	if t.candidate == nil {
		t.mu.Unlock()
		return "", ErrNoCandidate
	}
	if t.state == Polling {
		t.logger.Info("replacing polling job", "job_id", t.jobIDLocked())
		t.stopLiveLocked()
		t.state = Cancelled
		t.publishLocked()
	}

	t.gen++
	gen := t.gen
	candidate := *t.candidate
	uploadCtx, cancel := context.WithCancel(ctx)
	t.cancelSubmit = cancel
	t.state = Submitting
	t.job = nil
	t.active = false
	t.lastErr = nil
	t.latched = false
	t.publishLocked()
	t.mu.Unlock()

	start := time.Now()
	jobID, err := t.backend.Upload(uploadCtx, candidate)
	cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gen != gen || t.closed {
		t.logger.Debug("discarding superseded upload result", "file", candidate.Name)
		return "", ErrCancelled
	}
	t.cancelSubmit = nil

	if err == nil && jobID == "" {
		err = errors.New("service returned an empty job id")
	}
	if err != nil {
		t.logger.Warn("upload failed", "file", candidate.Name, "error", err)
		t.state = Uploaded
		t.lastErr = err
		t.publishLocked()
		return "", fmt.Errorf("submit %s: %w", candidate.Name, err)
	}

	t.logger.Info("job submitted",
		"job_id", jobID,
		"file", candidate.Name,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	t.beginPollingLocked(jobID)
	return jobID, nil
}

// Track attaches the tracker to a job that was submitted elsewhere. Any
// live job is cancelled first.
func (t *Tracker) Track(jobID string) error {
	if jobID == "" {
		return errors.New("empty job id")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.state == Submitting {
		return invalid("track", t.state)
	}
	if t.state == Polling {
		t.stopLiveLocked()
		t.state = Cancelled
		t.publishLocked()
	}

	t.gen++
	t.latched = false
	t.lastErr = nil
	t.logger.Info("tracking job", "job_id", jobID)
	t.beginPollingLocked(jobID)
	return nil
}

// beginPollingLocked installs a fresh job and poll task for the current generation.
func (t *Tracker) beginPollingLocked(jobID string) {
	t.job = &models.Job{ID: jobID, Status: models.JobStatusQueued}
	t.active = true
	t.state = Polling
	t.startedAt = time.Now()
	t.polls = 0
	t.consecutiveErrors = 0

	gen := t.gen
	bo := t.newBackOff()
	t.task = schedule.Start(context.Background(), func(ctx context.Context) time.Duration {
		return t.poll(ctx, gen, jobID, bo)
	})
	t.publishLocked()
}

func (t *Tracker) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.cfg.PollInterval
	bo.MaxInterval = t.cfg.MaxBackoff
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Cancel stops the live job. It does not wait for an in-flight request; that
// request's context is cancelled and its result is discarded. Cancel reports
// whether anything was cancelled and is a no-op outside Submitting and Polling.
func (t *Tracker) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || !t.state.Live() {
		return false
	}
	t.logger.Info("job cancelled", "job_id", t.jobIDLocked(), "state", t.state.String())
	t.stopLiveLocked()
	t.state = Cancelled
	t.publishLocked()
	return true
}

// Reset returns to Idle from any state, clearing the job and the selected file.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.stopLiveLocked()
	t.state = Idle
	t.candidate = nil
	t.job = nil
	t.lastErr = nil
	t.latched = false
	t.polls = 0
	t.consecutiveErrors = 0
	t.publishLocked()
}

// Close stops any live job, waits for its poll task to exit and closes all
// subscriptions. Callbacks must not call Close.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	task := t.task
	t.stopLiveLocked()
	t.closed = true
	for id, s := range t.subs {
		close(s.ch)
		delete(t.subs, id)
	}
	t.mu.Unlock()

	if task != nil {
		task.Close()
	}
}

// stopLiveLocked invalidates the current generation and tears down its
// task and any pending upload.
func (t *Tracker) stopLiveLocked() {
	t.gen++
	if t.task != nil {
		t.task.Cancel()
		t.task = nil
	}
	if t.cancelSubmit != nil {
		t.cancelSubmit()
		t.cancelSubmit = nil
	}
	t.active = false
}

func (t *Tracker) jobIDLocked() string {
	if t.job == nil {
		return ""
	}
	return t.job.ID
}

// poll runs one status check. It returns the delay before the next check
// or schedule.Stop.
func (t *Tracker) poll(ctx context.Context, gen uint64, jobID string, bo *backoff.ExponentialBackOff) time.Duration {
	job, err := t.backend.PollJob(ctx, jobID)

	t.mu.Lock()
	if t.gen != gen || t.latched || t.state != Polling || ctx.Err() != nil {
		t.mu.Unlock()
		t.logger.Debug("discarding stale poll result", "job_id", jobID)
		return schedule.Stop
	}

	t.polls++
	next := t.cfg.PollInterval
	var fire func()

	if err != nil {
		t.consecutiveErrors++
		t.lastErr = err
		t.logger.Warn("poll failed",
			"job_id", jobID,
			"attempt", t.consecutiveErrors,
			"error", err,
		)
		switch {
		case t.cfg.MaxConsecutiveErrors > 0 && t.consecutiveErrors >= t.cfg.MaxConsecutiveErrors:
			fire = t.failLocked(fmt.Errorf("%w: %w", ErrTooManyPollErrors, err))
		case t.pollBudgetSpentLocked():
			fire = t.failLocked(ErrPollTimeout)
		default:
			next = bo.NextBackOff()
			if cb := t.cfg.Callbacks.OnTransientError; cb != nil {
				fire = func() { cb(err) }
			}
		}
	} else {
		bo.Reset()
		t.consecutiveErrors = 0
		t.lastErr = nil
		t.applyLocked(job)

		switch t.job.Status {
		case models.JobStatusCompleted:
			if t.job.RecordID == "" {
				fire = t.failLocked(ErrMissingRecordID)
			} else {
				fire = t.completeLocked()
			}
		case models.JobStatusFailed:
			msg := t.job.Error
			if msg == "" {
				msg = unknownJobFailure
			}
			fire = t.failLocked(&JobFailedError{JobID: jobID, Message: msg})
		default:
			t.logger.Debug("job in progress",
				"job_id", jobID,
				"status", string(t.job.Status),
				"progress", t.job.Progress,
			)
			if t.pollBudgetSpentLocked() {
				fire = t.failLocked(ErrPollTimeout)
			}
		}
	}

	stop := t.latched
	t.publishLocked()
	t.mu.Unlock()

	if fire != nil {
		fire()
	}
	if stop {
		return schedule.Stop
	}
	return next
}

// applyLocked merges a poll response into the tracked job. Progress never
// moves backwards.
func (t *Tracker) applyLocked(job *models.Job) {
	if job == nil {
		return
	}
	progress := t.job.Progress
	if job.Progress > progress {
		progress = job.Progress
	}
	id := t.job.ID
	*t.job = *job
	t.job.ID = id
	t.job.Progress = progress
	if t.job.Status == "" {
		t.job.Status = models.JobStatusQueued
	}
}

func (t *Tracker) pollBudgetSpentLocked() bool {
	return t.cfg.MaxPollDuration > 0 && time.Since(t.startedAt) >= t.cfg.MaxPollDuration
}

// completeLocked latches Completed and returns the callback to run after unlock.
func (t *Tracker) completeLocked() func() {
	t.latched = true
	t.state = Completed
	t.active = false
	job := *cloneJob(t.job)

	t.logger.Info("job completed",
		"job_id", job.ID,
		"record_id", job.RecordID,
		"polls", t.polls,
		"duration_ms", time.Since(t.startedAt).Milliseconds(),
	)

	cb := t.cfg.Callbacks.OnComplete
	if cb == nil {
		return nil
	}
	return func() { cb(job) }
}

// failLocked latches Failed and returns the callback to run after unlock.
func (t *Tracker) failLocked(err error) func() {
	t.latched = true
	t.state = Failed
	t.active = false
	t.lastErr = err
	if t.job.Status != models.JobStatusFailed {
		t.job.Status = models.JobStatusFailed
		if t.job.Error == "" {
			t.job.Error = err.Error()
		}
	}
	job := *cloneJob(t.job)

	t.logger.Warn("job failed",
		"job_id", job.ID,
		"polls", t.polls,
		"error", err,
	)

	cb := t.cfg.Callbacks.OnFailure
	if cb == nil {
		return nil
	}
	return func() { cb(job, err) }
}
