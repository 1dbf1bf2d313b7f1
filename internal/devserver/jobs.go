// Package devserver is an in-memory stand-in for the log-analysis service.
// It speaks the same HTTP API as the real service so the CLI and client can
// be exercised locally and in tests.
package devserver

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/loglens/internal/models"
)

// JobStatus is the status string the service reports on the wire.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// DefaultStep is the progress a job makes per poll.
const DefaultStep = 25

// FailMarker makes a job fail when it appears in the uploaded log.
const FailMarker = "LOGLENS-FAIL"

// Job is one simulated processing job.
type Job struct {
	ID          string
	Status      JobStatus
	Progress    int
	RecordID    string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time

	upload upload
	polls  int
}

// upload is what a job processes.
type upload struct {
	Filename   string
	Context    string
	Visibility models.Visibility
	Content    string
}

// JobManager tracks jobs and advances them as they are polled.
type JobManager struct {
	jobs    map[string]*Job
	mu      sync.Mutex
	step    int
	records *RecordStore
	logger  *slog.Logger
}

// NewJobManager creates a job manager that files finished jobs in records.
func NewJobManager(step int, records *RecordStore, logger *slog.Logger) *JobManager {
	if step <= 0 {
		step = DefaultStep
	}
	return &JobManager{
		jobs:    make(map[string]*Job),
		step:    step,
		records: records,
		logger:  logger,
	}
}

// CreateJob queues a new pending job for u.
func (m *JobManager) CreateJob(u upload) Job {
	job := &Job{
		ID:        uuid.New().String()[:8], // Short ID for convenience
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		upload:    u,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.logger.Info("job created", "job_id", job.ID, "file", u.Filename, "size", len(u.Content))
	return *job
}

// Poll advances the job by one step and returns its state. The first poll
// only moves it from pending to running.
func (m *JobManager) Poll(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	job.polls++

	switch job.Status {
	case JobStatusPending:
		job.Status = JobStatusRunning
	case JobStatusRunning:
		job.Progress = min(job.Progress+m.step, 100)
		if job.Progress == 100 {
			m.finishLocked(job)
		}
	}
	return *job, true
}

// ListJobs returns all jobs, most recent first.
func (m *JobManager) ListJobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, *job)
	}
	slices.SortFunc(jobs, func(a, b Job) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return jobs
}

func (m *JobManager) finishLocked(job *Job) {
	now := time.Now()
	job.CompletedAt = &now

	if strings.Contains(job.upload.Content, FailMarker) {
		job.Status = JobStatusFailed
		job.Error = "analysis aborted: log contains " + FailMarker
		m.logger.Error("job failed", "job_id", job.ID, "error", job.Error)
		return
	}

	rec := m.records.Create(job.upload)
	job.Status = JobStatusCompleted
	job.RecordID = rec.ID
	m.logger.Info("job completed", "job_id", job.ID, "record_id", rec.ID, "polls", job.polls)
}

// wireTimeLayout matches the naive isoformat timestamps the real service
// writes for jobs.
const wireTimeLayout = "2006-01-02T15:04:05.000000"

// jobResponse is the job shape on the wire.
type jobResponse struct {
	ID         string  `json:"job_id"`
	Status     string  `json:"status"`
	Progress   float64 `json:"progress"`
	RecordID   string  `json:"record_id,omitempty"`
	Error      string  `json:"error,omitempty"`
	CreatedAt  string  `json:"created_at"`
	FinishedAt *string `json:"finished_at"`
}

// wire converts the job to its response shape.
func (j Job) wire() jobResponse {
	resp := jobResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		Progress:  float64(j.Progress),
		RecordID:  j.RecordID,
		Error:     j.Error,
		CreatedAt: j.StartedAt.UTC().Format(wireTimeLayout),
	}
	if j.CompletedAt != nil {
		finished := j.CompletedAt.UTC().Format(wireTimeLayout)
		resp.FinishedAt = &finished
	}
	return resp
}
