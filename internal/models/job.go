package models

import "strings"

// JobStatus represents the server-side state of a processing job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ParseJobStatus maps a reported status onto the client's status set.
// The service reports "running" while a job is being worked on and
// "pending" before a worker picks it up.
func ParseJobStatus(s string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued", "pending", "":
		return JobStatusQueued
	case "processing", "running":
		return JobStatusProcessing
	case "completed", "done", "succeeded":
		return JobStatusCompleted
	case "failed", "error":
		return JobStatusFailed
	default:
		return JobStatus(s)
	}
}

// IsTerminal reports whether no further status change is expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one server-side processing task spawned by an upload.
type Job struct {
	ID         string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	Progress   float64   `json:"progress"`
	RecordID   string    `json:"record_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  Timestamp `json:"created_at,omitzero"`
	FinishedAt Timestamp `json:"finished_at,omitzero"`

	// SimilarRecords is filled by the service once processing finishes.
	SimilarRecords []SimilarityCandidate `json:"similar_records,omitempty"`
}

// ProgressPercent returns progress clamped to [0,100] for display.
func (j Job) ProgressPercent() float64 {
	switch {
	case j.Progress < 0:
		return 0
	case j.Progress > 100:
		return 100
	}
	return j.Progress
}
