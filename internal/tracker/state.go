package tracker

import (
	"errors"
	"fmt"
	"slices"

	"github.com/raphaelgruber/loglens/internal/models"
)

// State is the tracker's position in the job lifecycle.
type State int

const (
	Idle State = iota
	Uploaded
	Submitting
	Polling
	Completed
	Failed
	Cancelled
)

var stateNames = map[State]string{
	Idle:       "idle",
	Uploaded:   "uploaded",
	Submitting: "submitting",
	Polling:    "polling",
	Completed:  "completed",
	Failed:     "failed",
	Cancelled:  "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// IsTerminal reports whether s is Completed or Failed. Leaving a terminal
// state requires Reset.
func (s State) IsTerminal() bool {
	return s == Completed || s == Failed
}

// Live reports whether a job is being submitted or polled.
func (s State) Live() bool {
	return s == Submitting || s == Polling
}

var (
	// ErrInvalidTransition is returned when an event is not legal in the current state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNoCandidate is returned by Submit when no file has been selected.
	ErrNoCandidate = errors.New("no file selected")

	// ErrMissingRecordID marks a job reported completed without a record id.
	ErrMissingRecordID = errors.New("job completed without a record id")

	// ErrPollTimeout marks a job that did not finish within MaxPollDuration.
	ErrPollTimeout = errors.New("job did not finish in time")

	// ErrTooManyPollErrors marks a job abandoned after MaxConsecutiveErrors failed polls.
	ErrTooManyPollErrors = errors.New("too many consecutive poll errors")

	// ErrCancelled is returned by Submit when the submission was cancelled
	// or superseded before the upload returned.
	ErrCancelled = errors.New("submission cancelled")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("tracker closed")
)

// unknownJobFailure is reported when the service fails a job without saying why.
const unknownJobFailure = "job failed with unknown error"

// JobFailedError is a failure reported by the service for a job.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// Snapshot is a copy of the tracker state. It is safe to retain.
type Snapshot struct {
	State State

	// Candidate is the selected file, retained across a failed submit.
	Candidate *models.UploadCandidate

	// Job is the last known state of the tracked job, kept after it
	// reaches a terminal state until Reset.
	Job *models.Job

	// ActiveJob is set while the job is live and cleared on a terminal
	// state, cancellation or reset.
	ActiveJob *models.Job

	// LastError is the most recent submit, poll or terminal error.
	LastError error

	// Generation identifies the live job; it changes on every submit,
	// track, cancel and reset.
	Generation uint64

	Polls             int
	ConsecutiveErrors int
}

// Terminal reports whether the snapshot is in a terminal state.
func (s Snapshot) Terminal() bool {
	return s.State.IsTerminal()
}

func cloneJob(j *models.Job) *models.Job {
	if j == nil {
		return nil
	}
	c := *j
	c.SimilarRecords = slices.Clone(j.SimilarRecords)
	return &c
}

func cloneCandidate(c *models.UploadCandidate) *models.UploadCandidate {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
