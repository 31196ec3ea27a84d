package valueobject

import "fmt"

// JobStatus represents the current status of a migration job.
type JobStatus string

// Job status constants.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// validJobStatuses contains all valid job statuses.
var validJobStatuses = map[JobStatus]bool{
	JobStatusQueued:     true,
	JobStatusProcessing: true,
	JobStatusCompleted:  true,
	JobStatusFailed:     true,
}

// jobStatusRank orders statuses along the monotonic pipeline. Transitions
// never move to a lower rank, so replaying a transition is a no-op rather
// than a regression.
var jobStatusRank = map[JobStatus]int{
	JobStatusQueued:     1,
	JobStatusProcessing: 2,
	JobStatusCompleted:  3,
	JobStatusFailed:     3,
}

// NewJobStatus creates a new JobStatus with validation.
func NewJobStatus(status string) (JobStatus, error) {
	s := JobStatus(status)
	if !validJobStatuses[s] {
		return "", fmt.Errorf("invalid job status: %s", status)
	}
	return s, nil
}

// String returns the string representation of the status.
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Rank returns the monotonic ordering value of the status.
func (s JobStatus) Rank() int {
	return jobStatusRank[s]
}

// CanTransitionTo returns true if the status can transition to the target
// status. Re-applying the current status is always permitted so that status
// writes stay idempotent under message redelivery.
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	if s == target {
		return true
	}
	switch s {
	case JobStatusQueued:
		return target == JobStatusProcessing || target == JobStatusFailed
	case JobStatusProcessing:
		return target == JobStatusCompleted || target == JobStatusFailed
	case JobStatusCompleted, JobStatusFailed:
		return false
	default:
		return false
	}
}
