package entity

import (
	"time"

	"github.com/19karthik/document-migration/internal/domain/valueobject"
)

// Job represents one queue message's unit of work: a compressed bundle of
// documents to fetch, unpack and forward to the ingestion endpoint. A Job is
// owned exclusively by the consumption loop for the duration of processing.
type Job struct {
	id               string
	tenantID         string
	sourceBucket     string
	sourceKey        string
	fileName         string
	fileType         string
	messageID        string
	status           valueobject.JobStatus
	successCount     int
	failureCount     int
	errorArtifactKey *string
	errorMessage     *string
	startedAt        *time.Time
	completedAt      *time.Time
	createdAt        time.Time
	updatedAt        time.Time
}

// NewJob creates a Job on first observation of a queue message. The job ID is
// the message's object ID so that redeliveries resolve to the same record.
func NewJob(id, tenantID, sourceBucket, sourceKey, fileName, fileType, messageID string) *Job {
	now := time.Now()
	return &Job{
		id:           id,
		tenantID:     tenantID,
		sourceBucket: sourceBucket,
		sourceKey:    sourceKey,
		fileName:     fileName,
		fileType:     fileType,
		messageID:    messageID,
		status:       valueobject.JobStatusQueued,
		createdAt:    now,
		updatedAt:    now,
	}
}

// RestoreJob creates a Job entity from stored data.
func RestoreJob(
	id, tenantID, sourceBucket, sourceKey, fileName, fileType, messageID string,
	status valueobject.JobStatus,
	successCount, failureCount int,
	errorArtifactKey, errorMessage *string,
	startedAt, completedAt *time.Time,
	createdAt, updatedAt time.Time,
) *Job {
	return &Job{
		id:               id,
		tenantID:         tenantID,
		sourceBucket:     sourceBucket,
		sourceKey:        sourceKey,
		fileName:         fileName,
		fileType:         fileType,
		messageID:        messageID,
		status:           status,
		successCount:     successCount,
		failureCount:     failureCount,
		errorArtifactKey: errorArtifactKey,
		errorMessage:     errorMessage,
		startedAt:        startedAt,
		completedAt:      completedAt,
		createdAt:        createdAt,
		updatedAt:        updatedAt,
	}
}

// ID returns the job ID.
func (j *Job) ID() string { return j.id }

// TenantID returns the tenant the bundle belongs to.
func (j *Job) TenantID() string { return j.tenantID }

// SourceBucket returns the object-storage bucket holding the bundle.
func (j *Job) SourceBucket() string { return j.sourceBucket }

// SourceKey returns the object-storage key of the bundle.
func (j *Job) SourceKey() string { return j.sourceKey }

// FileName returns the bundle's base file name.
func (j *Job) FileName() string { return j.fileName }

// FileType returns the declared bundle type, if any.
func (j *Job) FileType() string { return j.fileType }

// MessageID returns the queue message ID that created this job.
func (j *Job) MessageID() string { return j.messageID }

// Status returns the current job status.
func (j *Job) Status() valueobject.JobStatus { return j.status }

// SuccessCount returns the number of items accepted by the ingestion endpoint.
func (j *Job) SuccessCount() int { return j.successCount }

// FailureCount returns the number of items that failed terminally.
func (j *Job) FailureCount() int { return j.failureCount }

// ErrorArtifactKey returns the storage key of the published error artifact,
// or nil when no artifact exists.
func (j *Job) ErrorArtifactKey() *string { return j.errorArtifactKey }

// ErrorMessage returns the job-level error, if the job failed outside the
// per-item upload path.
func (j *Job) ErrorMessage() *string { return j.errorMessage }

// StartedAt returns the processing start timestamp.
func (j *Job) StartedAt() *time.Time { return j.startedAt }

// CompletedAt returns the terminal timestamp.
func (j *Job) CompletedAt() *time.Time { return j.completedAt }

// CreatedAt returns the creation timestamp.
func (j *Job) CreatedAt() time.Time { return j.createdAt }

// UpdatedAt returns the last update timestamp.
func (j *Job) UpdatedAt() time.Time { return j.updatedAt }

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool { return j.status.IsTerminal() }

// Start marks the job as processing. Starting an already-processing job is a
// no-op so redelivered messages can re-enter the pipeline safely.
func (j *Job) Start() error {
	if j.status == valueobject.JobStatusProcessing {
		return nil
	}
	if !j.status.CanTransitionTo(valueobject.JobStatusProcessing) {
		return NewDomainError("cannot start job in status "+j.status.String(), "INVALID_STATUS_TRANSITION")
	}
	now := time.Now()
	j.status = valueobject.JobStatusProcessing
	j.startedAt = &now
	j.updatedAt = now
	return nil
}

// RecordProgress accumulates item outcomes while the job is still
// processing. Asynchronous batch callbacks resolve one batch at a time, so
// counts grow incrementally before the terminal transition.
func (j *Job) RecordProgress(successDelta, failureDelta int) error {
	if j.status != valueobject.JobStatusProcessing {
		return NewDomainError("cannot record progress in status "+j.status.String(), "INVALID_STATUS_TRANSITION")
	}
	j.successCount += successDelta
	j.failureCount += failureDelta
	j.updatedAt = time.Now()
	return nil
}

// RecordErrorArtifact attaches the storage key of a published error artifact
// while the job is still processing. Asynchronous batches may publish their
// artifact before the job reaches its terminal state.
func (j *Job) RecordErrorArtifact(key string) error {
	if j.status != valueobject.JobStatusProcessing {
		return NewDomainError("cannot record error artifact in status "+j.status.String(), "INVALID_STATUS_TRANSITION")
	}
	if key != "" {
		j.errorArtifactKey = &key
		j.updatedAt = time.Now()
	}
	return nil
}

// Complete marks the job as completed with its final item counts.
func (j *Job) Complete(successCount, failureCount int) error {
	if !j.status.CanTransitionTo(valueobject.JobStatusCompleted) {
		return NewDomainError("cannot complete job in status "+j.status.String(), "INVALID_STATUS_TRANSITION")
	}
	now := time.Now()
	j.status = valueobject.JobStatusCompleted
	j.successCount = successCount
	j.failureCount = failureCount
	j.completedAt = &now
	j.errorMessage = nil
	j.updatedAt = now
	return nil
}

// Fail marks the job as failed. The error artifact key may be empty when
// artifact publication itself failed; the failure counts still stand.
func (j *Job) Fail(successCount, failureCount int, errorArtifactKey, errorMessage string) error {
	if !j.status.CanTransitionTo(valueobject.JobStatusFailed) {
		return NewDomainError("cannot fail job in status "+j.status.String(), "INVALID_STATUS_TRANSITION")
	}
	now := time.Now()
	j.status = valueobject.JobStatusFailed
	j.successCount = successCount
	j.failureCount = failureCount
	if errorArtifactKey != "" {
		j.errorArtifactKey = &errorArtifactKey
	}
	if errorMessage != "" {
		j.errorMessage = &errorMessage
	}
	j.completedAt = &now
	j.updatedAt = now
	return nil
}

// Equal compares two Job entities by identity.
func (j *Job) Equal(other *Job) bool {
	if other == nil {
		return false
	}
	return j.id == other.id
}
