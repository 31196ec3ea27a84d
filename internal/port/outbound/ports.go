// Package outbound defines the driven ports of the migration worker: the
// interfaces its application core uses to reach storage, persistence, the
// ingestion endpoint and the dead-letter queue.
package outbound

import (
	"context"
	"time"

	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/domain/messaging"
)

// JobRepository persists job status records. Writes must be idempotent and
// must never move a job backwards through its status lifecycle.
type JobRepository interface {
	// Upsert inserts or updates the job record keyed by job ID. A stored
	// status that already ranks at or above the incoming one is left
	// untouched except for counts and artifact fields on equal rank.
	Upsert(ctx context.Context, job *entity.Job) error
	// FindByID returns the stored job, or (nil, nil) when absent.
	FindByID(ctx context.Context, jobID string) (*entity.Job, error)
}

// BatchRepository persists asynchronous batch submissions for the callback
// endpoint.
type BatchRepository interface {
	Save(ctx context.Context, record *entity.BatchRecord) error
	Find(ctx context.Context, tenantID string, batchNo int) (*entity.BatchRecord, error)
	IncrementRetry(ctx context.Context, tenantID string, batchNo int) (int, error)
	Delete(ctx context.Context, tenantID string, batchNo int) error
	// CountByJob returns how many unresolved batch records a job still has.
	CountByJob(ctx context.Context, jobID string) (int, error)
}

// ObjectStore abstracts the bundle and artifact object storage.
type ObjectStore interface {
	// Download fetches bucket/key into destPath on scratch storage.
	Download(ctx context.Context, bucket, key, destPath string) error
	// Upload writes the local file at srcPath to bucket/key.
	Upload(ctx context.Context, bucket, key, srcPath string, contentType string) error
	// PresignGet returns a time-limited retrieval URL for bucket/key.
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// Rejection pairs an item name with the endpoint's rejection reason.
type Rejection struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

// BatchResult is the canonical per-item outcome of one batch submission.
// Every submitted item appears in exactly one of the two lists.
type BatchResult struct {
	Accepted []string    `json:"accepted"`
	Rejected []Rejection `json:"rejected"`
}

// SubmissionMeta carries job identity alongside a batch submission so the
// endpoint can correlate batches and callbacks.
type SubmissionMeta struct {
	JobID    string
	TenantID string
	BatchNo  int
	Attempt  int
}

// UploadClient submits batches of extracted items to the ingestion endpoint.
type UploadClient interface {
	// Submit sends every item in the batch and returns the per-item
	// outcome. A non-nil error means the whole batch failed in transport
	// and no per-item outcome exists.
	Submit(ctx context.Context, items []entity.Item, meta SubmissionMeta) (BatchResult, error)
	// SubmitAsync sends the batch with a callback URL and returns once the
	// endpoint has acknowledged receipt. Per-item outcomes arrive later on
	// the callback endpoint.
	SubmitAsync(ctx context.Context, items []entity.Item, meta SubmissionMeta, callbackURL string) error
}

// DLQPublisher publishes exhausted job messages to the dead-letter subject.
type DLQPublisher interface {
	PublishDeadLetter(ctx context.Context, msg messaging.DLQMessage) error
}

// MessagePublisher publishes job messages, used by the callback endpoint to
// resubmit failed batches.
type MessagePublisher interface {
	PublishJob(ctx context.Context, msg messaging.MigrationJobMessage) error
}
