package entity

import "time"

// BatchRecord persists the state of one asynchronously submitted batch so the
// callback endpoint can re-submit or archive it after a restart. Records are
// keyed by tenant ID and batch number within the owning job.
type BatchRecord struct {
	JobID    string
	TenantID string
	BatchNo  int
	// Files holds the scratch-storage paths of the batch's extracted
	// documents, shared between the worker and the callback server.
	Files      []string
	RetryCount int
	UpdatedAt  time.Time
}
