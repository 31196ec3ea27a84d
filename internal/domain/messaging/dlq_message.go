package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FailureType classifies why a job message was dead-lettered.
type FailureType string

const (
	// FailureTypeTransport covers ingestion endpoint errors, malformed
	// responses and network failures.
	FailureTypeTransport FailureType = "transport"
	// FailureTypeStorage covers object-storage download and upload errors.
	FailureTypeStorage FailureType = "storage"
	// FailureTypeExtraction covers unreadable or corrupt bundles.
	FailureTypeExtraction FailureType = "extraction"
	// FailureTypePersistence covers job-store write errors.
	FailureTypePersistence FailureType = "persistence"
	// FailureTypeValidation covers malformed or incomplete messages.
	FailureTypeValidation FailureType = "validation"
	// FailureTypeUnknown is the fallback classification.
	FailureTypeUnknown FailureType = "unknown"
)

// DLQMessage wraps an exhausted job message with failure context before it is
// published to the dead-letter subject.
type DLQMessage struct {
	DLQMessageID    string              `json:"dlq_message_id"`
	OriginalMessage MigrationJobMessage `json:"original_message"`
	FailureType     FailureType         `json:"failure_type"`
	FailureReason   string              `json:"failure_reason"`
	DeliveryCount   int                 `json:"delivery_count"`
	DeadLetteredAt  time.Time           `json:"dead_lettered_at"`
	WorkerID        string              `json:"worker_id,omitempty"`
}

// NewDLQMessage builds a dead-letter envelope for a job message that
// exhausted its delivery attempts.
func NewDLQMessage(original MigrationJobMessage, failureErr error, deliveryCount int, workerID string) DLQMessage {
	reason := "unknown failure"
	if failureErr != nil {
		reason = failureErr.Error()
	}
	return DLQMessage{
		DLQMessageID:    fmt.Sprintf("dlq-%s", uuid.New().String()),
		OriginalMessage: original,
		FailureType:     ClassifyFailure(failureErr),
		FailureReason:   reason,
		DeliveryCount:   deliveryCount,
		DeadLetteredAt:  time.Now(),
		WorkerID:        workerID,
	}
}

// ClassifyFailure maps an error to a failure type by inspecting its text.
// Classification is advisory; it drives triage dashboards, not behavior.
func ClassifyFailure(err error) FailureType {
	if err == nil {
		return FailureTypeUnknown
	}
	if err == context.DeadlineExceeded || err == context.Canceled {
		return FailureTypeTransport
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "download") || strings.Contains(msg, "bucket") ||
		strings.Contains(msg, "no such key") || strings.Contains(msg, "presign"):
		return FailureTypeStorage
	case strings.Contains(msg, "zip") || strings.Contains(msg, "extract") ||
		strings.Contains(msg, "password") || strings.Contains(msg, "archive"):
		return FailureTypeExtraction
	case strings.Contains(msg, "database") || strings.Contains(msg, "connection pool") ||
		strings.Contains(msg, "upsert"):
		return FailureTypePersistence
	case strings.Contains(msg, "required") || strings.Contains(msg, "invalid message"):
		return FailureTypeValidation
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "status 5") ||
		strings.Contains(msg, "connection refused") || strings.Contains(msg, "transport"):
		return FailureTypeTransport
	default:
		return FailureTypeUnknown
	}
}
