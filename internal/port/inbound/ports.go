// Package inbound defines the driving ports of the migration worker.
package inbound

import (
	"context"

	"github.com/19karthik/document-migration/internal/domain/messaging"
)

// JobProcessor handles one migration job message end to end. A nil return
// means the message may be acknowledged; a non-nil return means the message
// should be redelivered.
type JobProcessor interface {
	ProcessJob(ctx context.Context, msg messaging.MigrationJobMessage, deliveryCount int) error
}

// Consumer drains the job queue and dispatches messages to a JobProcessor.
type Consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() ConsumerHealth
}

// ConsumerHealth is a point-in-time snapshot of consumer state.
type ConsumerHealth struct {
	Running           bool   `json:"running"`
	Connected         bool   `json:"connected"`
	MessagesProcessed int64  `json:"messages_processed"`
	MessagesFailed    int64  `json:"messages_failed"`
	LastError         string `json:"last_error,omitempty"`
}
