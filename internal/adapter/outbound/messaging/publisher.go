// Package messaging implements the NATS JetStream publishers for job
// resubmission and dead-lettering.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/19karthik/document-migration/internal/application/common/slogger"
	"github.com/19karthik/document-migration/internal/domain/messaging"
)

// NATSPublisher publishes job and dead-letter messages over JetStream.
type NATSPublisher struct {
	js         nats.JetStreamContext
	jobSubject string
	dlqSubject string
}

// NewNATSPublisher creates a publisher bound to the given subjects.
func NewNATSPublisher(js nats.JetStreamContext, jobSubject, dlqSubject string) *NATSPublisher {
	return &NATSPublisher{js: js, jobSubject: jobSubject, dlqSubject: dlqSubject}
}

// PublishJob publishes a migration job message to the work subject. The
// message ID doubles as the JetStream deduplication ID so a retried publish
// cannot enqueue the same job twice.
func (p *NATSPublisher) PublishJob(ctx context.Context, msg messaging.MigrationJobMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("refusing to publish invalid job message: %w", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}
	_, err = p.js.Publish(p.jobSubject, data, nats.MsgId(msg.MessageID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish job message %s: %w", msg.MessageID, err)
	}
	slogger.Info(ctx, "job message published", slogger.Fields2(
		"message_id", msg.MessageID, "subject", p.jobSubject))
	return nil
}

// PublishDeadLetter publishes a dead-letter envelope to the DLQ subject.
func (p *NATSPublisher) PublishDeadLetter(ctx context.Context, msg messaging.DLQMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	_, err = p.js.Publish(p.dlqSubject, data, nats.MsgId(msg.DLQMessageID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish dead letter %s: %w", msg.DLQMessageID, err)
	}
	return nil
}
