package messaging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

const streamName = "MIGRATION"

// EnsureStream creates the migration stream if it does not exist yet. The
// stream covers both the work subject and the dead-letter subject so
// dead-lettered messages stay durable for manual inspection.
func EnsureStream(js nats.JetStreamContext, subject, dlqSubject string) error {
	subjects := []string{subject}
	if dlqSubject != "" && dlqSubject != subject {
		subjects = append(subjects, dlqSubject)
	}

	_, err := js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("query stream %s: %w", streamName, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  subjects,
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil && !strings.Contains(err.Error(), "already in use") {
		return fmt.Errorf("create stream %s: %w", streamName, err)
	}
	return nil
}
