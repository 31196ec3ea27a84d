// Package messaging implements the NATS JetStream job queue consumer.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/19karthik/document-migration/internal/application/common/slogger"
	"github.com/19karthik/document-migration/internal/application/worker"
	"github.com/19karthik/document-migration/internal/config"
	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/domain/messaging"
	"github.com/19karthik/document-migration/internal/port/inbound"
	"github.com/19karthik/document-migration/internal/port/outbound"
)

const (
	defaultFetchBatch   = 1
	defaultFetchTimeout = 5 * time.Second
)

// ConsumerConfig holds configuration for the job queue consumer.
type ConsumerConfig struct {
	Subject     string
	QueueGroup  string
	DurableName string
	// AckWait is the visibility window: a message not acknowledged within
	// it is redelivered to another worker.
	AckWait time.Duration
	// MaxDeliver caps redeliveries. A message that exhausts it is
	// dead-lettered instead of circulating forever.
	MaxDeliver    int
	MaxAckPending int
	// ExtendInterval is how often in-flight messages have their
	// visibility window extended while a job is still running.
	ExtendInterval time.Duration
	JobTimeout     time.Duration
	WorkerID       string
}

// NATSConsumer drains the migration job subject with a durable pull
// subscription and dispatches each message to the job processor.
type NATSConsumer struct {
	config     ConsumerConfig
	natsConfig config.NATSConfig
	processor  inbound.JobProcessor
	jobs       outbound.JobRepository
	dlq        outbound.DLQPublisher
	metrics    *worker.JobMetrics

	conn *nats.Conn
	sub  *nats.Subscription

	mu      sync.RWMutex
	running bool
	health  inbound.ConsumerHealth

	cancel context.CancelFunc
	done   chan struct{}
}

// NewNATSConsumer creates a consumer with validated configuration.
func NewNATSConsumer(
	cfg ConsumerConfig,
	natsConfig config.NATSConfig,
	processor inbound.JobProcessor,
	jobs outbound.JobRepository,
	dlq outbound.DLQPublisher,
	metrics *worker.JobMetrics,
) (*NATSConsumer, error) {
	if err := validateConsumerConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid consumer configuration: %w", err)
	}
	if processor == nil {
		return nil, errors.New("job processor cannot be nil")
	}
	if cfg.ExtendInterval <= 0 {
		cfg.ExtendInterval = cfg.AckWait / 2
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	return &NATSConsumer{
		config:     cfg,
		natsConfig: natsConfig,
		processor:  processor,
		jobs:       jobs,
		dlq:        dlq,
		metrics:    metrics,
	}, nil
}

func validateConsumerConfig(cfg ConsumerConfig) error {
	if cfg.Subject == "" {
		return errors.New("subject cannot be empty")
	}
	if cfg.QueueGroup == "" {
		return errors.New("queue group cannot be empty")
	}
	if cfg.DurableName == "" {
		return errors.New("durable name cannot be empty")
	}
	if cfg.AckWait <= 0 {
		return errors.New("ack wait duration must be positive")
	}
	if cfg.MaxDeliver <= 0 {
		return errors.New("max deliver count must be positive")
	}
	return nil
}

// Start connects to NATS, ensures the stream exists and begins the fetch
// loop. It returns once the loop is running.
func (n *NATSConsumer) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("consumer already running for subject %s", n.config.Subject)
	}

	conn, err := nats.Connect(n.natsConfig.URL,
		nats.MaxReconnects(n.natsConfig.MaxReconnects),
		nats.ReconnectWait(n.natsConfig.ReconnectWait),
		nats.Name("docmigrate-worker-"+n.config.WorkerID),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", n.natsConfig.URL, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return fmt.Errorf("initialize JetStream context: %w", err)
	}

	if err := EnsureStream(js, n.config.Subject, n.natsConfig.DLQSubject); err != nil {
		conn.Close()
		return err
	}

	sub, err := js.PullSubscribe(n.config.Subject, n.config.DurableName,
		nats.AckWait(n.config.AckWait),
		nats.MaxDeliver(n.config.MaxDeliver),
		nats.MaxAckPending(n.config.MaxAckPending),
		nats.ManualAck(),
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("create pull subscription on %s: %w", n.config.Subject, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	n.conn = conn
	n.sub = sub
	n.cancel = cancel
	n.done = make(chan struct{})
	n.running = true
	n.health.Running = true
	n.health.Connected = true

	go n.fetchLoop(loopCtx)

	slogger.Info(ctx, "consumer started", slogger.Fields3(
		"subject", n.config.Subject, "durable", n.config.DurableName, "max_deliver", n.config.MaxDeliver))
	return nil
}

// Stop halts the fetch loop and closes the connection. In-flight jobs finish
// before Stop returns or the context expires.
func (n *NATSConsumer) Stop(ctx context.Context) error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	n.health.Running = false
	cancel := n.cancel
	done := n.done
	n.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		slogger.Warn(ctx, "consumer stop timed out waiting for in-flight job", nil)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sub != nil {
		if err := n.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			slogger.Warn(ctx, "failed to unsubscribe", slogger.Field("error", err.Error()))
		}
		n.sub = nil
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	n.health.Connected = false
	return nil
}

// Health returns a snapshot of consumer state.
func (n *NATSConsumer) Health() inbound.ConsumerHealth {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.health
}

func (n *NATSConsumer) fetchLoop(ctx context.Context) {
	defer close(n.done)
	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := n.sub.Fetch(defaultFetchBatch, nats.MaxWait(defaultFetchTimeout))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			n.recordError("fetch failed: " + err.Error())
			slogger.ErrorWithError(ctx, err, "fetch from job subject failed",
				slogger.Field("subject", n.config.Subject))
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			n.handleMessage(ctx, msg)
		}
	}
}

// handleMessage dispatches one delivery. Acknowledgment discipline: Ack only
// after the processor returns nil, Nak for retryable failures, Term plus a
// dead-letter publish for poison messages and exhausted deliveries.
func (n *NATSConsumer) handleMessage(ctx context.Context, msg *nats.Msg) {
	deliveryCount := 1
	if meta, err := msg.Metadata(); err == nil {
		deliveryCount = int(meta.NumDelivered)
	}

	var jobMsg messaging.MigrationJobMessage
	if err := json.Unmarshal(msg.Data, &jobMsg); err != nil {
		n.terminate(ctx, msg, jobMsg, fmt.Errorf("unmarshal job message: %w", err), deliveryCount)
		return
	}
	if err := jobMsg.Validate(); err != nil {
		n.terminate(ctx, msg, jobMsg, fmt.Errorf("invalid job message: %w", err), deliveryCount)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, n.config.JobTimeout)
	stopExtending := n.keepVisible(jobCtx, msg)

	err := n.processor.ProcessJob(jobCtx, jobMsg, deliveryCount)
	stopExtending()
	cancel()

	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			n.recordError("ack failed: " + ackErr.Error())
			slogger.ErrorWithError(ctx, ackErr, "failed to acknowledge message",
				slogger.Field("message_id", jobMsg.MessageID))
			return
		}
		n.recordProcessed()
		return
	}

	n.recordError(err.Error())
	if deliveryCount >= n.config.MaxDeliver {
		n.terminate(ctx, msg, jobMsg, err, deliveryCount)
		return
	}

	slogger.Warn(ctx, "job processing failed, requesting redelivery", slogger.Fields3(
		"message_id", jobMsg.MessageID, "delivery_count", deliveryCount, "error", err.Error()))
	if nakErr := msg.Nak(); nakErr != nil {
		slogger.ErrorWithError(ctx, nakErr, "failed to nak message",
			slogger.Field("message_id", jobMsg.MessageID))
	}
}

// keepVisible extends the message's visibility window on a ticker until the
// returned stop function is called. Long jobs stay owned by this worker
// instead of being redelivered mid-flight.
func (n *NATSConsumer) keepVisible(ctx context.Context, msg *nats.Msg) func() {
	stop := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(n.config.ExtendInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := msg.InProgress(); err != nil {
					slogger.Warn(ctx, "failed to extend message visibility",
						slogger.Field("error", err.Error()))
					return
				}
			}
		}
	}()
	return func() { once.Do(func() { close(stop) }) }
}

// terminate dead-letters a message and removes it from the stream. The job
// record is marked failed first, best effort, so a poison message never
// leaves its job stranded in processing.
func (n *NATSConsumer) terminate(
	ctx context.Context,
	msg *nats.Msg,
	jobMsg messaging.MigrationJobMessage,
	cause error,
	deliveryCount int,
) {
	slogger.Error(ctx, "dead-lettering job message", slogger.Fields3(
		"message_id", jobMsg.MessageID, "delivery_count", deliveryCount, "cause", cause.Error()))

	n.failJobRecord(ctx, jobMsg, cause, deliveryCount)

	if n.metrics != nil {
		n.metrics.RecordDeadLetter(ctx, jobMsg.Tenant(), string(messaging.ClassifyFailure(cause)))
	}

	if n.dlq != nil {
		dlqMsg := messaging.NewDLQMessage(jobMsg, cause, deliveryCount, n.config.WorkerID)
		if err := n.dlq.PublishDeadLetter(ctx, dlqMsg); err != nil {
			// Term anyway: better to lose the DLQ copy than to poison
			// the work queue with an unprocessable message.
			slogger.ErrorWithError(ctx, err, "failed to publish dead letter",
				slogger.Field("message_id", jobMsg.MessageID))
		}
	}

	if err := msg.Term(); err != nil {
		slogger.ErrorWithError(ctx, err, "failed to terminate message",
			slogger.Field("message_id", jobMsg.MessageID))
	}
	n.recordFailed()
}

// failJobRecord writes a failed status for the dead-lettered job. Errors are
// logged only; the message is removed from the stream regardless.
func (n *NATSConsumer) failJobRecord(
	ctx context.Context,
	jobMsg messaging.MigrationJobMessage,
	cause error,
	deliveryCount int,
) {
	if n.jobs == nil || jobMsg.ObjectID == "" {
		return
	}

	job, err := n.jobs.FindByID(ctx, jobMsg.ObjectID)
	if err != nil {
		slogger.Warn(ctx, "could not load job for dead-letter failure",
			slogger.Fields2("job_id", jobMsg.ObjectID, "error", err.Error()))
		return
	}
	if job == nil {
		job = entity.NewJob(jobMsg.ObjectID, jobMsg.Tenant(), jobMsg.S3Bucket, jobMsg.S3Key,
			jobMsg.FileName(), jobMsg.FileType, jobMsg.MessageID)
	}
	if job.IsTerminal() {
		return
	}

	reason := fmt.Sprintf("dead-lettered after %d deliveries: %v", deliveryCount, cause)
	if err := job.Fail(job.SuccessCount(), job.FailureCount(), "", reason); err != nil {
		slogger.Warn(ctx, "could not fail dead-lettered job",
			slogger.Fields2("job_id", job.ID(), "error", err.Error()))
		return
	}
	if err := n.jobs.Upsert(ctx, job); err != nil {
		slogger.ErrorWithError(ctx, err, "failed to persist dead-letter job status",
			slogger.Field("job_id", job.ID()))
	}
}

func (n *NATSConsumer) recordProcessed() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.health.MessagesProcessed++
}

func (n *NATSConsumer) recordFailed() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.health.MessagesFailed++
}

func (n *NATSConsumer) recordError(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.health.LastError = msg
}
