package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/19karthik/document-migration/internal/config"
	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/domain/messaging"
	"github.com/19karthik/document-migration/internal/domain/valueobject"
)

type nopProcessor struct{}

func (nopProcessor) ProcessJob(context.Context, messaging.MigrationJobMessage, int) error {
	return nil
}

type mockJobRepository struct {
	mock.Mock
}

func (m *mockJobRepository) Upsert(ctx context.Context, job *entity.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *mockJobRepository) FindByID(ctx context.Context, jobID string) (*entity.Job, error) {
	args := m.Called(ctx, jobID)
	var job *entity.Job
	if v := args.Get(0); v != nil {
		job = v.(*entity.Job)
	}
	return job, args.Error(1)
}

type mockDLQPublisher struct {
	mock.Mock
}

func (m *mockDLQPublisher) PublishDeadLetter(ctx context.Context, msg messaging.DLQMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func validConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Subject:       "migration.job",
		QueueGroup:    "migration-workers",
		DurableName:   "migration-consumer",
		AckWait:       time.Minute,
		MaxDeliver:    3,
		MaxAckPending: 100,
	}
}

// TestNewNATSConsumer_ValidatesConfiguration verifies required settings.
func TestNewNATSConsumer_ValidatesConfiguration(t *testing.T) {
	_, err := NewNATSConsumer(validConsumerConfig(), config.NATSConfig{}, nopProcessor{}, nil, nil, nil)
	require.NoError(t, err)

	mutations := map[string]func(*ConsumerConfig){
		"subject":     func(c *ConsumerConfig) { c.Subject = "" },
		"queue group": func(c *ConsumerConfig) { c.QueueGroup = "" },
		"durable":     func(c *ConsumerConfig) { c.DurableName = "" },
		"ack wait":    func(c *ConsumerConfig) { c.AckWait = 0 },
		"max deliver": func(c *ConsumerConfig) { c.MaxDeliver = 0 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := validConsumerConfig()
			mutate(&cfg)
			_, err := NewNATSConsumer(cfg, config.NATSConfig{}, nopProcessor{}, nil, nil, nil)
			assert.Error(t, err)
		})
	}

	_, err = NewNATSConsumer(validConsumerConfig(), config.NATSConfig{}, nil, nil, nil, nil)
	assert.Error(t, err, "a consumer without a processor is useless")
}

// TestNewNATSConsumer_DerivesExtendInterval verifies the visibility extension
// interval defaults to half the ack wait.
func TestNewNATSConsumer_DerivesExtendInterval(t *testing.T) {
	cfg := validConsumerConfig()
	cfg.AckWait = 40 * time.Second

	consumer, err := NewNATSConsumer(cfg, config.NATSConfig{}, nopProcessor{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, consumer.config.ExtendInterval)

	health := consumer.Health()
	assert.False(t, health.Running)
}

// TestTerminate_FailsJobAndPublishesDeadLetter verifies dead-lettering a
// message writes a failed job status before the message leaves the stream,
// so no job is left in processing forever.
func TestTerminate_FailsJobAndPublishesDeadLetter(t *testing.T) {
	jobs := new(mockJobRepository)
	dlq := new(mockDLQPublisher)
	consumer, err := NewNATSConsumer(validConsumerConfig(), config.NATSConfig{}, nopProcessor{}, jobs, dlq, nil)
	require.NoError(t, err)

	jobMsg := messaging.MigrationJobMessage{
		MessageID: "msg-9",
		ObjectID:  "job-9",
		TenantID:  "tenant-a",
		S3Bucket:  "uploads",
		S3Key:     "tenant-a/bundle.zip",
	}
	jobs.On("FindByID", mock.Anything, "job-9").Return(nil, nil).Once()
	var failed *entity.Job
	jobs.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { failed = args.Get(1).(*entity.Job) }).
		Return(nil).Once()
	var letter messaging.DLQMessage
	dlq.On("PublishDeadLetter", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { letter = args.Get(1).(messaging.DLQMessage) }).
		Return(nil).Once()

	cause := errors.New("extract bundle: zip: not a valid zip file")
	consumer.terminate(context.Background(), &nats.Msg{}, jobMsg, cause, 3)

	require.NotNil(t, failed)
	assert.Equal(t, valueobject.JobStatusFailed, failed.Status())
	require.NotNil(t, failed.ErrorMessage())
	assert.Contains(t, *failed.ErrorMessage(), "dead-lettered after 3 deliveries")
	assert.Equal(t, "msg-9", letter.OriginalMessage.MessageID)
	assert.Equal(t, 3, letter.DeliveryCount)
	assert.Equal(t, int64(1), consumer.Health().MessagesFailed)
	jobs.AssertExpectations(t)
	dlq.AssertExpectations(t)
}

// TestTerminate_LeavesTerminalJobUntouched verifies a job that already
// reached a terminal state is not rewritten when its message dead-letters.
func TestTerminate_LeavesTerminalJobUntouched(t *testing.T) {
	jobs := new(mockJobRepository)
	dlq := new(mockDLQPublisher)
	consumer, err := NewNATSConsumer(validConsumerConfig(), config.NATSConfig{}, nopProcessor{}, jobs, dlq, nil)
	require.NoError(t, err)

	done := entity.NewJob("job-9", "tenant-a", "uploads", "tenant-a/bundle.zip", "bundle.zip", "", "msg-9")
	require.NoError(t, done.Start())
	require.NoError(t, done.Complete(5, 0))

	jobMsg := messaging.MigrationJobMessage{
		MessageID: "msg-9",
		ObjectID:  "job-9",
		S3Bucket:  "uploads",
		S3Key:     "tenant-a/bundle.zip",
	}
	jobs.On("FindByID", mock.Anything, "job-9").Return(done, nil).Once()
	dlq.On("PublishDeadLetter", mock.Anything, mock.Anything).Return(nil).Once()

	consumer.terminate(context.Background(), &nats.Msg{}, jobMsg, errors.New("late redelivery"), 3)

	jobs.AssertNotCalled(t, "Upsert")
	assert.Equal(t, valueobject.JobStatusCompleted, done.Status())
}
