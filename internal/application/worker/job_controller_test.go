package worker

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/domain/messaging"
	"github.com/19karthik/document-migration/internal/domain/valueobject"
	"github.com/19karthik/document-migration/internal/port/outbound"
)

// scriptedClient accepts every item except those listed in rejects. It
// stands in for the ingestion endpoint in pipeline tests.
type scriptedClient struct {
	rejects     map[string]string
	asyncCalls  int
	submitCalls int
}

func (c *scriptedClient) Submit(
	_ context.Context,
	items []entity.Item,
	_ outbound.SubmissionMeta,
) (outbound.BatchResult, error) {
	c.submitCalls++
	var result outbound.BatchResult
	for _, item := range items {
		if reason, ok := c.rejects[item.Name]; ok {
			result.Rejected = append(result.Rejected, outbound.Rejection{Item: item.Name, Reason: reason})
		} else {
			result.Accepted = append(result.Accepted, item.Name)
		}
	}
	return result, nil
}

func (c *scriptedClient) SubmitAsync(
	_ context.Context,
	_ []entity.Item,
	_ outbound.SubmissionMeta,
	_ string,
) error {
	c.asyncCalls++
	return nil
}

type controllerFixture struct {
	jobs    *MockJobRepository
	batches *MockBatchRepository
	store   *MockObjectStore
	client  *scriptedClient
}

func newTestController(t *testing.T, fixture *controllerFixture, batchCount int, async bool) *JobController {
	t.Helper()
	policy, err := valueobject.CountPolicy(batchCount)
	require.NoError(t, err)
	metrics, err := NewJobMetrics("test-worker")
	require.NoError(t, err)

	return NewJobController(
		fixture.jobs,
		fixture.batches,
		fixture.store,
		fixture.client,
		NewArchiveExtractor(),
		NewBatchPlanner(policy),
		NewRetryEngine(fixture.client, fastRetryPolicy(3)),
		metrics,
		JobControllerConfig{
			ScratchDir:       t.TempDir(),
			ArtifactBucket:   "artifacts",
			PresignExpiry:    time.Hour,
			BatchConcurrency: 1,
			AsyncMode:        async,
			CallbackBaseURL:  "http://callback.local",
			WorkerID:         "test-worker",
		},
	)
}

func testMessage() messaging.MigrationJobMessage {
	return messaging.MigrationJobMessage{
		MessageID: "msg-1",
		Timestamp: time.Now(),
		ObjectID:  "job-42",
		TenantID:  "tenant-a",
		S3Bucket:  "uploads",
		S3Key:     "tenant-a/bundle.zip",
	}
}

// stubDownload makes the store write a real bundle at the download target.
func stubDownload(t *testing.T, store *MockObjectStore, entries map[string]string) {
	t.Helper()
	store.On("Download", mock.Anything, "uploads", "tenant-a/bundle.zip", mock.Anything).
		Run(func(args mock.Arguments) {
			writeTestBundle(t, args.String(3), "", entries)
		}).Return(nil).Once()
}

// TestProcessJob_AllItemsAcceptedCompletesJob verifies the happy path: 23
// items, batches of 10, everything accepted, job completed with the full
// count and a nil return so the message gets acknowledged.
func TestProcessJob_AllItemsAcceptedCompletesJob(t *testing.T) {
	entries := make(map[string]string, 23)
	for i := 0; i < 23; i++ {
		entries[fmt.Sprintf("doc-%03d.pdf", i)] = "content"
	}

	fixture := &controllerFixture{
		jobs:    new(MockJobRepository),
		batches: new(MockBatchRepository),
		store:   new(MockObjectStore),
		client:  &scriptedClient{},
	}
	fixture.jobs.On("FindByID", mock.Anything, "job-42").Return(nil, nil).Once()
	var final *entity.Job
	fixture.jobs.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { final = args.Get(1).(*entity.Job) }).
		Return(nil)
	stubDownload(t, fixture.store, entries)

	controller := newTestController(t, fixture, 10, false)
	err := controller.ProcessJob(context.Background(), testMessage(), 1)
	require.NoError(t, err)

	require.NotNil(t, final)
	assert.Equal(t, valueobject.JobStatusCompleted, final.Status())
	assert.Equal(t, 23, final.SuccessCount())
	assert.Equal(t, 0, final.FailureCount())
	assert.Nil(t, final.ErrorArtifactKey())
	assert.Equal(t, 3, fixture.client.submitCalls, "23 items at 10 per batch need 3 submissions")
}

// TestProcessJob_PersistentRejectionsFailJobWithArtifact verifies terminal
// item failures produce a published error artifact and a failed job that is
// still acknowledged.
func TestProcessJob_PersistentRejectionsFailJobWithArtifact(t *testing.T) {
	entries := map[string]string{
		"a.pdf": "ok", "b.pdf": "ok", "c.pdf": "ok", "d.pdf": "bad", "e.pdf": "bad",
	}

	fixture := &controllerFixture{
		jobs:    new(MockJobRepository),
		batches: new(MockBatchRepository),
		store:   new(MockObjectStore),
		client: &scriptedClient{rejects: map[string]string{
			"d.pdf": "unsupported format",
			"e.pdf": "unsupported format",
		}},
	}
	fixture.jobs.On("FindByID", mock.Anything, "job-42").Return(nil, nil).Once()
	var final *entity.Job
	fixture.jobs.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { final = args.Get(1).(*entity.Job) }).
		Return(nil)
	stubDownload(t, fixture.store, entries)
	fixture.store.On("Upload", mock.Anything, "artifacts", "errors/tenant-a_bundle_errorfile.txt",
		mock.Anything, "text/plain").Return(nil).Once()
	fixture.store.On("Upload", mock.Anything, "artifacts", "errors/tenant-a_bundle_failed_bundle.zip",
		mock.Anything, "application/zip").Return(nil).Once()
	fixture.store.On("PresignGet", mock.Anything, "artifacts", mock.Anything, time.Hour).
		Return("https://signed.example/errors", nil).Once()

	controller := newTestController(t, fixture, 10, false)
	err := controller.ProcessJob(context.Background(), testMessage(), 1)
	require.NoError(t, err, "a terminally failed job is still acknowledged")

	require.NotNil(t, final)
	assert.Equal(t, valueobject.JobStatusFailed, final.Status())
	assert.Equal(t, 3, final.SuccessCount())
	assert.Equal(t, 2, final.FailureCount())
	require.NotNil(t, final.ErrorArtifactKey())
	assert.Equal(t, "errors/tenant-a_bundle_errorfile.txt", *final.ErrorArtifactKey())
}

// TestProcessJob_TerminalJobIsAcknowledgedWithoutWork verifies redelivery of
// an already-terminal job does nothing but acknowledge.
func TestProcessJob_TerminalJobIsAcknowledgedWithoutWork(t *testing.T) {
	done := entity.NewJob("job-42", "tenant-a", "uploads", "tenant-a/bundle.zip", "bundle.zip", "", "msg-1")
	require.NoError(t, done.Start())
	require.NoError(t, done.Complete(10, 0))

	fixture := &controllerFixture{
		jobs:    new(MockJobRepository),
		batches: new(MockBatchRepository),
		store:   new(MockObjectStore),
		client:  &scriptedClient{},
	}
	fixture.jobs.On("FindByID", mock.Anything, "job-42").Return(done, nil).Once()

	controller := newTestController(t, fixture, 10, false)
	err := controller.ProcessJob(context.Background(), testMessage(), 2)
	require.NoError(t, err)

	fixture.store.AssertNotCalled(t, "Download")
	fixture.jobs.AssertNotCalled(t, "Upsert")
	assert.Zero(t, fixture.client.submitCalls)
}

// TestProcessJob_DownloadFailureLeavesJobRetryable verifies a storage error
// surfaces so the message is redelivered, without a terminal status write.
func TestProcessJob_DownloadFailureLeavesJobRetryable(t *testing.T) {
	fixture := &controllerFixture{
		jobs:    new(MockJobRepository),
		batches: new(MockBatchRepository),
		store:   new(MockObjectStore),
		client:  &scriptedClient{},
	}
	fixture.jobs.On("FindByID", mock.Anything, "job-42").Return(nil, nil).Once()
	var last *entity.Job
	fixture.jobs.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { last = args.Get(1).(*entity.Job) }).
		Return(nil)
	fixture.store.On("Download", mock.Anything, "uploads", "tenant-a/bundle.zip", mock.Anything).
		Return(assert.AnError).Once()

	controller := newTestController(t, fixture, 10, false)
	err := controller.ProcessJob(context.Background(), testMessage(), 1)
	require.Error(t, err)

	require.NotNil(t, last)
	assert.Equal(t, valueobject.JobStatusProcessing, last.Status())
}

// TestProcessJob_CorruptBundleFailsJobTerminally verifies an unreadable
// bundle marks the job failed and acknowledges, since redelivery cannot fix
// a corrupt archive.
func TestProcessJob_CorruptBundleFailsJobTerminally(t *testing.T) {
	fixture := &controllerFixture{
		jobs:    new(MockJobRepository),
		batches: new(MockBatchRepository),
		store:   new(MockObjectStore),
		client:  &scriptedClient{},
	}
	fixture.jobs.On("FindByID", mock.Anything, "job-42").Return(nil, nil).Once()
	var final *entity.Job
	fixture.jobs.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { final = args.Get(1).(*entity.Job) }).
		Return(nil)
	fixture.store.On("Download", mock.Anything, "uploads", "tenant-a/bundle.zip", mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, os.WriteFile(args.String(3), []byte("not a zip"), 0o644))
		}).Return(nil).Once()

	controller := newTestController(t, fixture, 10, false)
	err := controller.ProcessJob(context.Background(), testMessage(), 1)
	require.NoError(t, err)

	require.NotNil(t, final)
	assert.Equal(t, valueobject.JobStatusFailed, final.Status())
	require.NotNil(t, final.ErrorMessage())
	assert.Contains(t, *final.ErrorMessage(), "extract bundle")
}

// TestProcessJob_AsyncBatchSlotConflictIsRetryable verifies a batch record
// held by another unresolved job surfaces as an error so the message is
// redelivered once the other job's callbacks settle.
func TestProcessJob_AsyncBatchSlotConflictIsRetryable(t *testing.T) {
	fixture := &controllerFixture{
		jobs:    new(MockJobRepository),
		batches: new(MockBatchRepository),
		store:   new(MockObjectStore),
		client:  &scriptedClient{},
	}
	fixture.jobs.On("FindByID", mock.Anything, "job-42").Return(nil, nil).Once()
	var last *entity.Job
	fixture.jobs.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { last = args.Get(1).(*entity.Job) }).
		Return(nil)
	stubDownload(t, fixture.store, map[string]string{"a.pdf": "content"})
	fixture.batches.On("Save", mock.Anything, mock.Anything).
		Return(fmt.Errorf("batch 1 for tenant tenant-a is held by another unresolved job")).Once()

	controller := newTestController(t, fixture, 10, true)
	err := controller.ProcessJob(context.Background(), testMessage(), 1)
	require.Error(t, err)

	assert.Zero(t, fixture.client.asyncCalls, "nothing is submitted when the batch slot is taken")
	require.NotNil(t, last)
	assert.Equal(t, valueobject.JobStatusProcessing, last.Status())
}

// TestProcessJob_AsyncModeSubmitsBatchesAndKeepsRecords verifies async mode
// persists one batch record per batch, submits with callbacks and leaves the
// job in processing.
func TestProcessJob_AsyncModeSubmitsBatchesAndKeepsRecords(t *testing.T) {
	entries := make(map[string]string, 12)
	for i := 0; i < 12; i++ {
		entries[fmt.Sprintf("doc-%03d.pdf", i)] = "content"
	}

	fixture := &controllerFixture{
		jobs:    new(MockJobRepository),
		batches: new(MockBatchRepository),
		store:   new(MockObjectStore),
		client:  &scriptedClient{},
	}
	fixture.jobs.On("FindByID", mock.Anything, "job-42").Return(nil, nil).Once()
	var last *entity.Job
	fixture.jobs.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { last = args.Get(1).(*entity.Job) }).
		Return(nil)
	stubDownload(t, fixture.store, entries)

	var records []*entity.BatchRecord
	fixture.batches.On("Save", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { records = append(records, args.Get(1).(*entity.BatchRecord)) }).
		Return(nil)

	controller := newTestController(t, fixture, 10, true)
	err := controller.ProcessJob(context.Background(), testMessage(), 1)
	require.NoError(t, err)

	assert.Equal(t, 2, fixture.client.asyncCalls)
	require.Len(t, records, 2)
	assert.Equal(t, "job-42", records[0].JobID)
	assert.Len(t, records[0].Files, 10)
	assert.Len(t, records[1].Files, 2)
	require.NotNil(t, last)
	assert.Equal(t, valueobject.JobStatusProcessing, last.Status())
	assert.Zero(t, fixture.client.submitCalls)
}
