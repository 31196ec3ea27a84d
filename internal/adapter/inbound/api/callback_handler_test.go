package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/domain/valueobject"
	"github.com/19karthik/document-migration/internal/port/outbound"
)

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

type mockBatchRepository struct {
	mock.Mock
}

func (m *mockBatchRepository) Save(ctx context.Context, record *entity.BatchRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockBatchRepository) Find(ctx context.Context, tenantID string, batchNo int) (*entity.BatchRecord, error) {
	args := m.Called(ctx, tenantID, batchNo)
	var record *entity.BatchRecord
	if v := args.Get(0); v != nil {
		record = v.(*entity.BatchRecord)
	}
	return record, args.Error(1)
}

func (m *mockBatchRepository) IncrementRetry(ctx context.Context, tenantID string, batchNo int) (int, error) {
	args := m.Called(ctx, tenantID, batchNo)
	return args.Int(0), args.Error(1)
}

func (m *mockBatchRepository) Delete(ctx context.Context, tenantID string, batchNo int) error {
	args := m.Called(ctx, tenantID, batchNo)
	return args.Error(0)
}

func (m *mockBatchRepository) CountByJob(ctx context.Context, jobID string) (int, error) {
	args := m.Called(ctx, jobID)
	return args.Int(0), args.Error(1)
}

type mockUploadClient struct {
	mock.Mock
}

func (m *mockUploadClient) Submit(
	ctx context.Context,
	items []entity.Item,
	meta outbound.SubmissionMeta,
) (outbound.BatchResult, error) {
	args := m.Called(ctx, items, meta)
	result, _ := args.Get(0).(outbound.BatchResult)
	return result, args.Error(1)
}

func (m *mockUploadClient) SubmitAsync(
	ctx context.Context,
	items []entity.Item,
	meta outbound.SubmissionMeta,
	callbackURL string,
) error {
	args := m.Called(ctx, items, meta, callbackURL)
	return args.Error(0)
}

type mockObjectStore struct {
	mock.Mock
}

func (m *mockObjectStore) Download(ctx context.Context, bucket, key, destPath string) error {
	args := m.Called(ctx, bucket, key, destPath)
	return args.Error(0)
}

func (m *mockObjectStore) Upload(ctx context.Context, bucket, key, srcPath, contentType string) error {
	args := m.Called(ctx, bucket, key, srcPath, contentType)
	return args.Error(0)
}

func (m *mockObjectStore) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, expiry)
	return args.String(0), args.Error(1)
}

func processingJob() *entity.Job {
	job := entity.NewJob("job-1", "tenant-a", "uploads", "tenant-a/bundle.zip", "bundle.zip", "", "msg-1")
	_ = job.Start()
	return job
}

func batchRecord(files int) *entity.BatchRecord {
	paths := make([]string, files)
	for i := range paths {
		paths[i] = "/scratch/job-1/extracted/doc.pdf"
	}
	return &entity.BatchRecord{
		JobID:     "job-1",
		TenantID:  "tenant-a",
		BatchNo:   2,
		Files:     paths,
		UpdatedAt: time.Now(),
	}
}

func doCallback(t *testing.T, handler *CallbackHandler, url string) (*httptest.ResponseRecorder, callbackResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, url, nil)
	rec := httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)

	var body callbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

// TestCallback_SuccessResolvesBatchAndFinalizesJob verifies a success
// callback books the files, deletes the record and completes the job when it
// was the last outstanding batch.
func TestCallback_SuccessResolvesBatchAndFinalizesJob(t *testing.T) {
	jobs := new(mockJobRepository)
	batches := new(mockBatchRepository)
	client := new(mockUploadClient)

	record := batchRecord(3)
	job := processingJob()
	batches.On("Find", mock.Anything, "tenant-a", 2).Return(record, nil).Once()
	jobs.On("FindByID", mock.Anything, "job-1").Return(job, nil)
	jobs.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	batches.On("Delete", mock.Anything, "tenant-a", 2).Return(nil).Once()
	batches.On("CountByJob", mock.Anything, "job-1").Return(0, nil).Once()

	handler := NewCallbackHandler(jobs, batches, client, nil, "", "http://cb.local", 5)
	rec, body := doCallback(t, handler, "/callback/tenant-a/2/0?status=success")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 3, body.FilesProcessed)
	assert.Equal(t, valueobject.JobStatusCompleted, job.Status())
	assert.Equal(t, 3, job.SuccessCount())
	batches.AssertExpectations(t)
}

// TestCallback_FailureBelowCapResubmitsBatch verifies a failure callback
// under the retry cap resubmits the batch and reports the next retry.
func TestCallback_FailureBelowCapResubmitsBatch(t *testing.T) {
	jobs := new(mockJobRepository)
	batches := new(mockBatchRepository)
	client := new(mockUploadClient)

	batches.On("Find", mock.Anything, "tenant-a", 2).Return(batchRecord(3), nil).Once()
	batches.On("IncrementRetry", mock.Anything, "tenant-a", 2).Return(3, nil).Once()
	client.On("SubmitAsync", mock.Anything, mock.Anything, mock.Anything,
		"http://cb.local/callback/tenant-a/2/3").Return(nil).Once()

	handler := NewCallbackHandler(jobs, batches, client, nil, "", "http://cb.local", 5)
	rec, body := doCallback(t, handler, "/callback/tenant-a/2/2?status=failed")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "retrying", body.Status)
	assert.Equal(t, 3, body.NextRetry)
	client.AssertExpectations(t)
	batches.AssertExpectations(t)
}

// TestCallback_FailureAtCapArchivesBatchAndFailsJob verifies the retry cap:
// the batch's files are archived as an error artifact, the scratch copies are
// removed afterwards, and the job fails carrying the artifact key once no
// batches remain.
func TestCallback_FailureAtCapArchivesBatchAndFailsJob(t *testing.T) {
	jobs := new(mockJobRepository)
	batches := new(mockBatchRepository)
	client := new(mockUploadClient)
	store := new(mockObjectStore)

	extractedDir := filepath.Join(t.TempDir(), "extracted")
	require.NoError(t, os.MkdirAll(extractedDir, 0o755))
	paths := make([]string, 4)
	for i := range paths {
		paths[i] = filepath.Join(extractedDir, fmt.Sprintf("doc-%d.pdf", i))
		require.NoError(t, os.WriteFile(paths[i], []byte("content"), 0o644))
	}
	record := &entity.BatchRecord{
		JobID:     "job-1",
		TenantID:  "tenant-a",
		BatchNo:   2,
		Files:     paths,
		UpdatedAt: time.Now(),
	}
	job := processingJob()

	batches.On("Find", mock.Anything, "tenant-a", 2).Return(record, nil).Once()
	jobs.On("FindByID", mock.Anything, "job-1").Return(job, nil)
	jobs.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	batches.On("Delete", mock.Anything, "tenant-a", 2).Return(nil).Once()
	batches.On("CountByJob", mock.Anything, "job-1").Return(0, nil).Once()
	store.On("Upload", mock.Anything, "artifacts", "errors/tenant-a_bundle_errorfile.txt",
		mock.Anything, "text/plain").Return(nil).Once()
	store.On("Upload", mock.Anything, "artifacts", "errors/tenant-a_bundle_failed_bundle.zip",
		mock.Anything, "application/zip").Return(nil).Once()
	store.On("PresignGet", mock.Anything, "artifacts", mock.Anything, mock.Anything).
		Return("https://signed.example/errors", nil).Once()

	handler := NewCallbackHandler(jobs, batches, client, store, "artifacts", "http://cb.local", 5)
	rec, body := doCallback(t, handler, "/callback/tenant-a/2/5?status=failed")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", body.Status)
	assert.Equal(t, valueobject.JobStatusFailed, job.Status())
	assert.Equal(t, 4, job.FailureCount())
	require.NotNil(t, job.ErrorArtifactKey())
	assert.Equal(t, "errors/tenant-a_bundle_errorfile.txt", *job.ErrorArtifactKey())
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "scratch files are removed only after archiving")
	}
	client.AssertNotCalled(t, "SubmitAsync")
	store.AssertExpectations(t)
}

// TestCallback_UnknownBatchReturns404 verifies callbacks for unknown batches
// are rejected.
func TestCallback_UnknownBatchReturns404(t *testing.T) {
	jobs := new(mockJobRepository)
	batches := new(mockBatchRepository)
	batches.On("Find", mock.Anything, "tenant-a", 9).Return(nil, nil).Once()

	handler := NewCallbackHandler(jobs, batches, new(mockUploadClient), nil, "", "http://cb.local", 5)
	rec, body := doCallback(t, handler, "/callback/tenant-a/9/0?status=success")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "failed", body.Status)
}

// TestCallback_RejectsMalformedRequests verifies parameter validation.
func TestCallback_RejectsMalformedRequests(t *testing.T) {
	handler := NewCallbackHandler(new(mockJobRepository), new(mockBatchRepository),
		new(mockUploadClient), nil, "", "http://cb.local", 5)

	rec, _ := doCallback(t, handler, "/callback/tenant-a/not-a-number/0?status=success")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	batches := new(mockBatchRepository)
	batches.On("Find", mock.Anything, "tenant-a", 2).Return(batchRecord(1), nil).Once()
	handler = NewCallbackHandler(new(mockJobRepository), batches, new(mockUploadClient), nil, "", "http://cb.local", 5)
	rec, _ = doCallback(t, handler, "/callback/tenant-a/2/0?status=sideways")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
