package worker

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/port/outbound"
)

// MockJobRepository is a testify mock for outbound.JobRepository.
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Upsert(ctx context.Context, job *entity.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) FindByID(ctx context.Context, jobID string) (*entity.Job, error) {
	args := m.Called(ctx, jobID)
	var job *entity.Job
	if v := args.Get(0); v != nil {
		job = v.(*entity.Job)
	}
	return job, args.Error(1)
}

// MockBatchRepository is a testify mock for outbound.BatchRepository.
type MockBatchRepository struct {
	mock.Mock
}

func (m *MockBatchRepository) Save(ctx context.Context, record *entity.BatchRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockBatchRepository) Find(ctx context.Context, tenantID string, batchNo int) (*entity.BatchRecord, error) {
	args := m.Called(ctx, tenantID, batchNo)
	var record *entity.BatchRecord
	if v := args.Get(0); v != nil {
		record = v.(*entity.BatchRecord)
	}
	return record, args.Error(1)
}

func (m *MockBatchRepository) IncrementRetry(ctx context.Context, tenantID string, batchNo int) (int, error) {
	args := m.Called(ctx, tenantID, batchNo)
	return args.Int(0), args.Error(1)
}

func (m *MockBatchRepository) Delete(ctx context.Context, tenantID string, batchNo int) error {
	args := m.Called(ctx, tenantID, batchNo)
	return args.Error(0)
}

func (m *MockBatchRepository) CountByJob(ctx context.Context, jobID string) (int, error) {
	args := m.Called(ctx, jobID)
	return args.Int(0), args.Error(1)
}

// MockObjectStore is a testify mock for outbound.ObjectStore.
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Download(ctx context.Context, bucket, key, destPath string) error {
	args := m.Called(ctx, bucket, key, destPath)
	return args.Error(0)
}

func (m *MockObjectStore) Upload(ctx context.Context, bucket, key, srcPath, contentType string) error {
	args := m.Called(ctx, bucket, key, srcPath, contentType)
	return args.Error(0)
}

func (m *MockObjectStore) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, expiry)
	return args.String(0), args.Error(1)
}

// MockUploadClient is a testify mock for outbound.UploadClient.
type MockUploadClient struct {
	mock.Mock
}

func (m *MockUploadClient) Submit(
	ctx context.Context,
	items []entity.Item,
	meta outbound.SubmissionMeta,
) (outbound.BatchResult, error) {
	args := m.Called(ctx, items, meta)
	result, _ := args.Get(0).(outbound.BatchResult)
	return result, args.Error(1)
}

func (m *MockUploadClient) SubmitAsync(
	ctx context.Context,
	items []entity.Item,
	meta outbound.SubmissionMeta,
	callbackURL string,
) error {
	args := m.Called(ctx, items, meta, callbackURL)
	return args.Error(0)
}
