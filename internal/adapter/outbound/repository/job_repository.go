package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/domain/valueobject"
)

// PostgreSQLJobRepository implements outbound.JobRepository.
type PostgreSQLJobRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLJobRepository creates a job repository over a connection pool.
func NewPostgreSQLJobRepository(pool *pgxpool.Pool) *PostgreSQLJobRepository {
	return &PostgreSQLJobRepository{pool: pool}
}

// Upsert inserts or updates the job record keyed by job ID. The update is
// guarded so a stale write can never move a job backwards: the stored row
// only changes when the incoming status ranks at or above the stored one,
// and a terminal status never flips to a different terminal status.
func (r *PostgreSQLJobRepository) Upsert(ctx context.Context, job *entity.Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	query := `
		INSERT INTO migration_jobs (
			job_id, tenant_id, source_bucket, source_key, file_name, file_type,
			message_id, status, success_count, failure_count,
			error_artifact_key, error_message, started_at, completed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (job_id) DO UPDATE SET
			status             = EXCLUDED.status,
			success_count      = EXCLUDED.success_count,
			failure_count      = EXCLUDED.failure_count,
			error_artifact_key = COALESCE(EXCLUDED.error_artifact_key, migration_jobs.error_artifact_key),
			error_message      = EXCLUDED.error_message,
			started_at         = COALESCE(migration_jobs.started_at, EXCLUDED.started_at),
			completed_at       = COALESCE(migration_jobs.completed_at, EXCLUDED.completed_at),
			updated_at         = EXCLUDED.updated_at
		WHERE $17 >= CASE migration_jobs.status
				WHEN 'queued' THEN 1
				WHEN 'processing' THEN 2
				ELSE 3
			END
			AND (migration_jobs.status = EXCLUDED.status
				OR migration_jobs.status NOT IN ('completed', 'failed'))`

	_, err := r.pool.Exec(ctx, query,
		job.ID(), job.TenantID(), job.SourceBucket(), job.SourceKey(), job.FileName(), job.FileType(),
		job.MessageID(), job.Status().String(), job.SuccessCount(), job.FailureCount(),
		job.ErrorArtifactKey(), job.ErrorMessage(), job.StartedAt(), job.CompletedAt(),
		job.CreatedAt(), time.Now(),
		job.Status().Rank(),
	)
	if err != nil {
		return WrapError(err, "upsert job")
	}
	return nil
}

// FindByID returns the stored job, or (nil, nil) when no record exists.
func (r *PostgreSQLJobRepository) FindByID(ctx context.Context, jobID string) (*entity.Job, error) {
	query := `
		SELECT job_id, tenant_id, source_bucket, source_key, file_name, file_type,
			message_id, status, success_count, failure_count,
			error_artifact_key, error_message, started_at, completed_at,
			created_at, updated_at
		FROM migration_jobs
		WHERE job_id = $1`

	var (
		id, tenantID, bucket, key, fileName, fileType, messageID, status string
		successCount, failureCount                                       int
		errorArtifactKey, errorMessage                                   *string
		startedAt, completedAt                                           *time.Time
		createdAt, updatedAt                                             time.Time
	)
	err := r.pool.QueryRow(ctx, query, jobID).Scan(
		&id, &tenantID, &bucket, &key, &fileName, &fileType,
		&messageID, &status, &successCount, &failureCount,
		&errorArtifactKey, &errorMessage, &startedAt, &completedAt,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapError(err, "find job")
	}

	jobStatus, err := valueobject.NewJobStatus(status)
	if err != nil {
		return nil, fmt.Errorf("stored job %s has invalid status: %w", jobID, err)
	}

	return entity.RestoreJob(
		id, tenantID, bucket, key, fileName, fileType, messageID,
		jobStatus, successCount, failureCount,
		errorArtifactKey, errorMessage, startedAt, completedAt,
		createdAt, updatedAt,
	), nil
}
