package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/19karthik/document-migration/internal/domain/entity"
)

// PostgreSQLBatchRepository implements outbound.BatchRepository for the
// asynchronous submission mode.
type PostgreSQLBatchRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLBatchRepository creates a batch repository over a pool.
func NewPostgreSQLBatchRepository(pool *pgxpool.Pool) *PostgreSQLBatchRepository {
	return &PostgreSQLBatchRepository{pool: pool}
}

// Save inserts or replaces a batch record keyed by tenant and batch number.
// A live record belonging to a different job is never overwritten: batch
// numbers restart per job, so a clash means two unresolved jobs for the same
// tenant are racing for the same callback slot.
func (r *PostgreSQLBatchRepository) Save(ctx context.Context, record *entity.BatchRecord) error {
	if record == nil {
		return errors.New("batch record cannot be nil")
	}
	query := `
		INSERT INTO migration_batches (job_id, tenant_id, batch_no, files, retry_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, batch_no) DO UPDATE SET
			files       = EXCLUDED.files,
			retry_count = EXCLUDED.retry_count,
			updated_at  = EXCLUDED.updated_at
		WHERE migration_batches.job_id = EXCLUDED.job_id`

	ct, err := r.pool.Exec(ctx, query,
		record.JobID, record.TenantID, record.BatchNo, record.Files, record.RetryCount, time.Now())
	if err != nil {
		return WrapError(err, "save batch record")
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("batch %d for tenant %s is held by another unresolved job: %w",
			record.BatchNo, record.TenantID, ErrAlreadyExists)
	}
	return nil
}

// Find returns the stored batch record, or (nil, nil) when absent.
func (r *PostgreSQLBatchRepository) Find(ctx context.Context, tenantID string, batchNo int) (*entity.BatchRecord, error) {
	query := `
		SELECT job_id, tenant_id, batch_no, files, retry_count, updated_at
		FROM migration_batches
		WHERE tenant_id = $1 AND batch_no = $2`

	var record entity.BatchRecord
	err := r.pool.QueryRow(ctx, query, tenantID, batchNo).Scan(
		&record.JobID, &record.TenantID, &record.BatchNo,
		&record.Files, &record.RetryCount, &record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapError(err, "find batch record")
	}
	return &record, nil
}

// IncrementRetry bumps and returns the record's retry count.
func (r *PostgreSQLBatchRepository) IncrementRetry(ctx context.Context, tenantID string, batchNo int) (int, error) {
	query := `
		UPDATE migration_batches
		SET retry_count = retry_count + 1, updated_at = $3
		WHERE tenant_id = $1 AND batch_no = $2
		RETURNING retry_count`

	var count int
	err := r.pool.QueryRow(ctx, query, tenantID, batchNo, time.Now()).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, WrapError(pgx.ErrNoRows, "increment batch retry")
	}
	if err != nil {
		return 0, WrapError(err, "increment batch retry")
	}
	return count, nil
}

// CountByJob returns how many unresolved batch records a job still has.
func (r *PostgreSQLBatchRepository) CountByJob(ctx context.Context, jobID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM migration_batches WHERE job_id = $1`, jobID).Scan(&count)
	if err != nil {
		return 0, WrapError(err, "count batch records")
	}
	return count, nil
}

// Delete removes a batch record once its outcome is resolved.
func (r *PostgreSQLBatchRepository) Delete(ctx context.Context, tenantID string, batchNo int) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM migration_batches WHERE tenant_id = $1 AND batch_no = $2`,
		tenantID, batchNo)
	if err != nil {
		return WrapError(err, "delete batch record")
	}
	return nil
}
