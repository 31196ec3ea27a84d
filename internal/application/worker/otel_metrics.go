package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names following OpenTelemetry semantic conventions.
const (
	JobDurationHistogramName   = "migration_job_duration_seconds"
	JobCounterName             = "migration_jobs_total"
	ItemCounterName            = "migration_items_total"
	BatchDurationHistogramName = "migration_batch_duration_seconds"
	DeadLetterCounterName      = "migration_dead_letters_total"
)

// Common attribute keys for consistent labeling.
const (
	AttrJobStatus   = "job_status"   // completed, failed
	AttrItemOutcome = "item_outcome" // uploaded, failed
	AttrTenantID    = "tenant_id"
	AttrWorkerID    = "worker_id"
	AttrFailureType = "failure_type"
	AttrBatchNo     = "batch_no"
)

// JobMetrics provides OpenTelemetry-based metrics collection for migration
// job processing.
type JobMetrics struct {
	jobDuration   metric.Float64Histogram
	batchDuration metric.Float64Histogram

	jobTotal        metric.Int64Counter
	itemTotal       metric.Int64Counter
	deadLetterTotal metric.Int64Counter

	workerID string
}

// NewJobMetrics creates a metrics collector for job processing.
func NewJobMetrics(workerID string) (*JobMetrics, error) {
	meter := otel.Meter("document-migration/worker", metric.WithInstrumentationVersion("1.0.0"))

	// jobLatencyBuckets covers full job lifecycles, download to final ack,
	// which for large bundles can run into minutes.
	jobLatencyBuckets := []float64{
		0.5,    // 500ms
		1.0,    // 1s
		5.0,    // 5s
		15.0,   // 15s
		30.0,   // 30s
		60.0,   // 1min
		180.0,  // 3min
		600.0,  // 10min
		1800.0, // 30min
	}

	// batchLatencyBuckets covers single batch submissions including retries.
	batchLatencyBuckets := []float64{
		0.1,   // 100ms
		0.5,   // 500ms
		1.0,   // 1s
		2.5,   // 2.5s
		5.0,   // 5s
		10.0,  // 10s
		30.0,  // 30s
		60.0,  // 1min
		120.0, // 2min
	}

	jobDuration, err := meter.Float64Histogram(
		JobDurationHistogramName,
		metric.WithDescription("Duration of end-to-end job processing in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobLatencyBuckets...),
	)
	if err != nil {
		return nil, err
	}

	batchDuration, err := meter.Float64Histogram(
		BatchDurationHistogramName,
		metric.WithDescription("Duration of batch submission including retries in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(batchLatencyBuckets...),
	)
	if err != nil {
		return nil, err
	}

	jobTotal, err := meter.Int64Counter(
		JobCounterName,
		metric.WithDescription("Total number of jobs processed by terminal status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	itemTotal, err := meter.Int64Counter(
		ItemCounterName,
		metric.WithDescription("Total number of items processed by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	deadLetterTotal, err := meter.Int64Counter(
		DeadLetterCounterName,
		metric.WithDescription("Total number of messages published to the dead-letter subject"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &JobMetrics{
		jobDuration:     jobDuration,
		batchDuration:   batchDuration,
		jobTotal:        jobTotal,
		itemTotal:       itemTotal,
		deadLetterTotal: deadLetterTotal,
		workerID:        workerID,
	}, nil
}

// RecordJob records a terminal job outcome with timing and item counts.
func (m *JobMetrics) RecordJob(
	ctx context.Context,
	duration time.Duration,
	tenantID, status string,
	successCount, failureCount int,
) {
	attributes := []attribute.KeyValue{
		attribute.String(AttrJobStatus, status),
		attribute.String(AttrTenantID, tenantID),
		attribute.String(AttrWorkerID, m.workerID),
	}

	m.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attributes...))
	m.jobTotal.Add(ctx, 1, metric.WithAttributes(attributes...))

	itemAttrs := []attribute.KeyValue{
		attribute.String(AttrTenantID, tenantID),
		attribute.String(AttrWorkerID, m.workerID),
	}
	if successCount > 0 {
		m.itemTotal.Add(ctx, int64(successCount), metric.WithAttributes(
			append(itemAttrs, attribute.String(AttrItemOutcome, "uploaded"))...,
		))
	}
	if failureCount > 0 {
		m.itemTotal.Add(ctx, int64(failureCount), metric.WithAttributes(
			append(itemAttrs, attribute.String(AttrItemOutcome, "failed"))...,
		))
	}
}

// RecordBatch records one batch reaching its terminal outcome.
func (m *JobMetrics) RecordBatch(ctx context.Context, duration time.Duration, tenantID string, batchNo int) {
	attributes := []attribute.KeyValue{
		attribute.String(AttrTenantID, tenantID),
		attribute.Int(AttrBatchNo, batchNo),
		attribute.String(AttrWorkerID, m.workerID),
	}

	m.batchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attributes...))
}

// RecordDeadLetter records a message published to the dead-letter subject.
func (m *JobMetrics) RecordDeadLetter(ctx context.Context, tenantID, failureType string) {
	attributes := []attribute.KeyValue{
		attribute.String(AttrTenantID, tenantID),
		attribute.String(AttrFailureType, failureType),
		attribute.String(AttrWorkerID, m.workerID),
	}

	m.deadLetterTotal.Add(ctx, 1, metric.WithAttributes(attributes...))
}
