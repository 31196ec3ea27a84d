package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/19karthik/document-migration/internal/application/common/slogger"
	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/domain/messaging"
	"github.com/19karthik/document-migration/internal/port/outbound"
)

// JobControllerConfig carries the per-process settings of the controller.
type JobControllerConfig struct {
	ScratchDir       string
	ArtifactBucket   string
	PresignExpiry    time.Duration
	BatchConcurrency int
	AsyncMode        bool
	CallbackBaseURL  string
	WorkerID         string
}

// JobController drives one job message through the full pipeline: fetch,
// extract, plan, submit with retries, aggregate failures and persist the
// terminal status. All per-job state lives on the stack of ProcessJob, so
// concurrent and consecutive jobs never share accumulators.
type JobController struct {
	jobs      outbound.JobRepository
	batches   outbound.BatchRepository
	store     outbound.ObjectStore
	client    outbound.UploadClient
	extractor *ArchiveExtractor
	planner   *BatchPlanner
	engine    *RetryEngine
	metrics   *JobMetrics
	cfg       JobControllerConfig
}

// NewJobController wires the pipeline components into a controller.
func NewJobController(
	jobs outbound.JobRepository,
	batches outbound.BatchRepository,
	store outbound.ObjectStore,
	client outbound.UploadClient,
	extractor *ArchiveExtractor,
	planner *BatchPlanner,
	engine *RetryEngine,
	metrics *JobMetrics,
	cfg JobControllerConfig,
) *JobController {
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}
	return &JobController{
		jobs:      jobs,
		batches:   batches,
		store:     store,
		client:    client,
		extractor: extractor,
		planner:   planner,
		engine:    engine,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// ProcessJob handles one job message end to end. A nil return means the
// message may be acknowledged. A non-nil return means the work did not reach
// a terminal state and the message should be redelivered.
func (c *JobController) ProcessJob(ctx context.Context, msg messaging.MigrationJobMessage, deliveryCount int) error {
	started := time.Now()
	tenantID := msg.Tenant()

	stored, err := c.jobs.FindByID(ctx, msg.ObjectID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", msg.ObjectID, err)
	}
	if stored != nil && stored.IsTerminal() {
		slogger.Info(ctx, "job already terminal, acknowledging redelivery", slogger.Fields3(
			"job_id", msg.ObjectID, "status", stored.Status().String(), "delivery_count", deliveryCount))
		return nil
	}

	job := stored
	if job == nil {
		job = entity.NewJob(msg.ObjectID, tenantID, msg.S3Bucket, msg.S3Key, msg.FileName(), msg.FileType, msg.MessageID)
	}
	if err := job.Start(); err != nil {
		return fmt.Errorf("start job %s: %w", job.ID(), err)
	}
	if err := c.jobs.Upsert(ctx, job); err != nil {
		return fmt.Errorf("record job start %s: %w", job.ID(), err)
	}

	scratch, err := os.MkdirTemp(c.cfg.ScratchDir, "job-"+job.ID()+"-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	// In async mode the extracted files must outlive this call: the
	// callback server resubmits them from shared scratch storage.
	keepScratch := false
	defer func() {
		if keepScratch {
			return
		}
		if err := os.RemoveAll(scratch); err != nil {
			slogger.Warn(ctx, "failed to remove scratch dir",
				slogger.Fields2("scratch", scratch, "error", err.Error()))
		}
	}()

	bundlePath := filepath.Join(scratch, job.FileName())
	if err := c.store.Download(ctx, msg.S3Bucket, msg.S3Key, bundlePath); err != nil {
		return fmt.Errorf("download bundle %s/%s: %w", msg.S3Bucket, msg.S3Key, err)
	}

	items, err := c.extractor.Extract(ctx, bundlePath, filepath.Join(scratch, "extracted"), msg.Password())
	if err != nil {
		// Corrupt or unreadable bundles never recover on redelivery.
		return c.failJob(ctx, job, 0, 0, "", fmt.Sprintf("extract bundle: %v", err), started)
	}

	plan, err := c.planner.Plan(items)
	if err != nil {
		return c.failJob(ctx, job, 0, 0, "", fmt.Sprintf("plan batches: %v", err), started)
	}

	slogger.Info(ctx, "job planned", slogger.Fields{
		"job_id":    job.ID(),
		"tenant_id": tenantID,
		"items":     len(items),
		"batches":   len(plan),
	})

	if c.cfg.AsyncMode {
		if err := c.submitAsync(ctx, job, plan); err != nil {
			return err
		}
		keepScratch = true
		return nil
	}

	aggregator := NewErrorAggregator(c.store, c.cfg.ArtifactBucket, c.cfg.PresignExpiry)
	successCount := c.runBatches(ctx, job, plan, aggregator)
	failureCount := aggregator.Count()

	if failureCount == 0 {
		if err := job.Complete(successCount, 0); err != nil {
			return fmt.Errorf("complete job %s: %w", job.ID(), err)
		}
		if err := c.jobs.Upsert(ctx, job); err != nil {
			return fmt.Errorf("record job completion %s: %w", job.ID(), err)
		}
		c.metrics.RecordJob(ctx, time.Since(started), tenantID, job.Status().String(), successCount, 0)
		slogger.Info(ctx, "job completed", slogger.Fields2("job_id", job.ID(), "items", successCount))
		return nil
	}

	artifact, err := aggregator.Publish(ctx, tenantID, job.FileName(), scratch)
	if err != nil {
		// The job outcome stands even when the artifact could not be
		// published; operators still get counts and logs.
		slogger.ErrorWithError(ctx, err, "failed to publish error artifact",
			slogger.Field("job_id", job.ID()))
	}
	if artifact.DownloadURL != "" {
		slogger.Info(ctx, "error artifact published", slogger.Fields3(
			"job_id", job.ID(), "manifest_key", artifact.ManifestKey, "download_url", artifact.DownloadURL))
	}
	return c.failJob(ctx, job, successCount, failureCount, artifact.ManifestKey, "", started)
}

// runBatches drives every batch to a terminal outcome, optionally in
// parallel, and returns the total accepted item count. Batch outcomes are
// folded into the aggregator under a lock; the engine itself shares nothing.
func (c *JobController) runBatches(ctx context.Context, job *entity.Job, plan []Batch, aggregator *ErrorAggregator) int {
	var mu sync.Mutex
	successCount := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.BatchConcurrency)

	for _, batch := range plan {
		batch := batch
		g.Go(func() error {
			batchStart := time.Now()
			outcome := c.engine.Run(gctx, batch, outbound.SubmissionMeta{
				JobID:    job.ID(),
				TenantID: job.TenantID(),
				BatchNo:  batch.Number,
			})
			c.metrics.RecordBatch(gctx, time.Since(batchStart), job.TenantID(), batch.Number)

			mu.Lock()
			successCount += len(outcome.Succeeded)
			aggregator.Record(outcome.Failed)
			mu.Unlock()
			return nil
		})
	}
	// Workers only return nil; the group is used for bounded parallelism.
	_ = g.Wait()

	return successCount
}

// submitAsync hands every batch to the ingestion endpoint with a callback
// URL and persists a batch record so the callback server can resubmit or
// archive it. The job stays in processing until callbacks resolve it.
func (c *JobController) submitAsync(ctx context.Context, job *entity.Job, plan []Batch) error {
	for _, batch := range plan {
		record := &entity.BatchRecord{
			JobID:    job.ID(),
			TenantID: job.TenantID(),
			BatchNo:  batch.Number,
			Files:    itemPaths(batch.Items),
		}
		if err := c.batches.Save(ctx, record); err != nil {
			return fmt.Errorf("save batch record %d: %w", batch.Number, err)
		}

		callbackURL := fmt.Sprintf("%s/callback/%s/%d/0", c.cfg.CallbackBaseURL, job.TenantID(), batch.Number)
		meta := outbound.SubmissionMeta{JobID: job.ID(), TenantID: job.TenantID(), BatchNo: batch.Number, Attempt: 1}
		if err := c.client.SubmitAsync(ctx, batch.Items, meta, callbackURL); err != nil {
			return fmt.Errorf("submit batch %d async: %w", batch.Number, err)
		}
	}
	slogger.Info(ctx, "job batches submitted asynchronously",
		slogger.Fields2("job_id", job.ID(), "batches", len(plan)))
	return nil
}

// failJob records a terminal failure and acknowledges the message. Only a
// failed status write keeps the message in flight.
func (c *JobController) failJob(
	ctx context.Context,
	job *entity.Job,
	successCount, failureCount int,
	artifactKey, errorMessage string,
	started time.Time,
) error {
	if err := job.Fail(successCount, failureCount, artifactKey, errorMessage); err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID(), err)
	}
	if err := c.jobs.Upsert(ctx, job); err != nil {
		return fmt.Errorf("record job failure %s: %w", job.ID(), err)
	}
	c.metrics.RecordJob(ctx, time.Since(started), job.TenantID(), job.Status().String(), successCount, failureCount)
	slogger.Warn(ctx, "job failed", slogger.Fields{
		"job_id":        job.ID(),
		"success_count": successCount,
		"failure_count": failureCount,
		"error":         errorMessage,
	})
	return nil
}

func itemPaths(items []entity.Item) []string {
	paths := make([]string, len(items))
	for i, item := range items {
		paths[i] = item.Path
	}
	return paths
}
