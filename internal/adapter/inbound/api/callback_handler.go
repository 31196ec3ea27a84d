// Package api implements the callback HTTP server for asynchronous batch
// submissions. The ingestion endpoint calls back with a per-batch outcome;
// this server resubmits failed batches up to a retry cap and resolves the
// owning job when its last batch settles.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/19karthik/document-migration/internal/application/common/slogger"
	"github.com/19karthik/document-migration/internal/application/worker"
	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/domain/valueobject"
	"github.com/19karthik/document-migration/internal/port/outbound"
)

// CallbackHandler serves the batch callback endpoint.
type CallbackHandler struct {
	jobs            outbound.JobRepository
	batches         outbound.BatchRepository
	client          outbound.UploadClient
	store           outbound.ObjectStore
	artifactBucket  string
	callbackBaseURL string
	maxRetries      int
}

// NewCallbackHandler creates a handler over the persistence, storage and
// upload ports.
func NewCallbackHandler(
	jobs outbound.JobRepository,
	batches outbound.BatchRepository,
	client outbound.UploadClient,
	store outbound.ObjectStore,
	artifactBucket string,
	callbackBaseURL string,
	maxRetries int,
) *CallbackHandler {
	if maxRetries < 1 {
		maxRetries = 5
	}
	return &CallbackHandler{
		jobs:            jobs,
		batches:         batches,
		client:          client,
		store:           store,
		artifactBucket:  artifactBucket,
		callbackBaseURL: callbackBaseURL,
		maxRetries:      maxRetries,
	}
}

// Router builds the chi router for the callback server.
func (h *CallbackHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.handleHealth)
	r.MethodFunc(http.MethodGet, "/callback/{tenantID}/{batchNo}/{retryCount}", h.handleCallback)
	r.MethodFunc(http.MethodPost, "/callback/{tenantID}/{batchNo}/{retryCount}", h.handleCallback)
	return r
}

func (h *CallbackHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// callbackResponse is the body returned to the ingestion endpoint.
type callbackResponse struct {
	Status         string `json:"status"`
	NextRetry      int    `json:"nextRetry,omitempty"`
	FilesProcessed int    `json:"filesProcessed,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (h *CallbackHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantID")
	batchNo, err := strconv.Atoi(chi.URLParam(r, "batchNo"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, callbackResponse{Status: "failed", Error: "invalid batch number"})
		return
	}
	retryCount, err := strconv.Atoi(chi.URLParam(r, "retryCount"))
	if err != nil || retryCount < 0 {
		writeJSON(w, http.StatusBadRequest, callbackResponse{Status: "failed", Error: "invalid retry count"})
		return
	}

	record, err := h.batches.Find(ctx, tenantID, batchNo)
	if err != nil {
		slogger.ErrorWithError(ctx, err, "failed to load batch record",
			slogger.Fields2("tenant_id", tenantID, "batch_no", batchNo))
		writeJSON(w, http.StatusInternalServerError, callbackResponse{Status: "failed", Error: "batch lookup failed"})
		return
	}
	if record == nil {
		writeJSON(w, http.StatusNotFound, callbackResponse{Status: "failed", Error: "unknown batch"})
		return
	}

	switch r.URL.Query().Get("status") {
	case "success":
		h.resolveSuccess(ctx, w, record)
	case "failed":
		h.resolveFailure(ctx, w, record, retryCount)
	default:
		writeJSON(w, http.StatusBadRequest, callbackResponse{Status: "failed", Error: "status must be success or failed"})
	}
}

// resolveSuccess books the batch's items as uploaded and removes the record.
func (h *CallbackHandler) resolveSuccess(ctx context.Context, w http.ResponseWriter, record *entity.BatchRecord) {
	processed := len(record.Files)
	h.recordOutcome(ctx, record, processed, 0, "")
	h.cleanupFiles(ctx, record)

	slogger.Info(ctx, "batch resolved successfully", slogger.Fields3(
		"tenant_id", record.TenantID, "batch_no", record.BatchNo, "files", processed))
	writeJSON(w, http.StatusOK, callbackResponse{Status: "success", FilesProcessed: processed})
}

// resolveFailure resubmits the batch below the retry cap and archives it at
// the cap.
func (h *CallbackHandler) resolveFailure(
	ctx context.Context,
	w http.ResponseWriter,
	record *entity.BatchRecord,
	retryCount int,
) {
	if retryCount < h.maxRetries {
		nextRetry, err := h.batches.IncrementRetry(ctx, record.TenantID, record.BatchNo)
		if err != nil {
			slogger.ErrorWithError(ctx, err, "failed to bump batch retry count",
				slogger.Fields2("tenant_id", record.TenantID, "batch_no", record.BatchNo))
			writeJSON(w, http.StatusInternalServerError, callbackResponse{Status: "failed", Error: "retry bookkeeping failed"})
			return
		}

		callbackURL := fmt.Sprintf("%s/callback/%s/%d/%d", h.callbackBaseURL, record.TenantID, record.BatchNo, nextRetry)
		meta := outbound.SubmissionMeta{
			JobID:    record.JobID,
			TenantID: record.TenantID,
			BatchNo:  record.BatchNo,
			Attempt:  nextRetry,
		}
		if err := h.client.SubmitAsync(ctx, itemsFromPaths(record.Files), meta, callbackURL); err != nil {
			slogger.ErrorWithError(ctx, err, "batch resubmission failed",
				slogger.Fields2("tenant_id", record.TenantID, "batch_no", record.BatchNo))
			writeJSON(w, http.StatusBadGateway, callbackResponse{Status: "failed", Error: "resubmission failed"})
			return
		}

		slogger.Info(ctx, "batch resubmitted", slogger.Fields3(
			"tenant_id", record.TenantID, "batch_no", record.BatchNo, "next_retry", nextRetry))
		writeJSON(w, http.StatusOK, callbackResponse{Status: "retrying", NextRetry: nextRetry})
		return
	}

	// Retry cap reached: the batch fails terminally. The failed files are
	// archived as an error artifact before the scratch copies go away.
	failed := len(record.Files)
	artifactKey := h.publishBatchArtifact(ctx, record)
	h.recordOutcome(ctx, record, 0, failed, artifactKey)
	h.cleanupFiles(ctx, record)

	slogger.Warn(ctx, "batch archived after exhausting retries", slogger.Fields3(
		"tenant_id", record.TenantID, "batch_no", record.BatchNo, "files", failed))
	writeJSON(w, http.StatusOK, callbackResponse{Status: "failed", FilesProcessed: 0})
}

// publishBatchArtifact uploads a manifest and bundle of the batch's files so
// operators can retrieve what the endpoint never accepted. Publication is
// best effort; an empty key means nothing was archived.
func (h *CallbackHandler) publishBatchArtifact(ctx context.Context, record *entity.BatchRecord) string {
	if h.store == nil || len(record.Files) == 0 {
		return ""
	}

	sourceName := record.JobID
	if job, err := h.jobs.FindByID(ctx, record.JobID); err == nil && job != nil {
		sourceName = job.FileName()
	}

	items := itemsFromPaths(record.Files)
	failed := make([]worker.FailedItem, len(items))
	for i, item := range items {
		failed[i] = worker.FailedItem{Item: item, Reason: "batch exhausted callback retries"}
	}

	aggregator := worker.NewErrorAggregator(h.store, h.artifactBucket, 0)
	aggregator.Record(failed)
	artifact, err := aggregator.Publish(ctx, record.TenantID, sourceName, filepath.Dir(record.Files[0]))
	if err != nil {
		slogger.ErrorWithError(ctx, err, "failed to publish batch error artifact",
			slogger.Fields2("tenant_id", record.TenantID, "batch_no", record.BatchNo))
		return ""
	}
	if artifact.DownloadURL != "" {
		slogger.Info(ctx, "batch error artifact published", slogger.Fields3(
			"batch_no", record.BatchNo, "manifest_key", artifact.ManifestKey, "download_url", artifact.DownloadURL))
	}
	return artifact.ManifestKey
}

// recordOutcome folds a batch outcome into the owning job, deletes the batch
// record and finalizes the job when no batches remain. Bookkeeping errors
// are logged, never surfaced to the caller; the callback itself succeeded.
func (h *CallbackHandler) recordOutcome(ctx context.Context, record *entity.BatchRecord, success, failure int, artifactKey string) {
	job, err := h.jobs.FindByID(ctx, record.JobID)
	if err != nil || job == nil {
		slogger.Warn(ctx, "batch outcome recorded without job", slogger.Fields2(
			"job_id", record.JobID, "batch_no", record.BatchNo))
	} else if job.Status() == valueobject.JobStatusProcessing {
		if err := job.RecordProgress(success, failure); err == nil {
			if artifactKey != "" {
				_ = job.RecordErrorArtifact(artifactKey)
			}
			if err := h.jobs.Upsert(ctx, job); err != nil {
				slogger.ErrorWithError(ctx, err, "failed to persist job progress",
					slogger.Field("job_id", job.ID()))
			}
		}
	}

	if err := h.batches.Delete(ctx, record.TenantID, record.BatchNo); err != nil {
		slogger.ErrorWithError(ctx, err, "failed to delete batch record",
			slogger.Fields2("tenant_id", record.TenantID, "batch_no", record.BatchNo))
		return
	}

	remaining, err := h.batches.CountByJob(ctx, record.JobID)
	if err != nil {
		slogger.ErrorWithError(ctx, err, "failed to count remaining batches",
			slogger.Field("job_id", record.JobID))
		return
	}
	if remaining == 0 {
		h.finalizeJob(ctx, record.JobID)
	}
}

// finalizeJob moves a job to its terminal status once every batch resolved.
func (h *CallbackHandler) finalizeJob(ctx context.Context, jobID string) {
	job, err := h.jobs.FindByID(ctx, jobID)
	if err != nil || job == nil || job.IsTerminal() {
		return
	}

	if job.FailureCount() > 0 {
		err = job.Fail(job.SuccessCount(), job.FailureCount(), "", "one or more batches exhausted callback retries")
	} else {
		err = job.Complete(job.SuccessCount(), 0)
	}
	if err != nil {
		slogger.ErrorWithError(ctx, err, "failed to finalize job", slogger.Field("job_id", jobID))
		return
	}
	if err := h.jobs.Upsert(ctx, job); err != nil {
		slogger.ErrorWithError(ctx, err, "failed to persist final job status", slogger.Field("job_id", jobID))
		return
	}
	slogger.Info(ctx, "job finalized", slogger.Fields2("job_id", jobID, "status", job.Status().String()))
}

// cleanupFiles removes the batch's scratch files once the outcome is final.
func (h *CallbackHandler) cleanupFiles(ctx context.Context, record *entity.BatchRecord) {
	for _, path := range record.Files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slogger.Warn(ctx, "failed to remove resolved batch file",
				slogger.Fields2("path", path, "error", err.Error()))
		}
	}
}

// itemsFromPaths rebuilds items from stored scratch paths. The bundle-
// relative name is the part after the extraction directory.
func itemsFromPaths(paths []string) []entity.Item {
	items := make([]entity.Item, len(paths))
	for i, p := range paths {
		name := p
		if idx := strings.LastIndex(p, "/extracted/"); idx >= 0 {
			name = p[idx+len("/extracted/"):]
		}
		items[i] = entity.Item{Name: name, Path: p, Status: valueobject.ItemStatusPending}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
