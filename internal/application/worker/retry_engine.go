package worker

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/19karthik/document-migration/internal/application/common/slogger"
	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/domain/valueobject"
	"github.com/19karthik/document-migration/internal/port/outbound"
)

// RetryPolicy controls how many submission attempts a batch gets and how
// long the engine waits between them.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultRetryPolicy returns the policy used when configuration is silent.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// FailedItem pairs an item with its terminal failure reason.
type FailedItem struct {
	Item   entity.Item
	Reason string
}

// BatchOutcome is the terminal result of driving one batch through the retry
// engine. Every item of the input batch appears in exactly one of the two
// lists.
type BatchOutcome struct {
	Succeeded []entity.Item
	Failed    []FailedItem
}

// RetryEngine resubmits the shrinking remainder of a batch until every item
// is accepted or attempts are exhausted. Accepted items never reappear in a
// later attempt.
type RetryEngine struct {
	client outbound.UploadClient
	policy RetryPolicy
}

// NewRetryEngine creates a RetryEngine around an upload client.
func NewRetryEngine(client outbound.UploadClient, policy RetryPolicy) *RetryEngine {
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = 2.0
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = time.Second
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	return &RetryEngine{client: client, policy: policy}
}

// Run drives one batch to a terminal outcome. On a transport failure the
// whole remainder is retried; on a partial rejection only the rejected items
// are retried, carrying their latest rejection reason. Context cancellation
// aborts between attempts and fails the remainder.
func (r *RetryEngine) Run(ctx context.Context, batch Batch, meta outbound.SubmissionMeta) BatchOutcome {
	remaining := make([]entity.Item, len(batch.Items))
	copy(remaining, batch.Items)

	var outcome BatchOutcome
	reasons := make(map[string]string, len(remaining))
	transportAttempts := 0

	for attempt := 1; attempt <= r.policy.MaxRetries && len(remaining) > 0; attempt++ {
		meta.Attempt = attempt
		result, err := r.client.Submit(ctx, remaining, meta)
		if err != nil {
			transportAttempts++
			slogger.Warn(ctx, "batch submission failed in transport", slogger.Fields{
				"job_id":   meta.JobID,
				"batch_no": meta.BatchNo,
				"attempt":  attempt,
				"items":    len(remaining),
				"error":    err.Error(),
			})
			if attempt < r.policy.MaxRetries && !r.sleepBackoff(ctx, attempt) {
				break
			}
			continue
		}

		remaining = r.applyResult(remaining, result, reasons, &outcome)
		if len(remaining) == 0 {
			break
		}
		slogger.Info(ctx, "batch partially rejected, retrying remainder", slogger.Fields{
			"job_id":   meta.JobID,
			"batch_no": meta.BatchNo,
			"attempt":  attempt,
			"rejected": len(remaining),
		})
		if attempt < r.policy.MaxRetries && !r.sleepBackoff(ctx, attempt) {
			break
		}
	}

	for _, item := range remaining {
		reason, ok := reasons[item.Name]
		if !ok {
			reason = fmt.Sprintf("transport failure after %d attempts", transportAttempts)
		}
		item.Status = valueobject.ItemStatusFailed
		item.LastError = reason
		outcome.Failed = append(outcome.Failed, FailedItem{Item: item, Reason: reason})
	}
	return outcome
}

// applyResult moves accepted items into the outcome and returns the rejected
// remainder in original order. Items the endpoint failed to mention at all
// are treated as rejected with an explicit reason.
func (r *RetryEngine) applyResult(
	remaining []entity.Item,
	result outbound.BatchResult,
	reasons map[string]string,
	outcome *BatchOutcome,
) []entity.Item {
	accepted := make(map[string]bool, len(result.Accepted))
	for _, name := range result.Accepted {
		accepted[name] = true
	}
	rejected := make(map[string]string, len(result.Rejected))
	for _, rej := range result.Rejected {
		rejected[rej.Item] = rej.Reason
	}

	var next []entity.Item
	for _, item := range remaining {
		reason, wasRejected := rejected[item.Name]
		switch {
		case accepted[item.Name]:
			item.Status = valueobject.ItemStatusUploaded
			item.LastError = ""
			outcome.Succeeded = append(outcome.Succeeded, item)
		case wasRejected:
			if reason == "" {
				reason = "rejected without reason"
			}
			reasons[item.Name] = reason
			item.LastError = reason
			next = append(next, item)
		default:
			reasons[item.Name] = "item missing from endpoint response"
			next = append(next, item)
		}
	}
	return next
}

// sleepBackoff waits the backoff delay for the given attempt. It returns
// false when the context was cancelled during the wait.
func (r *RetryEngine) sleepBackoff(ctx context.Context, attempt int) bool {
	delay := r.calculateDelay(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// calculateDelay computes exponential backoff with optional jitter.
func (r *RetryEngine) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialBackoff)
	for i := 1; i < attempt; i++ {
		delay *= r.policy.BackoffFactor
		if delay >= float64(r.policy.MaxBackoff) {
			delay = float64(r.policy.MaxBackoff)
			break
		}
	}
	if r.policy.Jitter {
		// up to 25% randomization to avoid thundering-herd resubmission
		jitter := delay * 0.25 * rand.Float64() //nolint:gosec // timing jitter, not security sensitive
		delay += jitter
		if delay > float64(r.policy.MaxBackoff) {
			delay = float64(r.policy.MaxBackoff)
		}
	}
	return time.Duration(delay)
}
