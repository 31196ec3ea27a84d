package worker

import (
	"errors"

	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/domain/valueobject"
)

// Batch is an ordered group of items submitted to the ingestion endpoint as
// one request.
type Batch struct {
	// Number is the 1-based batch position within the job's plan.
	Number int
	Items  []entity.Item
}

// TotalSize returns the cumulative item size of the batch.
func (b Batch) TotalSize() int64 {
	var total int64
	for _, item := range b.Items {
		total += item.Size
	}
	return total
}

// BatchPlanner partitions a job's item list into batches according to a
// policy. Planning preserves item order and assigns every item to exactly
// one batch.
type BatchPlanner struct {
	policy valueobject.BatchPolicy
}

// NewBatchPlanner creates a planner with the given policy.
func NewBatchPlanner(policy valueobject.BatchPolicy) *BatchPlanner {
	return &BatchPlanner{policy: policy}
}

// Plan partitions items into batches. An empty item list yields an empty
// plan. Under the size policy an item larger than the threshold forms a
// batch of its own rather than being dropped.
func (p *BatchPlanner) Plan(items []entity.Item) ([]Batch, error) {
	if len(items) == 0 {
		return nil, nil
	}
	switch p.policy.Kind {
	case valueobject.BatchPolicyCount:
		return p.planByCount(items), nil
	case valueobject.BatchPolicySize:
		return p.planBySize(items), nil
	default:
		return nil, errors.New("unknown batch policy kind")
	}
}

func (p *BatchPlanner) planByCount(items []entity.Item) []Batch {
	batches := make([]Batch, 0, (len(items)+p.policy.MaxCount-1)/p.policy.MaxCount)
	for start := 0; start < len(items); start += p.policy.MaxCount {
		end := start + p.policy.MaxCount
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, Batch{
			Number: len(batches) + 1,
			Items:  items[start:end],
		})
	}
	return batches
}

// planBySize closes the current batch when adding the next item would cross
// the byte threshold. A batch is never left empty, so an oversized item
// still ships alone.
func (p *BatchPlanner) planBySize(items []entity.Item) []Batch {
	var batches []Batch
	var current []entity.Item
	var currentBytes int64

	for _, item := range items {
		if len(current) > 0 && currentBytes+item.Size > p.policy.MaxBytes {
			batches = append(batches, Batch{Number: len(batches) + 1, Items: current})
			current = nil
			currentBytes = 0
		}
		current = append(current, item)
		currentBytes += item.Size
	}
	if len(current) > 0 {
		batches = append(batches, Batch{Number: len(batches) + 1, Items: current})
	}
	return batches
}
