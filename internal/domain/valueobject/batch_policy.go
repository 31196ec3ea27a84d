package valueobject

import (
	"errors"
	"fmt"
)

// BatchPolicyKind selects how extracted items are partitioned into batches.
type BatchPolicyKind string

const (
	// BatchPolicyCount slices the item list into fixed-size batches.
	BatchPolicyCount BatchPolicyKind = "count"
	// BatchPolicySize packs items greedily until a byte threshold is reached.
	BatchPolicySize BatchPolicyKind = "size"
)

// BatchPolicy describes the partitioning rule the planner applies to the
// ordered item list of one job.
type BatchPolicy struct {
	Kind BatchPolicyKind
	// MaxCount is the batch length for the count policy.
	MaxCount int
	// MaxBytes is the cumulative size threshold for the size policy.
	MaxBytes int64
}

// CountPolicy returns a count-based policy with validation.
func CountPolicy(maxCount int) (BatchPolicy, error) {
	if maxCount <= 0 {
		return BatchPolicy{}, errors.New("batch count must be positive")
	}
	return BatchPolicy{Kind: BatchPolicyCount, MaxCount: maxCount}, nil
}

// SizePolicy returns a size-based policy with validation.
func SizePolicy(maxBytes int64) (BatchPolicy, error) {
	if maxBytes <= 0 {
		return BatchPolicy{}, errors.New("batch byte threshold must be positive")
	}
	return BatchPolicy{Kind: BatchPolicySize, MaxBytes: maxBytes}, nil
}

// NewBatchPolicy builds a policy from configuration values.
func NewBatchPolicy(kind string, maxCount int, maxBytes int64) (BatchPolicy, error) {
	switch BatchPolicyKind(kind) {
	case BatchPolicyCount:
		return CountPolicy(maxCount)
	case BatchPolicySize:
		return SizePolicy(maxBytes)
	default:
		return BatchPolicy{}, fmt.Errorf("invalid batch policy kind: %s", kind)
	}
}
