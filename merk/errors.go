package merk

import "errors"

var (
	// ErrKeyNotFound is returned by Get when a key is absent from the tree.
	ErrKeyNotFound = errors.New("merk: key not found")
	// ErrDuplicateKey is returned by Apply when a batch contains the same
	// key twice (spec.md 4.3: "duplicate keys within one batch are
	// rejected").
	ErrDuplicateKey = errors.New("merk: duplicate key in batch")
	// ErrInvalidBatchOperation covers consistency failures detected before
	// any mutation is applied.
	ErrInvalidBatchOperation = errors.New("merk: invalid batch operation")
	// ErrCyclicCostFeedback is returned when the value-mutation-on-cost
	// fixed-point loop (spec.md 4.3 step 6) exceeds its iteration bound.
	ErrCyclicCostFeedback = errors.New("merk: cost-feedback loop did not converge")
	// ErrNotSumCapable is returned when a SumItem is inserted under a
	// non-sum-capable tree type.
	ErrNotSumCapable = errors.New("merk: parent tree is not sum-capable")
)
