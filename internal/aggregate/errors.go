package aggregate

import "errors"

var (
	// ErrVersionConflict is returned by a Store when the stored version differs from the one read.
	ErrVersionConflict = errors.New("aggregate version conflict")

	// ErrSustainedConflict is returned when an update keeps losing races past its attempt limit.
	ErrSustainedConflict = errors.New("aggregate update kept conflicting")

	// ErrInvalidAggregate marks a computed view that violates the best-order invariants.
	ErrInvalidAggregate = errors.New("invalid aggregate")

	// ErrNoSource is returned when no order source serves an aggregate's chain.
	ErrNoSource = errors.New("no order source for chain")
)
