package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates input rejected before any write.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidState indicates an action not allowed by the current status.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrAlreadyProcessed marks a recoverable conflict where the work was already done
	// (already returned, already completed, already received).
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrInsufficientStock is matched by every stock floor rejection.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrRetryable marks lock contention or serialization failures the caller may retry.
	ErrRetryable = errors.New("temporary conflict, retry")
)
