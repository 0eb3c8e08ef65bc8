// Package errors provides structured error types shared across focusbot.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout      = errors.New("operation timed out")
	ErrNotFound     = errors.New("resource not found")
	ErrBusy         = errors.New("database is busy")
	ErrUnavailable  = errors.New("service unavailable")
	ErrInvalidInput = errors.New("invalid input")
	ErrMissingUser  = errors.New("user id is required")
)

// StoreError represents a failure from the persistence layer.
// Transient failures are retried by the resilience wrapper; permanent
// ones surface to the caller immediately.
type StoreError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err as a store failure for the named operation.
func NewStoreError(op string, transient bool, err error) *StoreError {
	return &StoreError{Op: op, Transient: transient, Err: err}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Transient
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrBusy) || errors.Is(err, ErrUnavailable)
}
