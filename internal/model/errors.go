package model

import (
	"errors"
	"fmt"
)

var (
	// ErrConfirmationDeclined signals the operator refused an irrevocable operation.
	// A confirmer may return it instead of (false, nil); the run still ends as declined.
	ErrConfirmationDeclined = errors.New("confirmation declined")
	// ErrConvergenceExceeded is returned when remediation hits its iteration cap.
	ErrConvergenceExceeded = errors.New("remediation did not converge within iteration cap")
	// ErrNotFound is returned when a single-record operation matched nothing.
	ErrNotFound = errors.New("record not found")
)

// TransientFetchError wraps an I/O failure against a store or feed.
// Callers own the retry policy.
type TransientFetchError struct {
	Op  string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientFetchError. A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientFetchError{Op: op, Err: err}
}

// IsTransient reports whether err carries a TransientFetchError.
func IsTransient(err error) bool {
	var target *TransientFetchError
	return errors.As(err, &target)
}

// ValidationError describes malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// BatchOperationError reports a failed batch delete during remediation.
// Deletions applied by earlier iterations are not rolled back.
type BatchOperationError struct {
	Iteration int
	IDs       []int64
	Err       error
}

func (e *BatchOperationError) Error() string {
	return fmt.Sprintf("batch delete of %d ids failed at iteration %d: %v", len(e.IDs), e.Iteration, e.Err)
}

func (e *BatchOperationError) Unwrap() error { return e.Err }
