package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEndOfSequence is returned by Next/Prev when there is no element in
	// the requested direction. It is an expected, caller-checkable condition.
	ErrEndOfSequence = errors.New("end of sequence")

	// ErrUnsupported is returned by operations that are intentionally not
	// implemented, such as positional removal on a result set.
	ErrUnsupported = errors.New("unsupported operation")

	// Reasons carried by a UsageError.
	ErrClosed        = errors.New("cursor is closed")
	ErrNotPositioned = errors.New("result set has not been positioned")
	ErrInvalidated   = errors.New("cursor position was invalidated by a removal")
	ErrNoKey         = errors.New("cursor is not on a key")
)

// UsageError reports a programming error: an operation invoked on a closed
// cursor, a read of the current element before positioning, or relative
// motion after the position was invalidated. It is never retried.
type UsageError struct {
	Op  string // e.g. "Next", "Current", "GoTo"
	Err error  // one of ErrClosed, ErrNotPositioned, ErrInvalidated, ErrNoKey
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage error in %s: %v", e.Op, e.Err)
}

func (e *UsageError) Unwrap() error { return e.Err }

// StoreError wraps a failure surfaced by the underlying store during a
// positioning, navigation or mutation call.
type StoreError struct {
	Op    string
	Index string
	Err   error
}

func (e *StoreError) Error() string {
	if e.Index == "" {
		return fmt.Sprintf("store failure in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store failure in %s on index %q: %v", e.Op, e.Index, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewUsageError builds a UsageError for op.
func NewUsageError(op string, reason error) error {
	return &UsageError{Op: op, Err: reason}
}

// EndOfSequence wraps ErrEndOfSequence with the name of the operation.
func EndOfSequence(op string) error {
	return fmt.Errorf("%s: %w", op, ErrEndOfSequence)
}

// IsUsageError checks if an error is a UsageError.
func IsUsageError(err error) bool {
	var usageError *UsageError
	return errors.As(err, &usageError)
}

// IsStoreError checks if an error (or any error in its chain) is a StoreError.
func IsStoreError(err error) bool {
	var storeError *StoreError
	return errors.As(err, &storeError)
}

// IsEndOfSequence reports whether err signals the end of a sequence.
func IsEndOfSequence(err error) bool {
	return errors.Is(err, ErrEndOfSequence)
}
