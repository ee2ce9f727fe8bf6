package domain

import (
	"errors"
	"fmt"
)

// MissingFieldError reports a required payload field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing '%s' field", e.Field)
}

// WrongTypeError reports a payload field of the wrong JSON type.
type WrongTypeError struct {
	Field string
	Want  string
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("field '%s' must be %s", e.Field, e.Want)
}

// LengthMismatchError reports a temperature vector whose length does not
// match the deployment's fixed node count. Vectors are never truncated or
// padded to fit.
type LengthMismatchError struct {
	Expected int
	Actual   int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("invalid array size: expected %d values, got %d", e.Expected, e.Actual)
}

// IsValidation reports whether err is any of the validation error kinds.
// Validation failures are never retried and always surface as client errors.
func IsValidation(err error) bool {
	var mf *MissingFieldError
	var wt *WrongTypeError
	var lm *LengthMismatchError
	return errors.As(err, &mf) || errors.As(err, &wt) || errors.As(err, &lm)
}

// ForwardError reports a failed forward to the ingestion service. The
// aggregated sample in flight is dropped; there is no retry.
type ForwardError struct {
	Status int
	Err    error
}

func (e *ForwardError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("forward failed: %v", e.Err)
	}
	return fmt.Sprintf("forward failed: ingestion returned status %d", e.Status)
}

func (e *ForwardError) Unwrap() error { return e.Err }

// PersistenceError reports a storage-layer failure. It is fatal only during
// startup schema initialization; on requests it maps to a server error.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
