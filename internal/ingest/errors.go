package ingest

import (
	"errors"
	"fmt"
)

// ErrDecode is the class of every payload decoding failure.
// Use errors.Is(err, ErrDecode) to check.
var ErrDecode = errors.New("ingest: cannot decode payload")

// DecodeError describes why one message could not be turned into a reading.
type DecodeError struct {
	Topic  string
	Reason string
	Err    error
}

// Error implements error.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding message on %q: %s: %v", e.Topic, e.Reason, e.Err)
	}
	return fmt.Sprintf("decoding message on %q: %s", e.Topic, e.Reason)
}

// Is reports true for ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Unwrap returns the underlying parser error, if any.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
