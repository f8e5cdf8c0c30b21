package store

import (
	"errors"
	"fmt"
)

// Error classes returned by Manager and backends.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectivity means the store could not be reached or the
	// connection broke. Reconnecting may succeed.
	ErrConnectivity = errors.New("store: connectivity failure")

	// ErrSchema means the store rejected the row itself (unknown column,
	// type mismatch, constraint). Retrying the same row will not help.
	ErrSchema = errors.New("store: schema or data rejected")

	// ErrStartupFatal means the store could not be made ready at startup.
	// The process is expected to exit.
	ErrStartupFatal = errors.New("store: startup failed")

	// ErrNotReady is returned by Write when no Ready connection exists.
	// It is connectivity-class.
	ErrNotReady = fmt.Errorf("%w: no ready connection", ErrConnectivity)
)

// Connectivity wraps err as ErrConnectivity. Backends use it when
// translating driver errors.
func Connectivity(err error) error {
	if err == nil || errors.Is(err, ErrConnectivity) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnectivity, err)
}

// Schema wraps err as ErrSchema.
func Schema(err error) error {
	if err == nil || errors.Is(err, ErrSchema) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSchema, err)
}
