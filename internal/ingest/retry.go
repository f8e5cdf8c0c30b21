package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/iot-monitoring/ingestor/internal/infrastructure/metrics"
	"github.com/iot-monitoring/ingestor/internal/store"
)

// Default write retry budget.
const (
	DefaultMaxWriteAttempts = 2
	DefaultRetryDelay       = time.Second
)

// RetryPolicy bounds how hard the loop tries to persist one reading.
type RetryPolicy struct {
	// MaxAttempts is the number of connectivity failures tolerated for one
	// reading before it is dropped.
	MaxAttempts int

	// Delay is the pause after a failed reconnect before writing again.
	Delay time.Duration
}

// DefaultRetryPolicy returns the policy used in production.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxWriteAttempts, Delay: DefaultRetryDelay}
}

// Outcome is the fate of one message.
type Outcome int

const (
	// OutcomeWritten means the reading is in the store.
	OutcomeWritten Outcome = iota + 1

	// OutcomeDecodeFailed means the payload was dropped before any write.
	OutcomeDecodeFailed

	// OutcomeRejected means the store refused the row; it was dropped
	// without reconnecting.
	OutcomeRejected

	// OutcomeExhausted means every attempt hit a connectivity failure.
	OutcomeExhausted

	// OutcomeCancelled means shutdown interrupted the write.
	OutcomeCancelled
)

// String returns a short name for logging.
func (o Outcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeDecodeFailed:
		return "decode_failed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Writer is the part of store.Manager the loop depends on.
type Writer interface {
	Write(ctx context.Context, r store.Reading) error
	Reconnect(ctx context.Context) error
}

// writeWithRetry applies the retry policy to one reading.
//
// A connectivity failure counts against the budget. While budget remains
// the store is reconnected; after a successful reconnect the write is
// repeated at once, after a failed one it is repeated after the policy
// delay. A schema failure drops the reading immediately.
func (l *Loop) writeWithRetry(ctx context.Context, r store.Reading) Outcome {
	maxAttempts := l.cfg.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	failures := 0
	for {
		start := time.Now()
		err := l.store.Write(ctx, r)
		elapsed := time.Since(start)

		if err == nil {
			l.metrics.WriteAttempt("ok", elapsed)
			l.metrics.ReadingWritten()
			l.logger.Info("reading stored",
				"device_id", r.DeviceID,
				"fields", len(r.Fields),
			)
			return OutcomeWritten
		}

		if ctx.Err() != nil {
			l.metrics.ReadingDropped(metrics.DropShutdown)
			l.logger.Warn("reading abandoned on shutdown",
				"device_id", r.DeviceID,
				"error", err,
			)
			return OutcomeCancelled
		}

		if !errors.Is(err, store.ErrConnectivity) {
			l.metrics.WriteAttempt("schema", elapsed)
			l.metrics.ReadingDropped(metrics.DropSchema)
			l.logger.Error("reading dropped: rejected by store",
				"device_id", r.DeviceID,
				"fields", r.FieldNames(),
				"error", err,
			)
			return OutcomeRejected
		}

		l.metrics.WriteAttempt("connectivity", elapsed)
		failures++
		l.logger.Warn("store write failed",
			"device_id", r.DeviceID,
			"attempt", failures,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if failures >= maxAttempts {
			l.metrics.ReadingDropped(metrics.DropExhausted)
			l.logger.Error("reading dropped: write attempts exhausted",
				"device_id", r.DeviceID,
				"attempts", failures,
				"error", err,
			)
			return OutcomeExhausted
		}

		l.logger.Info("reconnecting to store", "device_id", r.DeviceID)
		if rerr := l.store.Reconnect(ctx); rerr != nil {
			l.metrics.Reconnect(false)
			l.logger.Warn("store reconnect failed",
				"device_id", r.DeviceID,
				"retry_in", l.cfg.Retry.Delay,
				"error", rerr,
			)
			if serr := l.sleep(ctx, l.cfg.Retry.Delay); serr != nil {
				l.metrics.ReadingDropped(metrics.DropShutdown)
				l.logger.Warn("reading abandoned on shutdown", "device_id", r.DeviceID)
				return OutcomeCancelled
			}
			continue
		}
		l.metrics.Reconnect(true)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
