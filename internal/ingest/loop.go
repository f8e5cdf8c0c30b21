package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/iot-monitoring/ingestor/internal/infrastructure/metrics"
	"github.com/iot-monitoring/ingestor/internal/infrastructure/mqtt"
)

// Subscriber issues the loop's single topic subscription.
// *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte) error
}

// Config holds loop settings.
type Config struct {
	// Topic is the wildcard filter subscribed on every connection.
	Topic string

	// QoS is the subscription QoS (0, 1 or 2).
	QoS byte

	// Retry bounds the per-reading write attempts.
	Retry RetryPolicy
}

// Logger defines the logging interface used by the loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Loop is the single consumer of transport events. It decodes each
// message and writes it through the store, one message at a time.
type Loop struct {
	store   Writer
	sub     Subscriber
	cfg     Config
	logger  Logger
	metrics *metrics.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLoop creates a Loop. A zero Retry policy is replaced by
// DefaultRetryPolicy.
func NewLoop(w Writer, sub Subscriber, cfg Config) *Loop {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Loop{
		store:  w,
		sub:    sub,
		cfg:    cfg,
		logger: noopLogger{},
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// SetLogger sets the logger for the loop.
func (l *Loop) SetLogger(logger Logger) {
	l.logger = logger
}

// SetMetrics attaches Prometheus collectors. Nil disables recording.
func (l *Loop) SetMetrics(m *metrics.Metrics) {
	l.metrics = m
}

// Run consumes events until ctx is cancelled or the channel is closed.
//
// EventConnected (re)issues the subscription. EventMessage is decoded and
// written, including any retries, before the next event is received.
// Per-message failures are logged and never end the loop.
//
// Returns:
//   - ctx.Err() on cancellation, nil when events is closed
func (l *Loop) Run(ctx context.Context, events <-chan mqtt.Event) error {
	l.logger.Info("ingestion loop started", "topic", l.cfg.Topic)
	defer l.logger.Info("ingestion loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			l.handleEvent(ctx, ev)
		}
	}
}

func (l *Loop) handleEvent(ctx context.Context, ev mqtt.Event) {
	switch ev.Kind {
	case mqtt.EventConnected:
		l.subscribe()
	case mqtt.EventMessage:
		l.HandleMessage(ctx, ev.Topic, ev.Payload)
	default:
		l.logger.Debug("ignoring transport event", "kind", ev.Kind.String())
	}
}

// subscribe issues the wildcard subscription. A failure is logged; the
// next EventConnected tries again.
func (l *Loop) subscribe() {
	l.metrics.MQTTConnected()

	if err := l.sub.Subscribe(l.cfg.Topic, l.cfg.QoS); err != nil {
		l.logger.Error("subscription failed",
			"topic", l.cfg.Topic,
			"error", err,
		)
		return
	}
	l.logger.Info("subscribed", "topic", l.cfg.Topic, "qos", l.cfg.QoS)
}

// HandleMessage decodes one message and writes it with the retry policy.
func (l *Loop) HandleMessage(ctx context.Context, topic string, payload []byte) Outcome {
	l.metrics.MessageReceived()

	reading, err := Decode(topic, payload, l.now())
	if err != nil {
		var decErr *DecodeError
		reason := err.Error()
		if errors.As(err, &decErr) {
			reason = decErr.Reason
		}
		l.metrics.ReadingDropped(metrics.DropDecode)
		l.logger.Warn("message dropped: cannot decode payload",
			"topic", topic,
			"reason", reason,
			"error", err,
		)
		return OutcomeDecodeFailed
	}

	l.logger.Debug("message decoded",
		"topic", topic,
		"device_id", reading.DeviceID,
		"fields", len(reading.Fields),
	)

	return l.writeWithRetry(ctx, reading)
}
