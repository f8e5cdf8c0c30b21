package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ingestor"

// Drop reasons recorded on ingestor_readings_dropped_total.
const (
	DropDecode    = "decode"
	DropSchema    = "schema"
	DropExhausted = "retries_exhausted"
	DropShutdown  = "shutdown"
)

// storeStates lists every store state so the gauge always exports all of
// them (exactly one is 1).
var storeStates = []string{"disconnected", "connecting", "ready", "failed"}

// Metrics holds the ingestor's Prometheus collectors.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messagesReceived prometheus.Counter
	readingsWritten  prometheus.Counter
	readingsDropped  *prometheus.CounterVec
	writeAttempts    *prometheus.CounterVec
	reconnects       *prometheus.CounterVec
	writeLatency     prometheus.Histogram
	storeState       *prometheus.GaugeVec
	mqttConnects     prometheus.Counter
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		messagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of MQTT messages received",
		}),
		readingsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_written_total",
			Help:      "Total number of readings written to the store",
		}),
		readingsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_dropped_total",
			Help:      "Total number of messages dropped, by reason",
		}, []string{"reason"}),
		writeAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_attempts_total",
			Help:      "Total number of store write attempts, by outcome",
		}, []string{"outcome"}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_reconnects_total",
			Help:      "Total number of store reconnect attempts, by outcome",
		}, []string{"outcome"}),
		writeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_latency_seconds",
			Help:      "Latency of individual store write attempts in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		storeState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_state",
			Help:      "Current store connection state (1 for the active state)",
		}, []string{"state"}),
		mqttConnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_connects_total",
			Help:      "Total number of MQTT (re)connections observed by the loop",
		}),
	}
}

// Registry returns the registry backing these metrics, for /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// MessageReceived counts one inbound MQTT message.
func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

// MQTTConnected counts one (re)connection.
func (m *Metrics) MQTTConnected() {
	if m == nil {
		return
	}
	m.mqttConnects.Inc()
}

// WriteAttempt records the outcome ("ok", "connectivity", "schema") and
// duration of one store write.
func (m *Metrics) WriteAttempt(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.writeAttempts.WithLabelValues(outcome).Inc()
	m.writeLatency.Observe(d.Seconds())
}

// ReadingWritten counts one persisted reading.
func (m *Metrics) ReadingWritten() {
	if m == nil {
		return
	}
	m.readingsWritten.Inc()
}

// ReadingDropped counts one dropped message under reason.
func (m *Metrics) ReadingDropped(reason string) {
	if m == nil {
		return
	}
	m.readingsDropped.WithLabelValues(reason).Inc()
}

// Reconnect records a store reconnect attempt.
func (m *Metrics) Reconnect(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.reconnects.WithLabelValues(outcome).Inc()
}

// StoreState marks state as the active store state.
func (m *Metrics) StoreState(state string) {
	if m == nil {
		return
	}
	for _, s := range storeStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.storeState.WithLabelValues(s).Set(v)
	}
}
