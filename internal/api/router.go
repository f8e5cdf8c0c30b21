package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iot-monitoring/ingestor/internal/store"
)

// healthProbeTimeout bounds the store ping behind /health.
const healthProbeTimeout = 2 * time.Second

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status        string      `json:"status"`
	Version       string      `json:"version"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Store         StoreHealth `json:"store"`
	MQTT          MQTTHealth  `json:"mqtt"`
}

// StoreHealth describes the store connection.
type StoreHealth struct {
	Backend string `json:"backend"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

// MQTTHealth describes the broker connection.
type MQTTHealth struct {
	Connected bool `json:"connected"`
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Get("/health", s.handleHealth)
	if reg := s.metrics.Registry(); reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return r
}

// handleHealth reports store and broker status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        StatusOK,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		err := s.store.HealthCheck(ctx)
		cancel()

		resp.Store = StoreHealth{
			Backend: s.store.Backend(),
			State:   string(s.store.State()),
		}
		if err != nil {
			resp.Store.Error = err.Error()
			resp.Status = StatusDegraded
		}
	} else {
		resp.Store.State = string(store.StateDisconnected)
		resp.Status = StatusDegraded
	}

	if s.mqtt != nil {
		resp.MQTT.Connected = s.mqtt.IsConnected()
	}
	if !resp.MQTT.Connected {
		resp.Status = StatusDegraded
	}

	status := http.StatusOK
	if resp.Status != StatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
