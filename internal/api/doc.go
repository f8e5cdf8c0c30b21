// Package api implements the ingestor's operations HTTP endpoint.
//
// This package provides:
//   - GET /health: store connection state and MQTT connectivity as JSON
//   - GET /metrics: Prometheus exposition of the ingestor's collectors
//   - Middleware stack (request ID, logging, recovery)
//
// # Health Semantics
//
// /health answers 200 with status "ok" only when the store connection is
// Ready and the MQTT client is connected. Any other combination answers
// 503 with status "degraded" so that a supervisor or load balancer can act
// on it. The store probe never waits behind an in-flight write; see
// store.Manager.HealthCheck.
//
// The endpoint is read-only. Nothing here can change ingestion behaviour.
package api
