// Package metrics exposes ingestion counters and the store state as
// Prometheus metrics under the "ingestor_" prefix.
//
// Collectors live on a private registry rather than the global default so
// tests can create as many independent instances as they like.
package metrics
