// Package logging provides structured logging for the ingestor.
//
// This package wraps Go's standard log/slog package so every component
// emits the same event shape. The ingest loop treats the logger as its
// observability sink: every decode failure, write attempt, reconnect and
// drop is one log entry.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output, or colourised tint output, for development
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text, tint
//	  output: "stderr"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("row inserted", "device_id", "device_7", "fields", 2)
//
// Never log broker or store passwords.
package logging
