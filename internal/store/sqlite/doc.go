// Package sqlite implements the SQLite store backend.
//
// It is intended for edge gateways and local development where running
// QuestDB is not practical. Timestamps are stored as RFC 3339 text in UTC.
//
// SQLite types columns loosely, so a string written to a REAL column is
// accepted. Unknown columns are still rejected and reported as
// store.ErrSchema.
package sqlite
