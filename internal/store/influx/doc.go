// Package influx implements the InfluxDB v2 store backend.
//
// Readings become points in the configured bucket:
//
//	measurement: the table name (default "olimex_data")
//	tag:         device_id
//	fields:      the reading's non-null fields
//	time:        the ingestion timestamp
//
// Writes use the blocking write API so every reading gets an immediate
// result for the retry policy. The field set is checked against the same
// fixed column list the SQL backends use.
package influx
