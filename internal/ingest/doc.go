// Package ingest turns MQTT messages into stored readings.
//
// The Loop is the only consumer of the transport's event channel. For each
// message it runs Decode and then writes the reading through the store
// Manager under a bounded retry policy:
//
//	write ── ok ──────────────────────────────▶ done
//	  │
//	  ├─ schema error ────────────────────────▶ drop (no reconnect)
//	  │
//	  └─ connectivity error, budget left ──▶ Reconnect
//	         ├─ ok ───────▶ write again now
//	         └─ failed ───▶ wait Delay, write again
//	     budget spent ────────────────────────▶ drop (one error event)
//
// Dropping is deliberate: there is no queue, so one reading that cannot be
// stored must not stall the readings behind it. The next message starts
// with a fresh budget, and its first connectivity failure triggers the
// reconnect that brings the store back.
package ingest
