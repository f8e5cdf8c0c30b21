package store

import "time"

// Field is one named value from a reading.
//
// Value holds the payload value unchanged: int64 for JSON integers, float64
// for other numbers, bool, string, or nil for JSON null.
type Field struct {
	Name  string
	Value any
}

// Reading is one decoded telemetry message, written as one row.
type Reading struct {
	// DeviceID comes from the topic, never from the payload.
	DeviceID string

	// Timestamp is the ingestion time in UTC.
	Timestamp time.Time

	// Fields are the payload keys in a deterministic (lexical) order.
	Fields []Field
}

// FieldNames returns the names of r's fields in order.
func (r Reading) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}
