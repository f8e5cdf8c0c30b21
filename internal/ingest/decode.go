package ingest

import (
	"bytes"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/iot-monitoring/ingestor/internal/infrastructure/mqtt"
	"github.com/iot-monitoring/ingestor/internal/store"
)

// Payload keys that never become fields. The device comes from the topic
// and the timestamp from the ingestor's clock.
const (
	payloadKeyDeviceID  = "device_id"
	payloadKeyTimestamp = "timestamp"
)

// Decode turns one MQTT message into a reading.
//
// The device id is the final topic segment. The timestamp is now in UTC.
// The payload must be a flat UTF-8 JSON object; its keys, minus device_id
// and timestamp, become the reading's fields in lexical order. Values are
// passed through: integers as int64, other numbers as float64, booleans,
// strings and null unchanged. Nested objects and arrays are rejected.
//
// Decode does no I/O. Every error is a *DecodeError.
func Decode(topic string, payload []byte, now time.Time) (store.Reading, error) {
	deviceID := mqtt.Topics{}.DeviceID(topic)
	if deviceID == "" {
		return store.Reading{}, &DecodeError{Topic: topic, Reason: "topic has no device segment"}
	}

	if !utf8.Valid(payload) {
		return store.Reading{}, &DecodeError{Topic: topic, Reason: "payload is not valid UTF-8"}
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return store.Reading{}, &DecodeError{Topic: topic, Reason: "payload is not a JSON object"}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return store.Reading{}, &DecodeError{Topic: topic, Reason: "invalid JSON", Err: err}
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		if name == payloadKeyDeviceID || name == payloadKeyTimestamp {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]store.Field, 0, len(names))
	for _, name := range names {
		value, err := decodeValue(obj[name])
		if err != nil {
			return store.Reading{}, &DecodeError{Topic: topic, Reason: "field " + name, Err: err}
		}
		fields = append(fields, store.Field{Name: name, Value: value})
	}

	return store.Reading{
		DeviceID:  deviceID,
		Timestamp: now.UTC(),
		Fields:    fields,
	}, nil
}

var (
	errNestedObject = errors.New("nested objects are not supported")
	errNestedArray  = errors.New("arrays are not supported")
	errEmptyValue   = errors.New("empty value")
)

// decodeValue converts one raw JSON value into its Go scalar.
func decodeValue(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errEmptyValue
	}

	switch raw[0] {
	case '{':
		return nil, errNestedObject
	case '[':
		return nil, errNestedArray
	case 'n':
		return nil, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return decodeNumber(string(raw))
	}
}

// decodeNumber keeps integral literals as int64 so integer columns receive
// integers. Anything with a fraction or exponent, or outside int64 range,
// becomes float64.
func decodeNumber(lit string) (any, error) {
	n := json.Number(lit)
	if !strings.ContainsAny(lit, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, err
	}
	return f, nil
}
