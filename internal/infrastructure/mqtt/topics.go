package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout used by sensor devices and the ingestor.
//
//	sensors/{device_id}              telemetry from one device
//	ingestors/{client_id}/status     ingestor online/offline (retained)
const (
	// TopicPrefixSensors is the base for all device telemetry topics.
	TopicPrefixSensors = "sensors"

	// TopicPrefixIngestors is the base for ingestor status topics.
	TopicPrefixIngestors = "ingestors"
)

// Topics provides builders for the MQTT topics the ingestor uses.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// AllSensors returns the wildcard filter matching every device under prefix.
//
// Example: sensors/#
func (Topics) AllSensors(prefix string) string {
	return strings.TrimRight(prefix, "/") + "/#"
}

// Sensor returns the telemetry topic for one device.
//
// Example: sensors/device_7
func (Topics) Sensor(prefix, deviceID string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(prefix, "/"), deviceID)
}

// IngestorStatus returns the retained status topic for an ingestor instance.
//
// Example: ingestors/questdb-ingestor/status
func (Topics) IngestorStatus(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixIngestors, clientID)
}

// DeviceID extracts the device identity from a concrete topic.
// The device is the final path segment; headers and payload are not consulted.
//
// Returns "" if the final segment is empty (e.g. "sensors/").
func (Topics) DeviceID(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
