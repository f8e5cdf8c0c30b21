// Package mqtt provides the MQTT transport for the ingestor.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Optional TLS using a CA certificate file, plus username/password
//   - A single ordered event stream (connected / message) for the consumer
//   - Last Will and Testament (LWT) on ingestors/{client_id}/status
//   - Publishing, used by the sensor simulator
//
// # Architecture
//
// Devices publish JSON readings to sensors/{device_id}. The ingestor holds
// one wildcard subscription and consumes everything through Events():
//
//	Devices → MQTT Broker → Client.Events() → ingest loop → store
//
// Paho callbacks never run application code directly. They only push an
// Event onto an unbuffered channel, so the consumer decides ordering and
// pacing. Subscriptions are not remembered across reconnects; the consumer
// re-subscribes on every EventConnected.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	for ev := range client.Events() {
//	    switch ev.Kind {
//	    case mqtt.EventConnected:
//	        _ = client.Subscribe("sensors/#", 1)
//	    case mqtt.EventMessage:
//	        handle(ev.Topic, ev.Payload)
//	    }
//	}
package mqtt
