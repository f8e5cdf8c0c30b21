package mqtt

import (
	"fmt"
)

// Subscribe asks the broker for messages matching topic. Every matching
// message is delivered as an EventMessage on the event channel.
//
// The subscription is not tracked: after a reconnect the consumer receives
// EventConnected and must call Subscribe again.
//
// Subscribe waits for SUBACK with a bounded timeout. It is normally called
// from the goroutine that reads Events; if a message for an earlier
// subscription arrives before SUBACK, the router blocks on the event channel
// and Subscribe returns a timeout instead of hanging.
//
// Parameters:
//   - topic: The topic filter (wildcards allowed, e.g. "sensors/#")
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, c.messageHandler())
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}
