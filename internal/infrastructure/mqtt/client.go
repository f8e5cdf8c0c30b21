package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/iot-monitoring/ingestor/internal/infrastructure/config"
)

// EventKind distinguishes the events a Client emits.
type EventKind int

const (
	// EventConnected is emitted after every successful (re)connection.
	// The broker forgets subscriptions on a clean-session reconnect, so the
	// consumer is expected to subscribe again when it sees this event.
	EventConnected EventKind = iota + 1

	// EventMessage carries one inbound PUBLISH.
	EventMessage
)

// String returns a short name for logging.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is a transport notification delivered on the Client's event channel.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
}

// Client wraps paho.mqtt.golang and turns its callbacks into a single
// ordered stream of events.
//
// The event channel is unbuffered. While the consumer is busy with one
// message, paho's router blocks on the next and the broker's flow control
// takes over. No messages are dropped inside the client.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are NOT restored on reconnection; see EventConnected.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// onDisconnect is optional, set via SetOnDisconnect.
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger is optional, set via SetLogger.
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, CA-file TLS)
//  2. Configures Last Will and Testament (LWT) on the ingestor status topic
//  3. Enables auto-reconnect with exponential backoff
//  4. Attempts the initial connection with timeout
//
// An EventConnected is queued for the initial connection as well as for
// every reconnect. It is delivered once the consumer starts reading Events.
//
// Parameters:
//   - cfg: MQTT configuration
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If the options are invalid or the connection fails within timeout
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	configureLWT(opts, cfg.Broker.ClientID)

	c := newClient(cfg, opts)

	c.client = pahomqtt.NewClient(opts)
	if err := c.connect(defaultConnectTimeout); err != nil {
		return nil, err
	}
	return c, nil
}

// connect performs the initial connection. On failure the client is
// closed: with connect retry enabled paho keeps dialling in the background,
// and a late success would otherwise leave handleConnect waiting on an
// event channel nobody reads.
func (c *Client) connect(timeout time.Duration) error {
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		c.Close() //nolint:errcheck // Close always returns nil
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		c.Close() //nolint:errcheck // Close always returns nil
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs in its own goroutine and may not have
	// executed yet.
	c.setConnected(true)
	return nil
}

// newClient builds a Client around opts and installs the connection
// handlers. It does not dial.
func newClient(cfg config.MQTTConfig, opts *pahomqtt.ClientOptions) *Client {
	c := &Client{
		cfg:     cfg,
		options: opts,
		events:  make(chan Event),
		done:    make(chan struct{}),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Info("reconnecting to MQTT broker", "broker", cfg.BrokerAddress())
		}
	})

	return c
}

// Events returns the channel on which connection and message events are
// delivered. The channel is never closed; consumers stop on their own
// context.
func (c *Client) Events() <-chan Event {
	return c.events
}

// emit delivers ev to the consumer, giving up once the client is closed.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.setConnected(true)
	c.publishOnlineStatus()
	c.emit(Event{Kind: EventConnected})
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "broker", c.cfg.BrokerAddress(), "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// publishOnlineStatus publishes the retained online status for this ingestor.
func (c *Client) publishOnlineStatus() {
	topic := Topics{}.IngestorStatus(c.cfg.Broker.ClientID)
	payload := buildOnlinePayload(c.cfg.Broker.ClientID)
	c.client.Publish(topic, byte(c.cfg.QoS), true, payload)
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Releases any handler blocked on the event channel
//  2. Publishes graceful offline status (different from LWT crash status)
//  3. Disconnects from broker with a short quiesce period
//
// Close is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.done != nil {
			close(c.done)
		}

		if c.client == nil {
			return
		}

		if c.IsConnected() {
			topic := Topics{}.IngestorStatus(c.cfg.Broker.ClientID)
			payload := buildOfflinePayload(c.cfg.Broker.ClientID)
			token := c.client.Publish(topic, byte(c.cfg.QoS), true, payload)
			token.WaitTimeout(defaultPublishTimeout)
		}

		c.client.Disconnect(defaultDisconnectQuiesce)
		c.setConnected(false)
	})
	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection and handler diagnostics.
// If not set, they are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// messageHandler forwards every inbound message onto the event channel.
// The payload is copied because paho may reuse the packet buffer.
func (c *Client) messageHandler() pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		payload := make([]byte, len(msg.Payload()))
		copy(payload, msg.Payload())
		c.emit(Event{Kind: EventMessage, Topic: msg.Topic(), Payload: payload})
	}
}
