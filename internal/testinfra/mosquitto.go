//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/iot-monitoring/ingestor/internal/infrastructure/config"
)

const (
	// DefaultMosquittoImage is the broker image used by integration tests.
	DefaultMosquittoImage = "eclipse-mosquitto:2"

	mosquittoPort = "1883/tcp"
)

// MosquittoContainer is a running broker that accepts anonymous clients.
type MosquittoContainer struct {
	testcontainers.Container
	Host string
	Port int
}

// NewMosquittoContainer starts Mosquitto with the image's no-auth config.
func NewMosquittoContainer(ctx context.Context) (*MosquittoContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        DefaultMosquittoImage,
		ExposedPorts: []string{mosquittoPort},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort(mosquittoPort).WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create mosquitto container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("mosquitto host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, mosquittoPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("mosquitto port: %w", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("mosquitto port %q: %w", mapped.Port(), err)
	}

	return &MosquittoContainer{Container: container, Host: host, Port: port}, nil
}

// Config returns MQTT settings pointing at the container.
func (m *MosquittoContainer) Config(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     m.Host,
			Port:     m.Port,
			ClientID: clientID,
		},
		Topic:     "sensors/#",
		QoS:       1,
		KeepAlive: 30,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}
