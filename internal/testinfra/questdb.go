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
	// DefaultQuestDBImage is the QuestDB image used by integration tests.
	DefaultQuestDBImage = "questdb/questdb:8.2.1"

	// questDBPGPort is the PostgreSQL wire protocol port.
	questDBPGPort = "8812/tcp"
)

// QuestDBContainer is a running QuestDB instance.
type QuestDBContainer struct {
	testcontainers.Container
	Host string
	Port int
}

// NewQuestDBContainer starts QuestDB and waits for the PG wire port.
func NewQuestDBContainer(ctx context.Context) (*QuestDBContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        DefaultQuestDBImage,
		ExposedPorts: []string{questDBPGPort, "9000/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(questDBPGPort),
			wait.ForHTTP("/").WithPort("9000/tcp"),
		).WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create questdb container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("questdb host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, questDBPGPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("questdb port: %w", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("questdb port %q: %w", mapped.Port(), err)
	}

	return &QuestDBContainer{Container: container, Host: host, Port: port}, nil
}

// Config returns QuestDB settings pointing at the container with the
// image's default credentials.
func (q *QuestDBContainer) Config() config.QuestDBConfig {
	return config.QuestDBConfig{
		Host:     q.Host,
		Port:     q.Port,
		Database: "qdb",
		User:     "admin",
		Password: "quest",
	}
}
