// Ingestor consumes sensor telemetry from MQTT and stores one row per
// reading in a time-series database.
//
// Startup order is fixed: configuration, logging, store connection with
// bounded retry, schema bootstrap, MQTT connection, then the ingestion loop.
// A store that cannot be reached or bootstrapped at startup ends the process
// with exit status 1; restarting is left to the supervisor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/iot-monitoring/ingestor/internal/api"
	"github.com/iot-monitoring/ingestor/internal/infrastructure/config"
	"github.com/iot-monitoring/ingestor/internal/infrastructure/logging"
	"github.com/iot-monitoring/ingestor/internal/infrastructure/metrics"
	"github.com/iot-monitoring/ingestor/internal/infrastructure/mqtt"
	"github.com/iot-monitoring/ingestor/internal/ingest"
	"github.com/iot-monitoring/ingestor/internal/store"
	"github.com/iot-monitoring/ingestor/internal/store/influx"
	"github.com/iot-monitoring/ingestor/internal/store/questdb"
	"github.com/iot-monitoring/ingestor/internal/store/sqlite"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path. A missing file at this path is not an
// error; defaults and environment variables apply.
const defaultConfigPath = "configs/ingestor.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error {
	log := logging.Default()
	log.Info("starting ingestor",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath, err := resolveConfigPath(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Deferred closes run in reverse order: API, MQTT, store, then this.
	defer func() { log.Info("ingestor stopped") }()

	m := metrics.New()

	// Store: connect and bootstrap before anything is consumed.
	dialer, err := newDialer(cfg.Store)
	if err != nil {
		return err
	}
	manager := store.NewManager(dialer, store.Config{
		Backoff: cfg.Store.Connect.Backoff,
		OnStateChange: func(s store.State) {
			m.StoreState(string(s))
		},
	})
	manager.SetLogger(log.With("component", "store"))
	defer func() {
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error closing store connection", "error", closeErr)
			return
		}
		log.Info("store connection closed")
	}()

	if err := manager.Connect(ctx, cfg.Store.Connect.MaxAttempts); err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	if err := manager.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("bootstrapping store: %w", err)
	}
	log.Info("store ready",
		"backend", manager.Backend(),
		"table", cfg.Store.Table,
	)

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.With("component", "mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", cfg.MQTT.BrokerAddress(),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Ops endpoint
	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			Store:   manager,
			MQTT:    mqttClient,
			Metrics: m,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr = srv.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	loop := ingest.NewLoop(manager, mqttClient, ingest.Config{
		Topic: cfg.MQTT.Topic,
		QoS:   byte(cfg.MQTT.QoS),
		Retry: ingest.RetryPolicy{
			MaxAttempts: cfg.Store.Write.MaxAttempts,
			Delay:       cfg.Store.Write.RetryDelay,
		},
	})
	loop.SetLogger(log.With("component", "ingest"))
	loop.SetMetrics(m)

	log.Info("ingestor started", "topic", cfg.MQTT.Topic)

	if err := loop.Run(ctx, mqttClient.Events()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("ingestion loop: %w", err)
	}

	log.Info("shutdown signal received, stopping...")
	return nil
}

// resolveConfigPath picks the configuration file from the -config flag,
// then INGESTOR_CONFIG, then the default path. A missing default file
// yields "" so that Load falls back to defaults.
func resolveConfigPath(args []string) (string, error) {
	fs := flag.NewFlagSet("ingestor", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := fs.String("config", "", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("parsing flags: %w", err)
	}

	if *path != "" {
		return *path, nil
	}
	if env := os.Getenv("INGESTOR_CONFIG"); env != "" {
		return env, nil
	}
	if _, err := os.Stat(defaultConfigPath); err != nil {
		return "", nil
	}
	return defaultConfigPath, nil
}

// newDialer builds the store backend selected by cfg.Backend.
func newDialer(cfg config.StoreConfig) (store.Dialer, error) {
	table := store.OlimexTable(cfg.Table)

	switch strings.ToLower(cfg.Backend) {
	case config.BackendQuestDB:
		return questdb.New(cfg.QuestDB, table, cfg.Connect.Timeout), nil
	case config.BackendSQLite:
		return sqlite.New(cfg.SQLite, table, cfg.Connect.Timeout), nil
	case config.BackendInfluxDB:
		return influx.New(cfg.InfluxDB, table, cfg.Connect.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
