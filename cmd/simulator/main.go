// Simulator publishes random OLIMEX ventilation-unit readings to MQTT so
// that the ingestor can be exercised without hardware.
//
// It reuses the ingestor's MQTT configuration (broker, auth, TLS) and
// publishes one payload per interval to sensors/<device>.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/iot-monitoring/ingestor/internal/infrastructure/config"
	"github.com/iot-monitoring/ingestor/internal/infrastructure/logging"
	"github.com/iot-monitoring/ingestor/internal/infrastructure/mqtt"
)

var version = "dev"

// options are the simulator's command-line settings.
type options struct {
	configPath string
	device     string
	interval   time.Duration
	count      int
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version).With("component", "simulator")

	// A distinct client id keeps the simulator from taking over the
	// ingestor's session on the broker.
	cfg.MQTT.Broker.ClientID = "olimex-simulator-" + uuid.NewString()[:8]

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	// Nothing is subscribed; connection events are drained so the
	// client's handlers never wait on them.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Events():
			}
		}
	}()

	topic := mqtt.Topics{}.Sensor(mqtt.TopicPrefixSensors, opts.device)
	log.Info("publishing simulated readings",
		"topic", topic,
		"interval", opts.interval,
		"broker", cfg.MQTT.BrokerAddress(),
	)

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for sent := 0; opts.count == 0 || sent < opts.count; sent++ {
		payload, err := json.Marshal(generatePayload(rng, time.Now()))
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
		if err := client.Publish(topic, payload, byte(cfg.MQTT.QoS), false); err != nil {
			log.Warn("publish failed", "topic", topic, "error", err)
		} else {
			log.Info("published", "topic", topic, "bytes", len(payload))
		}

		select {
		case <-ctx.Done():
			log.Info("simulator stopped")
			return nil
		case <-ticker.C:
		}
	}

	log.Info("simulator finished", "published", opts.count)
	return nil
}

func parseFlags(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.configPath, "config", os.Getenv("INGESTOR_CONFIG"), "path to the YAML configuration file")
	fs.StringVar(&opts.device, "device", "olimex", "device id, used as the last topic segment")
	fs.DurationVar(&opts.interval, "interval", 5*time.Second, "time between readings")
	fs.IntVar(&opts.count, "count", 0, "number of readings to publish (0 = until interrupted)")

	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("parsing flags: %w", err)
	}
	if opts.device == "" {
		return options{}, fmt.Errorf("-device must not be empty")
	}
	if opts.interval <= 0 {
		return options{}, fmt.Errorf("-interval must be positive")
	}
	if opts.count < 0 {
		return options{}, fmt.Errorf("-count must not be negative")
	}
	return opts, nil
}

// generatePayload returns one random reading in the OLIMEX column set.
// The timestamp key mimics device firmware; the ingestor discards it.
func generatePayload(rng *rand.Rand, now time.Time) map[string]any {
	uniform := func(lo, hi float64, decimals int) float64 {
		p := math.Pow(10, float64(decimals))
		return math.Round((lo+rng.Float64()*(hi-lo))*p) / p
	}

	return map[string]any{
		"timestamp": now.UTC().Format(time.RFC3339Nano),

		"heat_exchanger_efficiency": uniform(0.60, 0.95, 3),
		"run_mode":                  rng.IntN(4),

		// °C
		"outdoor_temp":             uniform(-5, 15, 1),
		"supply_air_temp":          uniform(16, 24, 1),
		"supply_air_setpoint_temp": 21.0,
		"exhaust_air_temp":         uniform(18, 26, 1),
		"extract_air_temp":         uniform(18, 24, 1),

		// Pa
		"supply_air_pressure":  uniform(80, 200, 1),
		"extract_air_pressure": uniform(80, 200, 1),

		// m³/h
		"supply_air_flow":        uniform(100, 400, 1),
		"extract_air_flow":       uniform(100, 400, 1),
		"extra_supply_air_flow":  uniform(0, 50, 1),
		"extra_extract_air_flow": uniform(0, 50, 1),

		// seconds
		"supply_air_fan_runtime":  1_000 + rng.Int64N(99_001),
		"extract_air_fan_runtime": 1_000 + rng.Int64N(99_001),
	}
}
