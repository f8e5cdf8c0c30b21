package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the ingestor.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Store   StoreConfig   `yaml:"store"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	TLS       MQTTTLSConfig       `yaml:"tls"`
	Topic     string              `yaml:"topic"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTLSConfig points the transport at the broker's CA certificate.
// The handshake itself is left to the MQTT library.
type MQTTTLSConfig struct {
	CACert             string `yaml:"ca_cert"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// StoreConfig selects and configures the time-series store backend.
type StoreConfig struct {
	// Backend is one of "questdb", "sqlite" or "influxdb".
	Backend  string             `yaml:"backend"`
	Table    string             `yaml:"table"`
	Connect  StoreConnectConfig `yaml:"connect"`
	Write    StoreWriteConfig   `yaml:"write"`
	QuestDB  QuestDBConfig      `yaml:"questdb"`
	SQLite   SQLiteConfig       `yaml:"sqlite"`
	InfluxDB InfluxDBConfig     `yaml:"influxdb"`
}

// StoreConnectConfig bounds the startup connection retry.
type StoreConnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StoreWriteConfig bounds the per-reading write retry.
type StoreWriteConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// QuestDBConfig contains QuestDB PostgreSQL wire protocol settings.
type QuestDBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// SQLiteConfig contains SQLite database settings.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// APIConfig contains the operations HTTP endpoint settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Supported store backends.
const (
	BackendQuestDB  = "questdb"
	BackendSQLite   = "sqlite"
	BackendInfluxDB = "influxdb"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. A .env file in the working directory, if present
//  3. YAML file values (override defaults)
//  4. Environment variables (override file values)
//
// An empty path skips the YAML step. Environment variables follow the
// pattern INGESTOR_SECTION_KEY, e.g. INGESTOR_MQTT_HOST.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	// Variables already set in the process environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config matching the reference deployment
// (local Mosquitto, QuestDB on its PG wire port).
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "questdb-ingestor",
			},
			Topic:     "sensors/#",
			QoS:       1,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Store: StoreConfig{
			Backend: BackendQuestDB,
			Table:   "olimex_data",
			Connect: StoreConnectConfig{
				MaxAttempts: 10,
				Backoff:     5 * time.Second,
				Timeout:     10 * time.Second,
			},
			Write: StoreWriteConfig{
				MaxAttempts: 2,
				RetryDelay:  time.Second,
			},
			QuestDB: QuestDBConfig{
				Host:     "localhost",
				Port:     8812,
				Database: "qdb",
				User:     "admin",
				Password: "quest",
			},
			SQLite: SQLiteConfig{
				Path:        "./data/telemetry.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			InfluxDB: InfluxDBConfig{
				URL:    "http://localhost:8086",
				Bucket: "telemetry",
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    9102,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: INGESTOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("INGESTOR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("INGESTOR_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid INGESTOR_MQTT_PORT %q: %w", v, err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("INGESTOR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("INGESTOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("INGESTOR_MQTT_CA_CERT"); v != "" {
		cfg.MQTT.TLS.CACert = v
		cfg.MQTT.Broker.TLS = true
	}
	if v := os.Getenv("INGESTOR_MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}

	// Store
	if v := os.Getenv("INGESTOR_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("INGESTOR_QUESTDB_HOST"); v != "" {
		cfg.Store.QuestDB.Host = v
	}
	if v := os.Getenv("INGESTOR_QUESTDB_PASSWORD"); v != "" {
		cfg.Store.QuestDB.Password = v
	}
	if v := os.Getenv("INGESTOR_SQLITE_PATH"); v != "" {
		cfg.Store.SQLite.Path = v
	}
	if v := os.Getenv("INGESTOR_INFLUXDB_URL"); v != "" {
		cfg.Store.InfluxDB.URL = v
	}
	if v := os.Getenv("INGESTOR_INFLUXDB_TOKEN"); v != "" {
		cfg.Store.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("INGESTOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INGESTOR_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Store validation
	if c.Store.Table == "" {
		errs = append(errs, "store.table is required")
	}
	if c.Store.Connect.MaxAttempts < 1 {
		errs = append(errs, "store.connect.max_attempts must be at least 1")
	}
	if c.Store.Write.MaxAttempts < 1 {
		errs = append(errs, "store.write.max_attempts must be at least 1")
	}
	if c.Store.Connect.Backoff < 0 || c.Store.Write.RetryDelay < 0 {
		errs = append(errs, "store delays must not be negative")
	}

	switch strings.ToLower(c.Store.Backend) {
	case BackendQuestDB:
		if c.Store.QuestDB.Host == "" {
			errs = append(errs, "store.questdb.host is required")
		}
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			errs = append(errs, "store.sqlite.path is required")
		}
	case BackendInfluxDB:
		if c.Store.InfluxDB.URL == "" {
			errs = append(errs, "store.influxdb.url is required")
		}
		if c.Store.InfluxDB.Org == "" || c.Store.InfluxDB.Bucket == "" {
			errs = append(errs, "store.influxdb.org and store.influxdb.bucket are required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend %q is not one of questdb, sqlite, influxdb", c.Store.Backend))
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerAddress returns host:port of the MQTT broker for logging.
func (c MQTTConfig) BrokerAddress() string {
	return fmt.Sprintf("%s:%d", c.Broker.Host, c.Broker.Port)
}
