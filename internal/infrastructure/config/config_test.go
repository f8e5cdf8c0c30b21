package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ingestor.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  broker:
    host: "broker.local"
    port: 8883
    tls: true
    client_id: "test-ingestor"
  tls:
    ca_cert: "/etc/mosquitto/ca.crt"
  topic: "sensors/#"
  qos: 1
store:
  backend: "questdb"
  table: "olimex_data"
  connect:
    max_attempts: 3
    backoff: 2s
  write:
    max_attempts: 2
    retry_delay: 500ms
  questdb:
    host: "qdb.local"
    port: 8812
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if !cfg.MQTT.Broker.TLS || cfg.MQTT.TLS.CACert != "/etc/mosquitto/ca.crt" {
		t.Errorf("MQTT TLS = %v/%q, want true/%q", cfg.MQTT.Broker.TLS, cfg.MQTT.TLS.CACert, "/etc/mosquitto/ca.crt")
	}
	if cfg.Store.Connect.MaxAttempts != 3 {
		t.Errorf("Store.Connect.MaxAttempts = %d, want 3", cfg.Store.Connect.MaxAttempts)
	}
	if cfg.Store.Connect.Backoff != 2*time.Second {
		t.Errorf("Store.Connect.Backoff = %v, want 2s", cfg.Store.Connect.Backoff)
	}
	if cfg.Store.Write.RetryDelay != 500*time.Millisecond {
		t.Errorf("Store.Write.RetryDelay = %v, want 500ms", cfg.Store.Write.RetryDelay)
	}
	if cfg.Store.QuestDB.Host != "qdb.local" {
		t.Errorf("Store.QuestDB.Host = %q, want %q", cfg.Store.QuestDB.Host, "qdb.local")
	}
	// Untouched sections keep their defaults.
	if cfg.Store.QuestDB.Database != "qdb" {
		t.Errorf("Store.QuestDB.Database = %q, want default %q", cfg.Store.QuestDB.Database, "qdb")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Store.Backend != BackendQuestDB {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendQuestDB)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/ingestor.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
store:
  backend: "cassandra"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for unknown backend, got nil")
	}
	if !strings.Contains(err.Error(), "store.backend") {
		t.Errorf("Load() error = %v, want mention of store.backend", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing broker host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "missing topic",
			mutate:  func(c *Config) { c.MQTT.Topic = "" },
			wantErr: true,
		},
		{
			name:    "missing table",
			mutate:  func(c *Config) { c.Store.Table = "" },
			wantErr: true,
		},
		{
			name:    "zero connect attempts",
			mutate:  func(c *Config) { c.Store.Connect.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "zero write attempts",
			mutate:  func(c *Config) { c.Store.Write.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "negative retry delay",
			mutate:  func(c *Config) { c.Store.Write.RetryDelay = -time.Second },
			wantErr: true,
		},
		{
			name: "sqlite backend with path",
			mutate: func(c *Config) {
				c.Store.Backend = BackendSQLite
			},
			wantErr: false,
		},
		{
			name: "influxdb backend without org",
			mutate: func(c *Config) {
				c.Store.Backend = BackendInfluxDB
			},
			wantErr: true,
		},
		{
			name: "influxdb backend complete",
			mutate: func(c *Config) {
				c.Store.Backend = BackendInfluxDB
				c.Store.InfluxDB.Org = "site"
			},
			wantErr: false,
		},
		{
			name:    "api port out of range",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name: "api port ignored when disabled",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("INGESTOR_MQTT_HOST", "mqtt.example.com")
	t.Setenv("INGESTOR_MQTT_PORT", "8883")
	t.Setenv("INGESTOR_MQTT_USERNAME", "edgeuser")
	t.Setenv("INGESTOR_MQTT_PASSWORD", "testpass")
	t.Setenv("INGESTOR_MQTT_CA_CERT", "/certs/ca.crt")
	t.Setenv("INGESTOR_STORE_BACKEND", "sqlite")
	t.Setenv("INGESTOR_SQLITE_PATH", "/custom/path.db")
	t.Setenv("INGESTOR_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("INGESTOR_LOG_LEVEL", "debug")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "edgeuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v, want edgeuser/testpass", cfg.MQTT.Auth)
	}
	if !cfg.MQTT.Broker.TLS || cfg.MQTT.TLS.CACert != "/certs/ca.crt" {
		t.Errorf("MQTT TLS not enabled by INGESTOR_MQTT_CA_CERT")
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, "sqlite")
	}
	if cfg.Store.SQLite.Path != "/custom/path.db" {
		t.Errorf("Store.SQLite.Path = %q, want %q", cfg.Store.SQLite.Path, "/custom/path.db")
	}
	if cfg.Store.InfluxDB.Token != "secret-token" {
		t.Errorf("Store.InfluxDB.Token = %q, want %q", cfg.Store.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestApplyEnvOverrides_InvalidPort(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("INGESTOR_MQTT_PORT", "not-a-port")

	if err := applyEnvOverrides(cfg); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Topic != "sensors/#" {
		t.Errorf("defaultConfig MQTT.Topic = %q, want %q", cfg.MQTT.Topic, "sensors/#")
	}
	if cfg.Store.Connect.MaxAttempts != 10 {
		t.Errorf("defaultConfig Store.Connect.MaxAttempts = %d, want 10", cfg.Store.Connect.MaxAttempts)
	}
	if cfg.Store.Connect.Backoff != 5*time.Second {
		t.Errorf("defaultConfig Store.Connect.Backoff = %v, want 5s", cfg.Store.Connect.Backoff)
	}
	if cfg.Store.Write.MaxAttempts != 2 {
		t.Errorf("defaultConfig Store.Write.MaxAttempts = %d, want 2", cfg.Store.Write.MaxAttempts)
	}
	if cfg.Store.Write.RetryDelay != time.Second {
		t.Errorf("defaultConfig Store.Write.RetryDelay = %v, want 1s", cfg.Store.Write.RetryDelay)
	}
	if cfg.Store.QuestDB.Port != 8812 {
		t.Errorf("defaultConfig Store.QuestDB.Port = %d, want 8812", cfg.Store.QuestDB.Port)
	}
}

func TestMQTTConfig_BrokerAddress(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.MQTT.BrokerAddress(); got != "localhost:1883" {
		t.Errorf("BrokerAddress() = %q, want %q", got, "localhost:1883")
	}
}
