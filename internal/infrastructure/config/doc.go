// Package config handles loading and validating ingestor configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a local .env file for development setups
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Broker and store passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/ingestor.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Topic)
package config
