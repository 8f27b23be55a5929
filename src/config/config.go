package config

import (
	"fmt"
	"os"

	"trade-scanner/src/helpers"
	"trade-scanner/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills interval and sizing values left out of the YAML.
func (c *Config) applyDefaults() {
	if c.Stream.AuthTimeoutSecs <= 0 {
		c.Stream.AuthTimeoutSecs = 10
	}
	if c.Stream.StalenessSecs <= 0 {
		c.Stream.StalenessSecs = 90
	}
	if c.Stream.WatchdogSecs <= 0 {
		c.Stream.WatchdogSecs = 20
	}
	if c.Stream.Reconnect.MinMs <= 0 {
		c.Stream.Reconnect.MinMs = 1000
	}
	if c.Stream.Reconnect.MaxMs <= 0 {
		c.Stream.Reconnect.MaxMs = 60000
	}
	if c.Stream.Reconnect.Factor <= 1 {
		c.Stream.Reconnect.Factor = 2.0
	}
	if c.Stream.Reconnect.MaxAttempts <= 0 {
		c.Stream.Reconnect.MaxAttempts = 10
	}
	if c.Server.HeartbeatSecs <= 0 {
		c.Server.HeartbeatSecs = 15
	}
	if c.Server.IdleSecs <= 0 {
		c.Server.IdleSecs = 60
	}
	if c.Detector.BufferCap1 <= 0 {
		c.Detector.BufferCap1 = 500
	}
	if c.Detector.BufferCap5 <= 0 {
		c.Detector.BufferCap5 = 200
	}
	if c.Detector.BufferCap60 <= 0 {
		c.Detector.BufferCap60 = 100
	}
	if c.Snapshot.RequestTimeout <= 0 {
		c.Snapshot.RequestTimeout = 10
	}
	if c.Snapshot.MaxRetries <= 0 {
		c.Snapshot.MaxRetries = 3
	}
	if c.Snapshot.PollSecs <= 0 {
		c.Snapshot.PollSecs = 60
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Stream configuration
	if c.Stream.URL == "" {
		return helpers.NewConfigurationError("stream url cannot be empty")
	}
	if c.Stream.APIKey == "" {
		// Fail fast: without a credential the auth handshake can never succeed.
		return helpers.NewConfigurationError("stream api_key is required")
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate Detector configuration
	if c.Detector.MinVolume < 0 {
		return fmt.Errorf("minimum volume cannot be negative")
	}
	weightSum := 0
	for name, w := range c.Detector.Weights {
		if w < 0 {
			return fmt.Errorf("confluence weight '%s' cannot be negative", name)
		}
		weightSum += w
	}
	if weightSum > 100 {
		return fmt.Errorf("confluence weights sum to %d (must not exceed 100)", weightSum)
	}
	for rule, min := range c.Detector.RuleMinFactors {
		if min < 1 {
			return fmt.Errorf("rule '%s' minimum factor count must be at least 1", rule)
		}
	}

	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol must be configured")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
