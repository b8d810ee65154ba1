package cliconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bft-labs/fabpanel/pkg/panel"
)

// DefaultRESTAddr is where the REST API listens unless configured.
const DefaultRESTAddr = ":8080"

// Config holds CLI configuration for fabpanel.
type Config struct {
	StreamAddr   string
	DatagramAddr string
	RESTAddr     string

	InstructionTimeout time.Duration
	ContinueDelay      time.Duration
	MaxRetries         int
	BenchmarkProbes    int
	PruneDisconnected  bool

	BlueprintDir     string
	DefaultBlueprint string

	NATSURL       string
	FabID         int
	RetryInterval time.Duration

	LogLevel  string
	LogFormat string
	NoConsole bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		StreamAddr:         panel.DefaultStreamAddr,
		DatagramAddr:       panel.DefaultDatagramAddr,
		RESTAddr:           DefaultRESTAddr,
		InstructionTimeout: 2 * time.Second,
		ContinueDelay:      2 * time.Second,
		MaxRetries:         3,
		BenchmarkProbes:    10000,
		DefaultBlueprint:   "modell",
		RetryInterval:      time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.StreamAddr == "" {
		return fmt.Errorf("stream-addr is required")
	}
	if c.DatagramAddr == "" {
		return fmt.Errorf("datagram-addr is required")
	}
	if c.InstructionTimeout <= 0 {
		return fmt.Errorf("instruction timeout must be positive")
	}
	if c.ContinueDelay <= 0 {
		return fmt.Errorf("continue delay must be positive")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max-retries must be at least 1")
	}
	if c.BenchmarkProbes < 1 {
		return fmt.Errorf("benchmark-probes must be at least 1")
	}
	if c.FabID < 0 {
		return fmt.Errorf("fab-id must not be negative")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log-format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// PanelConfig converts to the engine configuration.
func (c Config) PanelConfig() panel.Config {
	return panel.Config{
		StreamAddr:         c.StreamAddr,
		DatagramAddr:       c.DatagramAddr,
		InstructionTimeout: c.InstructionTimeout,
		ContinueDelay:      c.ContinueDelay,
		MaxRetries:         c.MaxRetries,
		BenchmarkProbes:    c.BenchmarkProbes,
		PruneDisconnected:  c.PruneDisconnected,
		BlueprintDir:       c.BlueprintDir,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
