package panel

import (
	"fmt"
	"time"

	"github.com/bft-labs/fabpanel/internal/app"
	"github.com/bft-labs/fabpanel/internal/domain"
)

// Default configuration values.
const (
	DefaultStreamAddr      = "0.0.0.0:18000"
	DefaultDatagramAddr    = "0.0.0.0:18000"
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the engine configuration.
// Use DefaultConfig() or call SetDefaults() before Validate().
type Config struct {
	// StreamAddr is the TCP address print heads and containers connect to.
	StreamAddr string

	// DatagramAddr is the UDP address for datagram devices.
	DatagramAddr string

	// InstructionTimeout bounds the wait for an acknowledgment.
	InstructionTimeout time.Duration

	// ContinueDelay debounces resumption after a refill.
	ContinueDelay time.Duration

	// MaxRetries is the number of unanswered attempts on datagram links.
	MaxRetries int

	// BenchmarkProbes is the probe count used when a benchmark request
	// does not name one.
	BenchmarkProbes int

	// PruneDisconnected drops parts whose endpoint closed or that faulted.
	PruneDisconnected bool

	// BlueprintDir enables named blueprints. Optional.
	BlueprintDir string

	// ShutdownTimeout bounds Stop().
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

// SetDefaults fills zero fields with defaults.
func (c *Config) SetDefaults() {
	if c.StreamAddr == "" {
		c.StreamAddr = DefaultStreamAddr
	}
	if c.DatagramAddr == "" {
		c.DatagramAddr = DefaultDatagramAddr
	}
	if c.InstructionTimeout == 0 {
		c.InstructionTimeout = app.DefaultInstructionTimeout
	}
	if c.ContinueDelay == 0 {
		c.ContinueDelay = app.DefaultContinueDelay
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = app.DefaultMaxRetries
	}
	if c.BenchmarkProbes == 0 {
		c.BenchmarkProbes = app.DefaultBenchmarkProbes
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.StreamAddr == "":
		return fmt.Errorf("%w: stream address is required", domain.ErrInvalidConfig)
	case c.DatagramAddr == "":
		return fmt.Errorf("%w: datagram address is required", domain.ErrInvalidConfig)
	case c.InstructionTimeout <= 0:
		return fmt.Errorf("%w: instruction timeout must be positive", domain.ErrInvalidConfig)
	case c.ContinueDelay <= 0:
		return fmt.Errorf("%w: continue delay must be positive", domain.ErrInvalidConfig)
	case c.MaxRetries < 1:
		return fmt.Errorf("%w: max retries must be at least 1", domain.ErrInvalidConfig)
	case c.BenchmarkProbes < 1:
		return fmt.Errorf("%w: benchmark probes must be at least 1", domain.ErrInvalidConfig)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: shutdown timeout must be positive", domain.ErrInvalidConfig)
	}
	return nil
}

func (c Config) registryConfig() app.RegistryConfig {
	return app.RegistryConfig{
		InstructionTimeout: c.InstructionTimeout,
		ContinueDelay:      c.ContinueDelay,
		MaxRetries:         c.MaxRetries,
		PruneDisconnected:  c.PruneDisconnected,
	}
}
