package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	StreamAddr         string `toml:"stream_addr"`
	DatagramAddr       string `toml:"datagram_addr"`
	RESTAddr           string `toml:"rest_addr"`
	InstructionTimeout string `toml:"instruction_timeout"`
	ContinueDelay      string `toml:"continue_delay"`
	MaxRetries         int    `toml:"max_retries"`
	BenchmarkProbes    int    `toml:"benchmark_probes"`
	PruneDisconnected  *bool  `toml:"prune_disconnected"`
	BlueprintDir       string `toml:"blueprint_dir"`
	DefaultBlueprint   string `toml:"default_blueprint"`
	NATSURL            string `toml:"nats_url"`
	FabID              int    `toml:"fab_id"`
	RetryInterval      string `toml:"retry_interval"`
	LogLevel           string `toml:"log_level"`
	LogFormat          string `toml:"log_format"`
	NoConsole          *bool  `toml:"no_console"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.fabpanel/config.toml, or "" without a home
// directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".fabpanel", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("stream-addr", fc.StreamAddr, &cfg.StreamAddr)
	s.setString("datagram-addr", fc.DatagramAddr, &cfg.DatagramAddr)
	s.setString("rest-addr", fc.RESTAddr, &cfg.RESTAddr)
	s.setString("blueprint-dir", fc.BlueprintDir, &cfg.BlueprintDir)
	s.setString("default-blueprint", fc.DefaultBlueprint, &cfg.DefaultBlueprint)
	s.setString("nats-url", fc.NATSURL, &cfg.NATSURL)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	if err := s.setDuration("instruction-timeout", fc.InstructionTimeout, &cfg.InstructionTimeout); err != nil {
		return err
	}
	if err := s.setDuration("continue-delay", fc.ContinueDelay, &cfg.ContinueDelay); err != nil {
		return err
	}
	if err := s.setDuration("retry-interval", fc.RetryInterval, &cfg.RetryInterval); err != nil {
		return err
	}

	s.setInt("max-retries", fc.MaxRetries, &cfg.MaxRetries)
	s.setInt("benchmark-probes", fc.BenchmarkProbes, &cfg.BenchmarkProbes)
	s.setInt("fab-id", fc.FabID, &cfg.FabID)

	s.setBool("prune-disconnected", fc.PruneDisconnected, &cfg.PruneDisconnected)
	s.setBool("no-console", fc.NoConsole, &cfg.NoConsole)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
