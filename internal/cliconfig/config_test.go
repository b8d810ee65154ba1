package cliconfig

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.StreamAddr != "0.0.0.0:18000" {
		t.Errorf("StreamAddr = %v, want 0.0.0.0:18000", cfg.StreamAddr)
	}
	if cfg.InstructionTimeout != 2*time.Second {
		t.Errorf("InstructionTimeout = %v, want 2s", cfg.InstructionTimeout)
	}
	if cfg.DefaultBlueprint != "modell" {
		t.Errorf("DefaultBlueprint = %v, want modell", cfg.DefaultBlueprint)
	}
	if cfg.PruneDisconnected {
		t.Error("PruneDisconnected should default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing stream addr", func(c *Config) { c.StreamAddr = "" }, true},
		{"missing datagram addr", func(c *Config) { c.DatagramAddr = "" }, true},
		{"zero timeout", func(c *Config) { c.InstructionTimeout = 0 }, true},
		{"negative continue delay", func(c *Config) { c.ContinueDelay = -time.Second }, true},
		{"zero continue delay", func(c *Config) { c.ContinueDelay = 0 }, true},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, true},
		{"zero probes", func(c *Config) { c.BenchmarkProbes = 0 }, true},
		{"negative fab id", func(c *Config) { c.FabID = -1 }, true},
		{"nats with fab id", func(c *Config) { c.NATSURL = "nats://x:4222"; c.FabID = 2 }, false},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_PanelConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlueprintDir = "/srv/blueprints"
	cfg.PruneDisconnected = true
	cfg.MaxRetries = 5

	pc := cfg.PanelConfig()
	pc.SetDefaults()
	if pc.BlueprintDir != "/srv/blueprints" || !pc.PruneDisconnected || pc.MaxRetries != 5 {
		t.Errorf("PanelConfig() = %+v", pc)
	}
	if err := pc.Validate(); err != nil {
		t.Errorf("panel config invalid: %v", err)
	}
}

func TestConfig_Logger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	l, err := cfg.Logger(&buf)
	if err != nil {
		t.Fatalf("Logger() error = %v", err)
	}
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message written at warn level")
	}
	if !strings.Contains(buf.String(), `"message":"shown"`) {
		t.Errorf("output = %q", buf.String())
	}

	cfg.LogLevel = "loud"
	if _, err := cfg.Logger(&buf); err == nil {
		t.Error("expected error for unknown level")
	}
}
