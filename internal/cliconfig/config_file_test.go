package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				StreamAddr:         ":19000",
				InstructionTimeout: "500ms",
				MaxRetries:         7,
				PruneDisconnected:  &trueVal,
				NATSURL:            "nats://broker:4222",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				StreamAddr:         ":19000",
				InstructionTimeout: 500 * time.Millisecond,
				MaxRetries:         7,
				PruneDisconnected:  true,
				NATSURL:            "nats://broker:4222",
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				StreamAddr: ":19000",
				FabID:      2,
			},
			changed: map[string]bool{"stream-addr": true},
			initial: Config{StreamAddr: ":20000"},
			expected: Config{
				StreamAddr: ":20000",
				FabID:      2,
			},
		},
		{
			name:       "zero values keep current",
			fileConfig: FileConfig{},
			changed:    map[string]bool{},
			initial:    Config{MaxRetries: 3, LogLevel: "debug"},
			expected:   Config{MaxRetries: 3, LogLevel: "debug"},
		},
		{
			name:       "returns error for invalid duration",
			fileConfig: FileConfig{ContinueDelay: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg != tt.expected {
				t.Errorf("config = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.TrimSpace(`
stream_addr = "127.0.0.1:18000"
benchmark_probes = 50
prune_disconnected = true
blueprint_dir = "/srv/bp"
retry_interval = "3s"
`)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}
	if fc.StreamAddr != "127.0.0.1:18000" || fc.BenchmarkProbes != 50 || fc.BlueprintDir != "/srv/bp" {
		t.Errorf("FileConfig = %+v", fc)
	}
	if fc.PruneDisconnected == nil || !*fc.PruneDisconnected {
		t.Error("prune_disconnected not parsed")
	}
	if fc.NoConsole != nil {
		t.Error("no_console should be unset")
	}

	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, nil); err != nil {
		t.Fatal(err)
	}
	if cfg.RetryInterval != 3*time.Second {
		t.Errorf("RetryInterval = %v", cfg.RetryInterval)
	}
}

func TestLoadFileConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFileConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("stream_addr = [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFileConfig(bad); err == nil {
		t.Error("expected error for malformed toml")
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	if !FileExists(dir) {
		t.Error("temp dir should exist")
	}
	if FileExists(filepath.Join(dir, "nope")) {
		t.Error("missing file reported as existing")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("HOME", "/home/operator")
	if got := DefaultConfigPath(); got != "/home/operator/.fabpanel/config.toml" {
		t.Errorf("DefaultConfigPath() = %v", got)
	}
}
