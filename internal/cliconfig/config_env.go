package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (FABPANEL_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("stream-addr", os.Getenv("FABPANEL_STREAM_ADDR"), &cfg.StreamAddr)
	s.setString("datagram-addr", os.Getenv("FABPANEL_DATAGRAM_ADDR"), &cfg.DatagramAddr)
	s.setString("rest-addr", os.Getenv("FABPANEL_REST_ADDR"), &cfg.RESTAddr)
	s.setString("blueprint-dir", os.Getenv("FABPANEL_BLUEPRINT_DIR"), &cfg.BlueprintDir)
	s.setString("default-blueprint", os.Getenv("FABPANEL_DEFAULT_BLUEPRINT"), &cfg.DefaultBlueprint)
	s.setString("nats-url", os.Getenv("FABPANEL_NATS_URL"), &cfg.NATSURL)
	s.setString("log-level", os.Getenv("FABPANEL_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("FABPANEL_LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setDuration("instruction-timeout", os.Getenv("FABPANEL_INSTRUCTION_TIMEOUT"), &cfg.InstructionTimeout); err != nil {
		return err
	}
	if err := s.setDuration("continue-delay", os.Getenv("FABPANEL_CONTINUE_DELAY"), &cfg.ContinueDelay); err != nil {
		return err
	}
	if err := s.setDuration("retry-interval", os.Getenv("FABPANEL_RETRY_INTERVAL"), &cfg.RetryInterval); err != nil {
		return err
	}

	if err := s.setIntFromString("max-retries", os.Getenv("FABPANEL_MAX_RETRIES"), &cfg.MaxRetries); err != nil {
		return err
	}
	if err := s.setIntFromString("fab-id", os.Getenv("FABPANEL_FAB_ID"), &cfg.FabID); err != nil {
		return err
	}
	if err := s.setIntFromString("benchmark-probes", os.Getenv("FABPANEL_BENCHMARK_PROBES"), &cfg.BenchmarkProbes); err != nil {
		return err
	}

	s.setBoolFromString("prune-disconnected", os.Getenv("FABPANEL_PRUNE_DISCONNECTED"), &cfg.PruneDisconnected)
	s.setBoolFromString("no-console", os.Getenv("FABPANEL_NO_CONSOLE"), &cfg.NoConsole)

	return nil
}
