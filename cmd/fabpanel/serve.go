package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/fabpanel"
	"github.com/bft-labs/fabpanel/internal/cliconfig"
	"github.com/bft-labs/fabpanel/internal/console"
	"github.com/bft-labs/fabpanel/internal/sim"
	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/metrics"
	"github.com/bft-labs/fabpanel/pkg/panel"
	"github.com/bft-labs/fabpanel/plugins/catalogwatcher"
	"github.com/bft-labs/fabpanel/plugins/natsbridge"
	"github.com/bft-labs/fabpanel/plugins/restapi"
)

func newRootCmd() *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string
	var simulate bool

	root := &cobra.Command{
		Use:           "fabpanel",
		Short:         "Coordinate print heads and material containers",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfgPath, &cfg); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, simulate, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.fabpanel/config.toml)")
	f.StringVar(&cfg.StreamAddr, "stream-addr", cfg.StreamAddr, "TCP address for print heads and containers")
	f.StringVar(&cfg.DatagramAddr, "datagram-addr", cfg.DatagramAddr, "UDP address for datagram devices")
	f.StringVar(&cfg.RESTAddr, "rest-addr", cfg.RESTAddr, "REST API address (empty disables it)")
	f.DurationVar(&cfg.InstructionTimeout, "instruction-timeout", cfg.InstructionTimeout, "wait for an acknowledgment before aborting or retrying")
	f.DurationVar(&cfg.ContinueDelay, "continue-delay", cfg.ContinueDelay, "delay before resuming a job after a refill")
	f.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "send attempts per instruction on datagram links")
	f.IntVar(&cfg.BenchmarkProbes, "benchmark-probes", cfg.BenchmarkProbes, "default benchmark probe count")
	f.BoolVar(&cfg.PruneDisconnected, "prune-disconnected", cfg.PruneDisconnected, "forget parts whose connection closed or faulted")
	f.StringVar(&cfg.BlueprintDir, "blueprint-dir", cfg.BlueprintDir, "directory of named .3dbp blueprints")
	f.StringVar(&cfg.DefaultBlueprint, "default-blueprint", cfg.DefaultBlueprint, "blueprint printed by the console's p command")
	f.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS server to take jobs from (optional)")
	f.IntVar(&cfg.FabID, "fab-id", cfg.FabID, "fabricator id for NATS job messages")
	f.DurationVar(&cfg.RetryInterval, "retry-interval", cfg.RetryInterval, "poll period for queued NATS jobs")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (console or json)")
	f.BoolVar(&cfg.NoConsole, "no-console", cfg.NoConsole, "disable the interactive console")
	f.BoolVar(&simulate, "simulate", false, "run a simulated print head and material container in-process")

	return root
}

// loadConfig layers the config file and FABPANEL_* variables under the
// flags that were set explicitly.
func loadConfig(cmd *cobra.Command, cfgPath string, cfg *cliconfig.Config) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	} else if cfgPath != "" {
		return fmt.Errorf("config file %s not found", cfgPath)
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

func serve(ctx context.Context, cfg cliconfig.Config, simulate bool, in io.Reader, out io.Writer) error {
	zl, err := cfg.Logger(os.Stderr)
	if err != nil {
		return err
	}
	zl.Info().Interface("config", cfg).Msg("configuration")
	logger := log.NewZerologAdapterWithLogger(zl)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []panel.Option{panel.WithLogger(logger)}
	if cfg.RESTAddr != "" {
		opts = append(opts, restapi.WithRESTAPI(restapi.Config{
			Addr:    cfg.RESTAddr,
			Metrics: metrics.New(),
		}))
	}
	if cfg.BlueprintDir != "" {
		opts = append(opts, catalogwatcher.WithDefaultCatalogWatcher())
	}
	if cfg.NATSURL != "" {
		opts = append(opts, natsbridge.WithNATSBridge(natsbridge.Config{
			URL:           cfg.NATSURL,
			FabID:         cfg.FabID,
			RetryInterval: cfg.RetryInterval,
		}))
	}
	if !cfg.NoConsole {
		opts = append(opts, panel.WithPlugin(console.New(console.Config{
			In:               in,
			Out:              out,
			DefaultBlueprint: cfg.DefaultBlueprint,
			Quit:             cancel,
		})))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return fabpanel.Run(gctx, cfg.PanelConfig(), opts...)
	})
	if simulate {
		devices, err := simulatedDevices(cfg, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return sim.Run(gctx, devices...) })
	}
	return g.Wait()
}

func simulatedDevices(cfg cliconfig.Config, logger log.Logger) ([]sim.Device, error) {
	head := sim.NewPrinthead(sim.PrintheadConfig{Addr: dialAddr(cfg.StreamAddr)}, logger)
	mat, err := sim.NewMaterial(sim.MaterialConfig{
		Addr:       dialAddr(cfg.DatagramAddr),
		AutoRefill: cfg.ContinueDelay,
	}, logger)
	if err != nil {
		return nil, err
	}
	return []sim.Device{head, mat}, nil
}

// dialAddr turns a wildcard listen address into a loopback one.
func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
