// Command fabsim runs simulated fabrication devices against a panel.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bft-labs/fabpanel/internal/sim"
	"github.com/bft-labs/fabpanel/pkg/log"
)

func main() {
	var (
		streamAddr   string
		datagramAddr string
		heads        int
		materials    int
		materialID   int
		lineDelay    time.Duration
		autoRefill   time.Duration
		verbose      bool
	)

	root := &cobra.Command{
		Use:   "fabsim",
		Short: "Simulate print heads and material containers",
		Long: `Simulate print heads (TCP) and material containers (UDP) against a panel.

Containers start with 10 units, report empty at 2 and refill to 20. Press
Enter to refill every empty container, or set --auto-refill.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
				Level(level).With().Timestamp().Logger()
			logger := log.NewZerologAdapterWithLogger(zl)

			var devices []sim.Device
			var containers []*sim.Material
			for i := 0; i < heads; i++ {
				devices = append(devices, sim.NewPrinthead(sim.PrintheadConfig{
					Addr:      streamAddr,
					LineDelay: lineDelay,
				}, logger.With(log.Int("head", i))))
			}
			for i := 0; i < materials; i++ {
				m, err := sim.NewMaterial(sim.MaterialConfig{
					Addr:       datagramAddr,
					MaterialID: materialID + i,
					AutoRefill: autoRefill,
				}, logger)
				if err != nil {
					return err
				}
				devices = append(devices, m)
				containers = append(containers, m)
			}
			if len(devices) == 0 {
				return fmt.Errorf("nothing to simulate")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go refillOnEnter(ctx, containers)
			return sim.Run(ctx, devices...)
		},
	}

	f := root.Flags()
	f.StringVar(&streamAddr, "stream-addr", "127.0.0.1:18000", "panel TCP address")
	f.StringVar(&datagramAddr, "datagram-addr", "127.0.0.1:18000", "panel UDP address")
	f.IntVar(&heads, "heads", 1, "number of print heads")
	f.IntVar(&materials, "materials", 1, "number of material containers")
	f.IntVar(&materialID, "material-id", 0, "id of the first material container")
	f.DurationVar(&lineDelay, "line-delay", 3*time.Second, "time to draw a line")
	f.DurationVar(&autoRefill, "auto-refill", 0, "refill this long after running low (0 waits for Enter)")
	f.BoolVarP(&verbose, "verbose", "v", false, "log every instruction")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func refillOnEnter(ctx context.Context, containers []*sim.Material) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		for _, m := range containers {
			m.Refill()
		}
	}
}
