package sim

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Device is a simulated device.
type Device interface {
	Run(ctx context.Context) error
}

// Run drives every device until ctx is done or one of them fails.
func Run(ctx context.Context, devices ...Device) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, d := range devices {
		g.Go(func() error { return d.Run(ctx) })
	}
	return g.Wait()
}
