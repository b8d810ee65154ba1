// Package fabpanel runs a fabrication panel until its context is cancelled.
//
// Example usage:
//
//	cfg := fabpanel.DefaultConfig()
//	cfg.BlueprintDir = "blueprints"
//	if err := fabpanel.Run(ctx, cfg, panel.WithLogger(logger)); err != nil {
//	    log.Fatal(err)
//	}
//
// Use package panel directly for finer control over the lifecycle.
package fabpanel

import (
	"context"
	"errors"

	"github.com/bft-labs/fabpanel/pkg/panel"
)

// Config holds the panel configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = panel.Config

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return panel.DefaultConfig()
}

// Run starts a panel and blocks until ctx is cancelled or the panel
// crashes. It returns nil after a clean shutdown.
func Run(ctx context.Context, cfg Config, opts ...panel.Option) error {
	p, err := panel.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-p.Crashed():
	}

	stopErr := p.Stop()
	if err := p.Err(); err != nil {
		return errors.Join(err, stopErr)
	}
	return stopErr
}
