package panel

import (
	"context"
	"io"

	"github.com/bft-labs/fabpanel/pkg/catalog"
	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/state"
)

// Engine is the part of Panel that plugins drive. *Panel implements it.
type Engine interface {
	// StartPrint submits a blueprint to a free print head.
	StartPrint(ctx context.Context, src io.Reader, title string) (JobHandle, error)

	// PrintNamed submits a blueprint from the catalog.
	PrintNamed(ctx context.Context, name, title string) (JobHandle, error)

	// StartBenchmark runs probes round trips on a free print head; zero
	// uses the configured default.
	StartBenchmark(ctx context.Context, probes int) (PartID, error)

	// Snapshot returns the part table as of the last processed event.
	Snapshot() []PartStatus

	// Summary returns the dashboard summary of Snapshot.
	Summary() state.Summary

	// Subscribe registers fn for device events until the returned
	// function is called. fn runs on the engine goroutine and must not block.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// PluginConfig is passed to Plugin.Initialize.
type PluginConfig struct {
	// Engine submits work and observes devices.
	Engine Engine

	// Catalog is the blueprint directory, or nil when none is configured.
	Catalog *catalog.Catalog

	// Logger is the panel's logger.
	Logger log.Logger
}

// Plugin extends a Panel. Plugins are initialized in registration order
// after the engine is listening and shut down in reverse order.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Initialize starts the plugin. ctx is cancelled when the panel stops.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin and waits for its goroutines.
	Shutdown(ctx context.Context) error
}

// BasePlugin implements Plugin with no-ops. Embed it in custom plugins.
type BasePlugin struct {
	PluginName string
}

// Name returns PluginName.
func (b BasePlugin) Name() string { return b.PluginName }

// Initialize does nothing.
func (BasePlugin) Initialize(context.Context, PluginConfig) error { return nil }

// Shutdown does nothing.
func (BasePlugin) Shutdown(context.Context) error { return nil }
