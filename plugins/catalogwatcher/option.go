package catalogwatcher

import "github.com/bft-labs/fabpanel/pkg/panel"

// WithCatalogWatcher returns a panel Option that reindexes the blueprint
// catalog whenever its directory changes. It has no effect unless
// Config.BlueprintDir is set.
//
// Usage:
//
//	p, err := panel.New(cfg,
//	    catalogwatcher.WithCatalogWatcher(catalogwatcher.Config{
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithCatalogWatcher(cfg Config) panel.Option {
	return panel.WithPlugin(New(cfg))
}

// WithDefaultCatalogWatcher enables catalog watching with a 100ms debounce.
//
// Usage:
//
//	p, err := panel.New(cfg, catalogwatcher.WithDefaultCatalogWatcher())
func WithDefaultCatalogWatcher() panel.Option {
	return WithCatalogWatcher(DefaultConfig())
}
