// Package catalogwatcher keeps a panel's blueprint catalog in step with its
// directory. When enabled, it watches the blueprint directory and reindexes
// it shortly after any .3dbp file is created, written, renamed or removed.
package catalogwatcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/fabpanel/pkg/catalog"
	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/panel"
)

// Plugin implements blueprint directory watching.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	debounceDelay time.Duration
	onRefresh     func([]catalog.Entry)

	// Runtime state
	catalog  *catalog.Catalog
	logger   log.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds configuration options for the catalog watcher plugin.
type Config struct {
	// DebounceDelay is the quiet period after a change before reindexing.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// OnRefresh is called with the new index after each reindex. Optional.
	OnRefresh func([]catalog.Entry)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{DebounceDelay: 100 * time.Millisecond}
}

// New creates a new catalog watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		debounceDelay: cfg.DebounceDelay,
		onRefresh:     cfg.OnRefresh,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "catalogwatcher"
}

// Initialize starts watching the panel's blueprint directory.
func (p *Plugin) Initialize(ctx context.Context, cfg panel.PluginConfig) error {
	p.mu.Lock()
	p.catalog = cfg.Catalog
	p.logger = cfg.Logger
	p.mu.Unlock()

	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	if p.catalog == nil {
		p.logger.Warn("catalog watcher disabled: no blueprint directory configured")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(p.catalog.Dir()); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("catalog watcher plugin initialized", log.String("dir", p.catalog.Dir()))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Shutdown stops the watcher and any pending reindex.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != catalog.Ext {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceRefresh(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("catalog watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceRefresh(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.refresh()
	})
}

func (p *Plugin) refresh() {
	if err := p.catalog.Refresh(); err != nil {
		p.logger.Error("blueprint reindex failed", log.Err(err))
		return
	}
	entries := p.catalog.List()
	p.logger.Info("blueprints reindexed", log.Int("count", len(entries)))
	if p.onRefresh != nil {
		p.onRefresh(entries)
	}
}

// Ensure Plugin implements panel.Plugin.
var _ panel.Plugin = (*Plugin)(nil)
