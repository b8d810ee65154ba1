// Package restapi serves a panel over HTTP: the status endpoint polled by
// dashboards, print and benchmark submission, the part table, a websocket
// feed of snapshots and Prometheus metrics.
package restapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/fabpanel/pkg/catalog"
	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/metrics"
	"github.com/bft-labs/fabpanel/pkg/panel"
)

// Config holds configuration options for the REST plugin.
type Config struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string

	// FeedInterval is the period between websocket snapshot frames.
	// Default: 500 milliseconds
	FeedInterval time.Duration

	// WriteTimeout bounds each response and websocket write.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// MaxBlueprintBytes caps a decoded print request.
	// Default: 16 MiB
	MaxBlueprintBytes int64

	// Metrics receives engine events. A private instance is created when nil.
	Metrics *metrics.Metrics
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		FeedInterval:      500 * time.Millisecond,
		WriteTimeout:      10 * time.Second,
		MaxBlueprintBytes: 16 << 20,
	}
}

// Plugin implements the HTTP front end.
type Plugin struct {
	cfg Config

	mu          sync.Mutex
	engine      panel.Engine
	catalog     *catalog.Catalog
	logger      log.Logger
	metrics     *metrics.Metrics
	server      *http.Server
	listener    net.Listener
	unsubscribe func()
	done        chan struct{}
	wg          sync.WaitGroup
	feeds       sync.WaitGroup

	upgrader websocket.Upgrader
}

// New creates a REST plugin. Zero fields in cfg take their defaults.
func New(cfg Config) *Plugin {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.FeedInterval <= 0 {
		cfg.FeedInterval = def.FeedInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxBlueprintBytes <= 0 {
		cfg.MaxBlueprintBytes = def.MaxBlueprintBytes
	}
	return &Plugin{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "restapi"
}

// Initialize binds the listen address and starts serving.
func (p *Plugin) Initialize(ctx context.Context, cfg panel.PluginConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	m := p.cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	ln, err := net.Listen("tcp", p.cfg.Addr)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.engine = cfg.Engine
	p.catalog = cfg.Catalog
	p.logger = logger.With(log.String("component", "restapi"))
	p.metrics = m
	p.listener = ln
	p.done = make(chan struct{})
	p.unsubscribe = cfg.Engine.Subscribe(m.Observe)
	p.server = &http.Server{
		Handler:           p.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      p.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := p.server
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("rest server stopped", log.Err(err))
		}
	}()

	p.logger.Info("rest api listening", log.String("addr", ln.Addr().String()))
	return nil
}

// Shutdown stops the server, closes websocket feeds and waits for them.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	srv, unsubscribe, done := p.server, p.unsubscribe, p.done
	p.server = nil
	p.mu.Unlock()
	if srv == nil {
		return nil
	}

	unsubscribe()
	close(done)

	shutdownCtx, cancel := context.WithTimeout(ctx, p.cfg.WriteTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	p.wg.Wait()
	p.feeds.Wait()
	return err
}

// Addr returns the bound address, or nil before Initialize.
func (p *Plugin) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Ensure Plugin implements panel.Plugin.
var _ panel.Plugin = (*Plugin)(nil)
