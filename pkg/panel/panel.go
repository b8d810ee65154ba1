package panel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/fabpanel/internal/adapters/tcp"
	"github.com/bft-labs/fabpanel/internal/adapters/udp"
	"github.com/bft-labs/fabpanel/internal/app"
	"github.com/bft-labs/fabpanel/internal/deadline"
	"github.com/bft-labs/fabpanel/internal/domain"
	"github.com/bft-labs/fabpanel/internal/ports"
	"github.com/bft-labs/fabpanel/pkg/catalog"
	"github.com/bft-labs/fabpanel/pkg/lifecycle"
	"github.com/bft-labs/fabpanel/pkg/state"
)

// Panel coordinates print heads and material containers that connect over
// TCP or UDP. Use New() to create an instance, then Start() to bind the
// device ports.
type Panel struct {
	config    Config
	opts      options
	lifecycle *lifecycle.DefaultManager
	hub       *hub
	catalog   *catalog.Catalog
	logger    ports.Logger
	plugins   []Plugin

	// runMu serializes Start and Stop; mu guards the fields below.
	runMu    sync.Mutex
	mu       sync.RWMutex
	loop     *app.Loop
	sched    *deadline.Scheduler
	tcp      *tcp.Listener
	udp      *udp.Listener
	cancel   context.CancelFunc
	crashed  chan struct{}
	crash    *sync.Once
	endpoint atomic.Uint64
}

// New creates a Panel in StateStopped. Returns an error if the
// configuration is invalid or the blueprint directory cannot be read.
func New(cfg Config, opts ...Option) (*Panel, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var cat *catalog.Catalog
	if cfg.BlueprintDir != "" {
		var err error
		cat, err = catalog.New(cfg.BlueprintDir, o.logger.With(ports.String("component", "catalog")))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
		}
	}

	h := newHub(o.eventHandler)
	p := &Panel{
		config:    cfg,
		opts:      o,
		lifecycle: lifecycle.NewManager(o.logger, h),
		hub:       h,
		catalog:   cat,
		logger:    o.logger,
		plugins:   o.plugins,
	}
	h.onState = p.observeState
	return p, nil
}

func (p *Panel) observeState(s State) {
	if s != StateCrashed {
		return
	}
	p.mu.RLock()
	ch, once := p.crashed, p.crash
	p.mu.RUnlock()
	if once != nil {
		once.Do(func() { close(ch) })
	}
}

// Crashed is closed when the current run crashes. It never closes before
// the first Start.
func (p *Panel) Crashed() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.crashed
}

// Start binds the device ports, starts the event loop and initializes
// plugins. It returns once the panel is accepting devices. ctx bounds the
// panel's lifetime.
func (p *Panel) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if !p.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := p.lifecycle.TransitionTo(lifecycle.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.lifecycle.SetCancel(cancel)

	p.mu.Lock()
	p.crashed, p.crash = make(chan struct{}), &sync.Once{}
	p.mu.Unlock()

	sched := deadline.New(64)
	reg := app.NewRegistry(p.config.registryConfig(), sched, p.hub, p.logger.With(ports.String("component", "registry")))
	loop := app.NewLoop(reg, sched, p.logger)

	tl, err := tcp.Listen(p.config.StreamAddr, loop, p.nextEndpoint, p.logger)
	if err != nil {
		return p.abortStart(cancel, sched, err, "stream listener")
	}
	ul, err := udp.Listen(p.config.DatagramAddr, loop, p.nextEndpoint, p.logger)
	if err != nil {
		_ = tl.Close()
		return p.abortStart(cancel, sched, err, "datagram listener")
	}

	p.mu.Lock()
	p.loop, p.sched, p.tcp, p.udp, p.cancel = loop, sched, tl, ul, cancel
	p.mu.Unlock()

	p.lifecycle.Go(runCtx, "event loop", loop.Run)
	p.lifecycle.Go(runCtx, "stream listener", tl.Serve)
	p.lifecycle.Go(runCtx, "datagram listener", ul.Serve)

	pluginCfg := PluginConfig{Engine: p, Catalog: p.catalog, Logger: p.logger}
	for _, pl := range p.plugins {
		if err := pl.Initialize(runCtx, pluginCfg); err != nil {
			p.logger.Error("plugin initialization failed",
				ports.String("plugin", pl.Name()),
				ports.Err(err))
			cancel()
			_ = p.lifecycle.WaitWithTimeout(p.config.ShutdownTimeout)
			sched.Close()
			_ = p.lifecycle.TransitionTo(lifecycle.StateCrashed, "plugin init failed: "+pl.Name())
			return err
		}
		p.logger.Info("plugin initialized", ports.String("plugin", pl.Name()))
	}

	if err := p.lifecycle.TransitionTo(lifecycle.StateRunning, "listening"); err != nil {
		// A worker failed during startup and already crashed the panel.
		return err
	}
	p.logger.Info("panel started",
		ports.String("stream", tl.Addr().String()),
		ports.String("datagram", ul.Addr().String()))
	return nil
}

func (p *Panel) abortStart(cancel context.CancelFunc, sched *deadline.Scheduler, err error, what string) error {
	cancel()
	sched.Close()
	p.logger.Error("startup failed", ports.String("step", what), ports.Err(err))
	_ = p.lifecycle.TransitionTo(lifecycle.StateCrashed, what+": "+err.Error())
	return err
}

func (p *Panel) nextEndpoint() domain.EndpointID {
	return domain.EndpointID(p.endpoint.Add(1))
}

// Stop closes every device connection, stops the listeners and shuts down
// plugins in reverse order. Returns ErrShutdownTimeout if the workers do
// not exit within Config.ShutdownTimeout.
func (p *Panel) Stop() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if !p.lifecycle.CanStop() {
		return domain.ErrNotRunning
	}
	if err := p.lifecycle.TransitionTo(lifecycle.StateStopping, "Stop() called"); err != nil {
		return err
	}
	p.mu.RLock()
	cancel, sched := p.cancel, p.sched
	p.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	err := p.lifecycle.WaitWithTimeout(p.config.ShutdownTimeout)
	if errors.Is(err, lifecycle.ErrShutdownTimeout) {
		err = domain.ErrShutdownTimeout
	}
	if sched != nil {
		sched.Close()
	}

	shutdownCtx := context.Background()
	for i := len(p.plugins) - 1; i >= 0; i-- {
		pl := p.plugins[i]
		if shutdownErr := p.shutdownPlugin(shutdownCtx, pl); shutdownErr != nil {
			p.logger.Error("plugin shutdown failed",
				ports.String("plugin", pl.Name()),
				ports.Err(shutdownErr))
		} else {
			p.logger.Info("plugin shutdown complete", ports.String("plugin", pl.Name()))
		}
	}

	if err != nil {
		_ = p.lifecycle.TransitionTo(lifecycle.StateCrashed, "shutdown timeout")
	} else {
		_ = p.lifecycle.TransitionTo(lifecycle.StateStopped, "graceful shutdown")
	}
	return err
}

// shutdownPlugin keeps a panicking plugin from skipping the rest.
func (p *Panel) shutdownPlugin(ctx context.Context, pl Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %s panicked: %v", pl.Name(), r)
		}
	}()
	return pl.Shutdown(ctx)
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (p *Panel) Status() State {
	return p.lifecycle.State()
}

// Err returns the error that crashed the panel, if any.
func (p *Panel) Err() error {
	return p.lifecycle.Err()
}

// StreamAddr returns the bound TCP address, or nil before Start.
func (p *Panel) StreamAddr() net.Addr {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.tcp == nil {
		return nil
	}
	return p.tcp.Addr()
}

// DatagramAddr returns the bound UDP address, or nil before Start.
func (p *Panel) DatagramAddr() net.Addr {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.udp == nil {
		return nil
	}
	return p.udp.Addr()
}

// Catalog returns the blueprint catalog, or nil when BlueprintDir is unset.
func (p *Panel) Catalog() *catalog.Catalog {
	return p.catalog
}

func (p *Panel) currentLoop() (*app.Loop, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.loop == nil || p.lifecycle.State() != lifecycle.StateRunning {
		return nil, domain.ErrNotRunning
	}
	return p.loop, nil
}

// StartPrint hands src to the lowest-numbered idle print head and sends the
// first instruction. The panel owns src from here on: it is closed when the
// job ends if it implements io.Closer.
func (p *Panel) StartPrint(ctx context.Context, src io.Reader, title string) (JobHandle, error) {
	loop, err := p.currentLoop()
	if err != nil {
		closeReader(src)
		return JobHandle{}, err
	}
	var (
		h      JobHandle
		runErr error
	)
	if err := loop.Do(ctx, func(r *app.Registry) {
		h, runErr = r.StartPrint(src, title)
	}); err != nil {
		closeReader(src)
		return JobHandle{}, err
	}
	if runErr != nil {
		return h, runErr
	}
	p.logger.Info("print started",
		ports.String("job", h.ID),
		ports.String("title", title),
		ports.Int("part", int(h.PartID)))
	return h, nil
}

// PrintNamed starts a print of a catalog blueprint. title defaults to name.
func (p *Panel) PrintNamed(ctx context.Context, name, title string) (JobHandle, error) {
	if p.catalog == nil {
		return JobHandle{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, name)
	}
	rc, err := p.catalog.Open(name)
	if err != nil {
		return JobHandle{}, err
	}
	if title == "" {
		title = name
	}
	return p.StartPrint(ctx, rc, title)
}

// StartBenchmark runs a round-trip benchmark on a free print head. probes
// of zero or less uses Config.BenchmarkProbes.
func (p *Panel) StartBenchmark(ctx context.Context, probes int) (PartID, error) {
	if probes <= 0 {
		probes = p.config.BenchmarkProbes
	}
	loop, err := p.currentLoop()
	if err != nil {
		return 0, err
	}
	var (
		id     PartID
		runErr error
	)
	if err := loop.Do(ctx, func(r *app.Registry) {
		id, runErr = r.StartBenchmark(probes)
	}); err != nil {
		return 0, err
	}
	return id, runErr
}

// Snapshot returns the part table as of the last processed event. It is
// empty before Start.
func (p *Panel) Snapshot() []PartStatus {
	p.mu.RLock()
	loop := p.loop
	p.mu.RUnlock()
	if loop == nil {
		return nil
	}
	return loop.Snapshot()
}

// Summary condenses Snapshot for dashboards.
func (p *Panel) Summary() state.Summary {
	return state.Summarize(p.Snapshot())
}

// Subscribe registers fn for device events. fn runs on the engine goroutine
// and must not block or call back into the Panel.
func (p *Panel) Subscribe(fn func(Event)) func() {
	return p.hub.subscribe(fn)
}

func closeReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}

var _ Engine = (*Panel)(nil)
