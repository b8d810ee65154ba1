package app

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/fabpanel/internal/domain"
	"github.com/bft-labs/fabpanel/internal/ports"
	"github.com/bft-labs/fabpanel/pkg/wire"
)

// Default engine tuning.
const (
	DefaultInstructionTimeout = 2 * time.Second
	DefaultContinueDelay      = 2 * time.Second
	DefaultMaxRetries         = 3
	DefaultBenchmarkProbes    = 10000
)

// RegistryConfig tunes the registry.
type RegistryConfig struct {
	// InstructionTimeout bounds the wait for a print head acknowledgment.
	InstructionTimeout time.Duration

	// ContinueDelay debounces resumption after a container is refilled.
	ContinueDelay time.Duration

	// MaxRetries is the number of unanswered attempts on a datagram link
	// before the job is aborted.
	MaxRetries int

	// PruneDisconnected removes parts whose endpoint closed or that
	// faulted instead of keeping them as faulted entries.
	PruneDisconnected bool

	// Now and NewJobID are overridable for tests.
	Now      func() time.Time
	NewJobID func() string
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.InstructionTimeout <= 0 {
		c.InstructionTimeout = DefaultInstructionTimeout
	}
	if c.ContinueDelay <= 0 {
		c.ContinueDelay = DefaultContinueDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewJobID == nil {
		c.NewJobID = uuid.NewString
	}
	return c
}

// endpoint is a transport endpoint and, after its handshake, its part.
type endpoint struct {
	link ports.Link
	part *Part
}

// Registry owns every endpoint and part and routes events to them.
// All methods must be called from the event loop goroutine.
type Registry struct {
	cfg       RegistryConfig
	env       *partEnv
	logger    ports.Logger
	reporter  domain.Reporter
	endpoints map[domain.EndpointID]*endpoint
	parts     map[domain.PartID]*Part
	nextID    domain.PartID
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig, timers ports.Timers, reporter domain.Reporter, logger ports.Logger) *Registry {
	cfg = cfg.withDefaults()
	if reporter == nil {
		reporter = domain.Reporters(nil)
	}
	return &Registry{
		cfg: cfg,
		env: &partEnv{
			timers:     timers,
			reporter:   reporter,
			now:        cfg.Now,
			newJobID:   cfg.NewJobID,
			timeout:    cfg.InstructionTimeout,
			maxRetries: cfg.MaxRetries,
		},
		logger:    logger,
		reporter:  reporter,
		endpoints: make(map[domain.EndpointID]*endpoint),
		parts:     make(map[domain.PartID]*Part),
	}
}

// HandleNet routes a transport event.
func (r *Registry) HandleNet(ev ports.NetEvent) {
	switch ev.Kind {
	case ports.NetConnected:
		r.endpoints[ev.Endpoint] = &endpoint{link: ev.Link}
		r.logger.Debug("endpoint connected", ports.String("remote", ev.Link.Remote()))
	case ports.NetData:
		r.handleData(ev.Endpoint, ev.Data)
	case ports.NetClosed:
		r.handleClosed(ev.Endpoint, ev.Err)
	}
}

func (r *Registry) handleData(id domain.EndpointID, data []byte) {
	ep, ok := r.endpoints[id]
	if !ok {
		return
	}
	if ep.part == nil && len(data) > 0 {
		if _, err := r.Handshake(id, data[0]); err != nil {
			return
		}
		data = data[1:]
	}
	for _, b := range data {
		if ep.part.Faulted() {
			break
		}
		r.deliver(ep.part, b)
	}
	if ep.part.Faulted() && r.cfg.PruneDisconnected {
		delete(r.endpoints, id)
		r.prune(ep.part)
	}
}

func (r *Registry) handleClosed(id domain.EndpointID, cause error) {
	ep, ok := r.endpoints[id]
	if !ok {
		return
	}
	delete(r.endpoints, id)
	if ep.part == nil {
		return
	}
	ep.part.disconnect(cause)
	if r.cfg.PruneDisconnected {
		r.prune(ep.part)
	}
}

// prune removes a part that left service.
func (r *Registry) prune(p *Part) {
	if _, ok := r.parts[p.ID()]; !ok {
		return
	}
	delete(r.parts, p.ID())
	r.logger.Info("part pruned", ports.Int("part", int(p.ID())))
	// Pruning an empty container can open the gate for paused jobs.
	if p.Role() == domain.RoleMaterial && r.CheckMaterialStatus() {
		r.env.timers.Arm(ports.ContinuationTimer, r.cfg.ContinueDelay)
	}
}

// Handshake registers the endpoint as a part according to its first byte.
// An invalid handshake closes the endpoint.
func (r *Registry) Handshake(id domain.EndpointID, b byte) (*Part, error) {
	ep, ok := r.endpoints[id]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %d", id)
	}
	hs, err := wire.DecodeHandshake(b)
	if err != nil {
		r.logger.Warn("handshake rejected",
			ports.String("remote", ep.link.Remote()),
			ports.Uint8("byte", b),
			ports.Err(err),
		)
		r.reporter.Report(domain.Event{
			Kind:      domain.EventPartRejected,
			At:        r.cfg.Now(),
			Transport: ep.link.Transport(),
			Err:       err,
		})
		delete(r.endpoints, id)
		if cerr := ep.link.Close(); cerr != nil {
			r.logger.Debug("close rejected endpoint", ports.Err(cerr))
		}
		return nil, err
	}

	r.nextID++
	p := newPart(r.nextID, hs, id, ep.link, r.env, r.logger)
	ep.part = p
	r.parts[p.ID()] = p
	p.report(domain.Event{Kind: domain.EventPartRegistered})
	p.logger.Info("part registered",
		ports.String("remote", ep.link.Remote()),
		ports.String("transport", ep.link.Transport().String()),
		ports.Int("material", hs.MaterialID),
	)
	return p, nil
}

func (r *Registry) deliver(p *Part, b byte) {
	switch p.Role() {
	case domain.RolePrinthead:
		if err := p.NotifyPrinthead(b, r.CheckMaterialStatus(), r.sinkFor(p)); err != nil {
			p.logger.Debug("print head signal", ports.Uint8("byte", b), ports.Err(err))
		}
	case domain.RoleMaterial:
		refilled, err := p.NotifyMaterial(b)
		if err != nil {
			p.logger.Debug("material signal", ports.Uint8("byte", b), ports.Err(err))
		}
		if refilled {
			r.env.timers.Arm(ports.ContinuationTimer, r.cfg.ContinueDelay)
		}
	}
}

// HandleTimer routes an expired deadline.
func (r *Registry) HandleTimer(id ports.TimerID) {
	if id == ports.ContinuationTimer {
		r.OnContinuationTimer()
		return
	}
	if p, ok := r.parts[domain.PartID(id)]; ok {
		p.OnTimeout()
	}
}

// OnContinuationTimer resumes paused print heads if every container has
// material. Returns the number of jobs resumed.
func (r *Registry) OnContinuationTimer() int {
	if !r.CheckMaterialStatus() {
		r.logger.Debug("continuation skipped, material still missing")
		return 0
	}
	n := 0
	for _, p := range r.ordered() {
		if p.Role() != domain.RolePrinthead || p.State() != domain.StatePaused {
			continue
		}
		if _, err := p.Resume(r.sinkFor(p)); err == nil {
			n++
		}
	}
	return n
}

// CheckMaterialStatus reports whether no material container is empty.
func (r *Registry) CheckMaterialStatus() bool {
	for _, p := range r.parts {
		if p.Role() == domain.RoleMaterial && p.MaterialEmpty() {
			return false
		}
	}
	return true
}

// FreePrinthead returns the lowest-id idle print head.
func (r *Registry) FreePrinthead() (*Part, bool) {
	for _, p := range r.ordered() {
		if p.Role() == domain.RolePrinthead && p.Usable() && p.State() == domain.StateIdle {
			return p, true
		}
	}
	return nil, false
}

// MaterialSource returns the container holding material id, or nil when
// it is not registered or any container is empty.
func (r *Registry) MaterialSource(id int) *Part {
	if !r.CheckMaterialStatus() {
		return nil
	}
	for _, p := range r.ordered() {
		if p.Role() == domain.RoleMaterial && p.Usable() && p.MaterialID() == id {
			return p
		}
	}
	return nil
}

// sinkFor keeps a missing container a nil interface.
func (r *Registry) sinkFor(p *Part) MaterialSink {
	if m := r.MaterialSource(p.MaterialID()); m != nil {
		return m
	}
	return nil
}

// StartPrint binds src to a free print head and sends its first
// instruction. src is closed when the job ends or is rejected.
func (r *Registry) StartPrint(src io.Reader, title string) (domain.JobHandle, error) {
	if !r.CheckMaterialStatus() {
		closeSource(src)
		return domain.JobHandle{}, domain.ErrNoMaterialAvailable
	}
	p, ok := r.FreePrinthead()
	if !ok {
		closeSource(src)
		return domain.JobHandle{}, domain.ErrNoFreePrinthead
	}
	h, err := p.LoadBlueprint(src, title)
	if err != nil {
		closeSource(src)
		return domain.JobHandle{}, err
	}
	if _, err := p.ExecInstr(nil); err != nil {
		return h, err
	}
	return h, nil
}

// StartBenchmark runs probes benchmark probes on a free print head.
func (r *Registry) StartBenchmark(probes int) (domain.PartID, error) {
	p, ok := r.FreePrinthead()
	if !ok {
		return 0, domain.ErrNoFreePrinthead
	}
	if err := p.StartBenchmark(probes); err != nil {
		return 0, err
	}
	return p.ID(), nil
}

// Part returns the part with id.
func (r *Registry) Part(id domain.PartID) (*Part, bool) {
	p, ok := r.parts[id]
	return p, ok
}

// Snapshot returns the status of every part ordered by id.
func (r *Registry) Snapshot() []domain.PartStatus {
	parts := r.ordered()
	out := make([]domain.PartStatus, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.Status())
	}
	return out
}

// Close closes every endpoint. Used on shutdown.
func (r *Registry) Close() {
	for id, ep := range r.endpoints {
		if err := ep.link.Close(); err != nil {
			r.logger.Debug("close endpoint", ports.Err(err))
		}
		delete(r.endpoints, id)
	}
}

func (r *Registry) ordered() []*Part {
	out := make([]*Part, 0, len(r.parts))
	for _, p := range r.parts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func closeSource(src io.Reader) {
	if c, ok := src.(io.Closer); ok {
		_ = c.Close()
	}
}
