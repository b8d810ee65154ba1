// Package natsbridge connects a panel to the job queue used by the
// fabrication dashboards. It takes "<fabId>;<blueprint>;<title>" requests
// from the job subject, prints the named catalog blueprint, and narrates
// outcomes on the feedback and info subjects.
//
// Jobs rejected because no print head is free or material is missing are
// queued and retried in arrival order.
package natsbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/bft-labs/fabpanel/pkg/lifecycle"
	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/panel"
)

// Default subjects.
const (
	DefaultJobSubject      = "queueJob"
	DefaultFeedbackSubject = "queueFeedback"
	DefaultInfoSubject     = "printInfo"
)

// Config holds configuration options for the bridge.
type Config struct {
	// URL is the NATS server.
	// Default: nats://127.0.0.1:4222
	URL string

	// FabID is the fabricator id this panel answers to. Jobs for other
	// fabricators are ignored.
	FabID int

	// Subjects. Defaults: queueJob, queueFeedback, printInfo.
	JobSubject      string
	FeedbackSubject string
	InfoSubject     string

	// RetryInterval is the poll period for queued jobs.
	// Default: 1 second
	RetryInterval time.Duration

	// MaxQueue bounds the retry queue.
	// Default: 1000
	MaxQueue int

	// IntakeRate and IntakeBurst limit accepted job messages per second.
	// Defaults: 50 and 50
	IntakeRate  float64
	IntakeBurst int

	// Dialer opens the connection. Default: DialNATS.
	Dialer Dialer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		JobSubject:      DefaultJobSubject,
		FeedbackSubject: DefaultFeedbackSubject,
		InfoSubject:     DefaultInfoSubject,
		RetryInterval:   time.Second,
		MaxQueue:        1000,
		IntakeRate:      50,
		IntakeBurst:     50,
	}
}

func (c *Config) setDefaults() {
	def := DefaultConfig()
	if c.URL == "" {
		c.URL = def.URL
	}
	if c.JobSubject == "" {
		c.JobSubject = def.JobSubject
	}
	if c.FeedbackSubject == "" {
		c.FeedbackSubject = def.FeedbackSubject
	}
	if c.InfoSubject == "" {
		c.InfoSubject = def.InfoSubject
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = def.RetryInterval
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = def.MaxQueue
	}
	if c.IntakeRate <= 0 {
		c.IntakeRate = def.IntakeRate
	}
	if c.IntakeBurst <= 0 {
		c.IntakeBurst = def.IntakeBurst
	}
}

type outbound struct {
	subject string
	data    []byte
}

// Plugin implements the messaging bridge.
type Plugin struct {
	cfg     Config
	limiter *rate.Limiter

	engine      panel.Engine
	logger      log.Logger
	unsubscribe func()
	out         chan outbound
	kick        chan struct{}
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	// mu serializes submissions so queued jobs keep their order.
	mu    sync.Mutex
	queue []Job

	connMu sync.Mutex
	conn   Conn
	unsub  func() error
}

// New creates a bridge. Zero fields in cfg take their defaults.
func New(cfg Config) *Plugin {
	cfg.setDefaults()
	return &Plugin{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.IntakeRate), cfg.IntakeBurst),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "natsbridge"
}

// Initialize subscribes to engine events and starts connecting. A broker
// that is down at startup is retried with backoff; it does not fail the
// panel.
func (p *Plugin) Initialize(ctx context.Context, cfg panel.PluginConfig) error {
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	p.logger = p.logger.With(log.String("component", "natsbridge"))
	p.engine = cfg.Engine
	if p.cfg.Dialer == nil {
		p.cfg.Dialer = DialNATS(fmt.Sprintf("fabpanel-%d", p.cfg.FabID), p.logger)
	}

	p.out = make(chan outbound, 256)
	p.kick = make(chan struct{}, 1)

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.unsubscribe = p.engine.Subscribe(p.onEvent)

	p.wg.Add(3)
	go p.connectLoop(runCtx)
	go p.publishLoop(runCtx)
	go p.retryLoop(runCtx)
	return nil
}

// Shutdown stops the workers and closes the connection. Queued jobs are
// dropped.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.unsubscribe()
	p.cancel()
	p.wg.Wait()

	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.unsub != nil {
		_ = p.unsub()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn, p.unsub = nil, nil

	p.mu.Lock()
	if n := len(p.queue); n > 0 {
		p.logger.Warn("dropping queued jobs", log.Int("count", n))
	}
	p.queue = nil
	p.mu.Unlock()
	return nil
}

// Queued returns the jobs waiting for a free print head.
func (p *Plugin) Queued() []Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Job(nil), p.queue...)
}

func (p *Plugin) connectLoop(ctx context.Context) {
	defer p.wg.Done()
	backoff := lifecycle.NewBackoff(500*time.Millisecond, 30*time.Second)
	for {
		conn, err := p.cfg.Dialer(p.cfg.URL)
		if err == nil {
			unsub, serr := conn.Subscribe(p.cfg.JobSubject, func(data []byte) { p.handleJob(ctx, data) })
			if serr == nil {
				p.connMu.Lock()
				p.conn, p.unsub = conn, unsub
				p.connMu.Unlock()
				p.logger.Info("job queue connected",
					log.String("url", p.cfg.URL),
					log.String("subject", p.cfg.JobSubject))
				return
			}
			conn.Close()
			err = serr
		}
		p.logger.Warn("job queue unavailable", log.String("url", p.cfg.URL), log.Err(err),
			log.Duration("retry_in", backoff.Current()))
		if backoff.Wait(ctx) != nil {
			return
		}
	}
}

func (p *Plugin) handleJob(ctx context.Context, data []byte) {
	job, err := ParseJob(string(data))
	if err != nil {
		p.feedback("invalid;%s", err)
		return
	}
	if job.FabID != p.cfg.FabID {
		return
	}
	if !p.limiter.Allow() {
		p.feedback("rejected;%s;rate limited", job.Title)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) > 0 {
		p.enqueueLocked(job)
		return
	}
	if err := p.attempt(ctx, job); err != nil && panel.IsResourceUnavailable(err) {
		p.enqueueLocked(job)
	}
}

func (p *Plugin) enqueueLocked(job Job) {
	if len(p.queue) >= p.cfg.MaxQueue {
		p.feedback("rejected;%s;queue full", job.Title)
		return
	}
	p.queue = append(p.queue, job)
	p.feedback("queued;%s;%d", job.Title, len(p.queue))
}

// attempt submits job once. Resource errors are returned without feedback
// so the caller can queue the job.
func (p *Plugin) attempt(ctx context.Context, job Job) error {
	h, err := p.engine.PrintNamed(ctx, job.Blueprint, job.Title)
	switch {
	case err == nil:
		p.feedback("accepted;%s;%s", job.Title, h.ID)
	case panel.IsResourceUnavailable(err):
	default:
		p.feedback("failed;%s;%s", job.Title, err)
	}
	return err
}

// retryLoop drains the queue on every tick and after each finished job.
func (p *Plugin) retryLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.kick:
		}
		p.drain(ctx)
	}
}

func (p *Plugin) drain(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) > 0 {
		if err := p.attempt(ctx, p.queue[0]); err != nil && panel.IsResourceUnavailable(err) {
			return
		}
		p.queue = p.queue[1:]
	}
}

// onEvent runs on the engine goroutine and must not block.
func (p *Plugin) onEvent(ev panel.Event) {
	switch ev.Kind {
	case panel.EventJobCompleted:
		p.info("Done: %s", ev.Title)
		p.wake()
	case panel.EventJobAborted:
		p.info("Aborted: %s: %v", ev.Title, ev.Err)
		p.wake()
	case panel.EventJobPaused:
		p.info("Paused: %s: waiting for material", ev.Title)
	case panel.EventMaterialRefilled:
		p.wake()
	case panel.EventBenchmarkFinished:
		p.info("Benchmark: %d probes in %s", ev.Probes, ev.Elapsed)
		p.wake()
	case panel.EventPartRegistered:
		p.wake()
	}
}

func (p *Plugin) wake() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Plugin) feedback(format string, args ...any) {
	p.send(p.cfg.FeedbackSubject, fmt.Sprintf(format, args...))
}

func (p *Plugin) info(format string, args ...any) {
	p.send(p.cfg.InfoSubject, fmt.Sprintf(format, args...))
}

func (p *Plugin) send(subject, msg string) {
	select {
	case p.out <- outbound{subject: subject, data: []byte(msg)}:
	default:
		p.logger.Warn("outbound queue full, dropping message", log.String("subject", subject))
	}
}

func (p *Plugin) publishLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-p.out:
			p.connMu.Lock()
			conn := p.conn
			p.connMu.Unlock()
			if conn == nil {
				p.logger.Debug("not connected, dropping message", log.String("subject", m.subject))
				continue
			}
			if err := conn.Publish(m.subject, m.data); err != nil {
				p.logger.Warn("publish failed", log.String("subject", m.subject), log.Err(err))
			}
		}
	}
}

// Ensure Plugin implements panel.Plugin.
var _ panel.Plugin = (*Plugin)(nil)
