package sim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bft-labs/fabpanel/pkg/lifecycle"
	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/wire"
)

// Default container levels.
const (
	DefaultInitialLevel = 10
	DefaultRefillLevel  = 20
	DefaultLowWater     = 2
)

// MaterialConfig configures a simulated material container.
type MaterialConfig struct {
	// Addr is the panel's datagram address.
	Addr string

	// MaterialID is announced in the handshake.
	MaterialID int

	// InitialLevel, RefillLevel and LowWater are in material units.
	InitialLevel int
	RefillLevel  int
	LowWater     int

	// AutoRefill refills this long after running low. Zero waits for Refill.
	AutoRefill time.Duration
}

func (c *MaterialConfig) setDefaults() {
	if c.InitialLevel == 0 {
		c.InitialLevel = DefaultInitialLevel
	}
	if c.RefillLevel == 0 {
		c.RefillLevel = DefaultRefillLevel
	}
	if c.LowWater == 0 {
		c.LowWater = DefaultLowWater
	}
}

// Material tracks a fill level, reports empty when it falls to the low-water
// mark and reports refilled once topped up.
type Material struct {
	cfg       MaterialConfig
	handshake byte
	logger    log.Logger
	refill    chan struct{}

	mu      sync.Mutex
	level   int
	empty   bool
	refills int
}

// NewMaterial creates a container.
func NewMaterial(cfg MaterialConfig, logger log.Logger) (*Material, error) {
	cfg.setDefaults()
	hs, err := wire.EncodeHandshake(wire.Handshake{Role: wire.RoleMaterial, MaterialID: cfg.MaterialID})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Material{
		cfg:       cfg,
		handshake: hs,
		logger:    logger.With(log.String("device", "material"), log.Int("material", cfg.MaterialID)),
		refill:    make(chan struct{}, 1),
		level:     cfg.InitialLevel,
	}, nil
}

// Level returns the current fill level.
func (m *Material) Level() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Empty reports whether the container has signalled empty.
func (m *Material) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.empty
}

// Refills returns how many times the container was topped up.
func (m *Material) Refills() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refills
}

// Refill tops the container up. It is a no-op unless the container is empty.
func (m *Material) Refill() {
	select {
	case m.refill <- struct{}{}:
	default:
	}
}

// Run registers with the panel and tracks consumption until ctx is done.
func (m *Material) Run(ctx context.Context) error {
	backoff := lifecycle.NewBackoff(100*time.Millisecond, 5*time.Second)
	for {
		err := m.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		m.logger.Warn("panel link lost", log.Err(err), log.Duration("retry_in", backoff.Current()))
		if werr := backoff.Wait(ctx); werr != nil {
			return nil
		}
	}
}

func (m *Material) session(ctx context.Context) error {
	raddr, err := net.ResolveUDPAddr("udp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", m.cfg.Addr, err)
	}
	// A connected socket drops datagrams from anyone but the panel.
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{m.handshake}); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	m.logger.Info("registered as material container", log.Int("level", m.Level()))

	// Each session dials from a new local port and the panel sees a fresh
	// handshake. The current emptiness is repeated so it does not assume a
	// full container.
	if m.Empty() {
		if _, err := conn.Write([]byte{wire.AckFailure}); err != nil {
			return err
		}
	}

	usage := make(chan byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		buf := make([]byte, 16)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				readErr <- err
				return
			}
			for _, b := range buf[:n] {
				select {
				case usage <- b:
				case <-done:
					return
				}
			}
		}
	}()

	var autoRefill <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		case units := <-usage:
			if m.consume(int(units)) {
				m.logger.Info("nearly empty, halting", log.Int("level", m.Level()))
				if _, err := conn.Write([]byte{wire.AckFailure}); err != nil {
					return err
				}
				if m.cfg.AutoRefill > 0 {
					autoRefill = time.After(m.cfg.AutoRefill)
				}
			}
		case <-autoRefill:
			autoRefill = nil
			m.Refill()
		case <-m.refill:
			if !m.topUp() {
				continue
			}
			m.logger.Info("refilled", log.Int("level", m.Level()))
			if _, err := conn.Write([]byte{wire.AckSuccess}); err != nil {
				return err
			}
		}
	}
}

// consume subtracts units and reports whether the container just ran low.
func (m *Material) consume(units int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level -= units
	m.logger.Debug("material used", log.Int("units", units), log.Int("level", m.level))
	if m.empty || m.level > m.cfg.LowWater {
		return false
	}
	m.empty = true
	return true
}

func (m *Material) topUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.empty {
		return false
	}
	m.level = m.cfg.RefillLevel
	m.empty = false
	m.refills++
	return true
}
