// Package console is the operator's line-oriented control loop: "p" prints
// the default blueprint, "b" benchmarks, "s" shows status and "q" quits.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/panel"
)

const pluginName = "console"

// Config configures the console.
type Config struct {
	In  io.Reader
	Out io.Writer

	// DefaultBlueprint is printed by a bare "p".
	DefaultBlueprint string

	// Quit is called for "q" and at end of input.
	Quit func()
}

// Console reads commands and drives the engine. It is a panel plugin so it
// only accepts input while the engine runs.
type Console struct {
	panel.BasePlugin
	cfg Config

	mu     sync.Mutex
	engine panel.Engine
	logger log.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a console.
func New(cfg Config) *Console {
	if cfg.DefaultBlueprint == "" {
		cfg.DefaultBlueprint = "modell"
	}
	if cfg.Quit == nil {
		cfg.Quit = func() {}
	}
	return &Console{
		BasePlugin: panel.BasePlugin{PluginName: pluginName},
		cfg:        cfg,
	}
}

// Initialize starts reading input.
func (c *Console) Initialize(ctx context.Context, pc panel.PluginConfig) error {
	if c.cfg.In == nil || c.cfg.Out == nil {
		return errors.New("console: input and output are required")
	}
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.engine = pc.Engine
	c.logger = pc.Logger
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.banner()
	go func() {
		defer close(done)
		c.loop(ctx)
	}()
	return nil
}

// Shutdown stops handling input. A read already blocked on In is abandoned.
func (c *Console) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Done is closed when the input loop exits.
func (c *Console) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Console) banner() {
	fmt.Fprintln(c.cfg.Out, "Fabrication panel ready.")
	fmt.Fprintln(c.cfg.Out, "  p [name]    print a blueprint (default "+c.cfg.DefaultBlueprint+")")
	fmt.Fprintln(c.cfg.Out, "  b [probes]  benchmark a print head")
	fmt.Fprintln(c.cfg.Out, "  s           show parts")
	fmt.Fprintln(c.cfg.Out, "  q           quit")
}

func (c *Console) loop(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.cfg.In)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				c.cfg.Quit()
				return
			}
			if quit := c.Handle(ctx, line); quit {
				c.cfg.Quit()
				return
			}
		}
	}
}

// Handle executes one command line and reports whether it was "q".
func (c *Console) Handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	switch fields[0] {
	case "q":
		fmt.Fprintln(c.cfg.Out, "Shutting down")
		return true
	case "p":
		name := c.cfg.DefaultBlueprint
		if len(fields) > 1 {
			name = fields[1]
		}
		h, err := engine.PrintNamed(ctx, name, name)
		if err != nil {
			c.reportErr(err)
			return false
		}
		fmt.Fprintf(c.cfg.Out, "Printing %s on part %d (job %s)\n", h.Title, h.PartID, h.ID)
	case "b":
		probes := 0
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n <= 0 {
				fmt.Fprintln(c.cfg.Out, "Probe count must be a positive number")
				return false
			}
			probes = n
		}
		id, err := engine.StartBenchmark(ctx, probes)
		if err != nil {
			c.reportErr(err)
			return false
		}
		fmt.Fprintf(c.cfg.Out, "Benchmark running on part %d\n", id)
	case "s":
		c.printParts(engine.Snapshot())
	default:
		fmt.Fprintln(c.cfg.Out, "Unknown input")
	}
	return false
}

func (c *Console) reportErr(err error) {
	switch {
	case errors.Is(err, panel.ErrNoFreePrinthead):
		fmt.Fprintln(c.cfg.Out, "Printhead[s] busy")
	case errors.Is(err, panel.ErrNoMaterialAvailable):
		fmt.Fprintln(c.cfg.Out, "Material empty, refill first")
	default:
		fmt.Fprintf(c.cfg.Out, "Error: %v\n", err)
	}
	if c.logger != nil {
		c.logger.Debug("console command failed", log.Err(err))
	}
}

func (c *Console) printParts(parts []panel.PartStatus) {
	if len(parts) == 0 {
		fmt.Fprintln(c.cfg.Out, "No devices connected")
		return
	}
	for _, p := range parts {
		line := fmt.Sprintf("%3d  %-9s %-8s %-10s", p.ID, p.Role, p.Transport, p.State)
		if p.JobTitle != "" {
			line += fmt.Sprintf("  %s (%d done)", p.JobTitle, p.Instructions)
		}
		if p.MaterialEmpty {
			line += "  EMPTY"
		}
		if p.Faulted {
			line += "  fault: " + p.Fault
		}
		fmt.Fprintln(c.cfg.Out, line)
	}
}

var _ panel.Plugin = (*Console)(nil)
