package sim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/bft-labs/fabpanel/pkg/lifecycle"
	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/wire"
)

// PrintheadConfig configures a simulated print head.
type PrintheadConfig struct {
	// Addr is the panel's stream address.
	Addr string

	// LineDelay is how long a Line takes to draw.
	LineDelay time.Duration

	// OnInstruction, if set, sees every executed instruction.
	OnInstruction func(wire.Instruction)
}

// Printhead executes instructions received over TCP and acknowledges each.
type Printhead struct {
	cfg    PrintheadConfig
	logger log.Logger

	executed atomic.Int64
	failed   atomic.Int64
}

// NewPrinthead creates a print head.
func NewPrinthead(cfg PrintheadConfig, logger log.Logger) *Printhead {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Printhead{
		cfg:    cfg,
		logger: logger.With(log.String("device", "printhead")),
	}
}

// Executed returns the number of acknowledged instructions.
func (p *Printhead) Executed() int64 { return p.executed.Load() }

// Failed returns the number of instructions answered with a failure.
func (p *Printhead) Failed() int64 { return p.failed.Load() }

// Run connects to the panel and serves instructions until ctx is done.
// A lost connection is redialled with backoff.
func (p *Printhead) Run(ctx context.Context) error {
	backoff := lifecycle.NewBackoff(100*time.Millisecond, 5*time.Second)
	for {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", p.cfg.Addr)
		if err == nil {
			backoff.Reset()
			err = p.session(ctx, conn)
		}
		if ctx.Err() != nil {
			return nil
		}
		p.logger.Warn("panel connection lost", log.Err(err), log.Duration("retry_in", backoff.Current()))
		if werr := backoff.Wait(ctx); werr != nil {
			return nil
		}
	}
}

func (p *Printhead) session(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	if _, err := conn.Write([]byte{wire.HandshakePrinthead}); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	p.logger.Info("registered as printhead", log.String("panel", conn.RemoteAddr().String()))

	r := bufio.NewReader(conn)
	for {
		op, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("connection closed by panel")
			}
			return err
		}

		ack := wire.AckSuccess
		in, err := readPayload(r, wire.Opcode(op))
		switch {
		case errors.Is(err, wire.ErrUnknownOpcode):
			p.logger.Warn("unknown instruction", log.Int("opcode", int(op)))
			ack = wire.AckFailure
		case err != nil:
			return fmt.Errorf("read %s: %w", wire.Opcode(op), err)
		default:
			if err := p.execute(ctx, in); err != nil {
				return err
			}
		}

		if _, err := conn.Write([]byte{ack}); err != nil {
			return fmt.Errorf("ack: %w", err)
		}
		if ack == wire.AckSuccess {
			p.executed.Add(1)
		} else {
			p.failed.Add(1)
		}
	}
}

func (p *Printhead) execute(ctx context.Context, in wire.Instruction) error {
	p.logger.Debug("executing", log.String("instruction", in.String()))
	if in.Op == wire.OpLine && p.cfg.LineDelay > 0 {
		t := time.NewTimer(p.cfg.LineDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.cfg.OnInstruction != nil {
		p.cfg.OnInstruction(in)
	}
	return nil
}

// readPayload reads the payload belonging to op.
func readPayload(r io.Reader, op wire.Opcode) (wire.Instruction, error) {
	n, err := wire.PayloadSize(op)
	if err != nil {
		return wire.Instruction{}, err
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return wire.Instruction{}, err
	}
	return wire.Instruction{Op: op, Payload: payload}, nil
}
