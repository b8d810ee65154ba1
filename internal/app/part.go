package app

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bft-labs/fabpanel/internal/domain"
	"github.com/bft-labs/fabpanel/internal/ports"
	"github.com/bft-labs/fabpanel/pkg/wire"
)

// MaterialSink is the container a print head draws from while executing a
// material-consuming instruction.
type MaterialSink interface {
	MaterialID() int
	MaterialEmpty() bool
	ConsumeMaterial(units uint8) error
}

// partEnv is shared by every part owned by one registry.
type partEnv struct {
	timers     ports.Timers
	reporter   domain.Reporter
	now        func() time.Time
	newJobID   func() string
	timeout    time.Duration
	maxRetries int
}

// job is the blueprint currently bound to a print head. The reader and the
// metadata are always set and cleared together.
type job struct {
	id           string
	title        string
	blueprint    *wire.BlueprintReader
	instructions int
}

// Part is the state machine of one registered device.
// It is owned by the event loop goroutine and is not safe for concurrent use.
type Part struct {
	id           domain.PartID
	role         domain.Role
	endpoint     domain.EndpointID
	link         ports.Link
	env          *partEnv
	logger       ports.Logger
	registeredAt time.Time

	materialID    int
	materialEmpty bool

	job         *job
	inFlight    bool
	lastCommand []byte
	retryCount  int

	benchRemaining int
	benchProbes    int
	benchStart     time.Time

	connected bool
	faulted   bool
	fault     error
}

func newPart(id domain.PartID, hs wire.Handshake, ep domain.EndpointID, link ports.Link, env *partEnv, logger ports.Logger) *Part {
	return &Part{
		id:           id,
		role:         hs.Role,
		endpoint:     ep,
		link:         link,
		env:          env,
		logger:       logger.With(ports.Int("part", int(id)), ports.String("role", hs.Role.String())),
		registeredAt: env.now(),
		materialID:   hs.MaterialID,
		connected:    true,
	}
}

// ID returns the registry-assigned id.
func (p *Part) ID() domain.PartID { return p.id }

// Role returns the device kind announced in the handshake.
func (p *Part) Role() domain.Role { return p.role }

// Transport returns the delivery semantics of the part's link.
func (p *Part) Transport() domain.Transport { return p.link.Transport() }

// MaterialID returns the bound material for a print head, or the container
// id for a material part.
func (p *Part) MaterialID() int { return p.materialID }

// MaterialEmpty reports whether a material container signalled empty.
func (p *Part) MaterialEmpty() bool { return p.materialEmpty }

// Faulted reports whether the part was taken out of service.
func (p *Part) Faulted() bool { return p.faulted }

// Usable reports whether the part may be selected for new work.
func (p *Part) Usable() bool { return p.connected && !p.faulted }

// State derives the machine state from the job, benchmark and ack flags.
func (p *Part) State() domain.PartState {
	switch {
	case p.benchRemaining > 0:
		return domain.StateBenchmarking
	case p.job == nil:
		return domain.StateIdle
	case p.inFlight:
		return domain.StateExecuting
	default:
		return domain.StatePaused
	}
}

// LoadBlueprint binds a blueprint to an idle print head. The source is
// closed when the job ends.
func (p *Part) LoadBlueprint(src io.Reader, title string) (domain.JobHandle, error) {
	if p.role != domain.RolePrinthead {
		return domain.JobHandle{}, domain.ErrWrongRole
	}
	if p.State() != domain.StateIdle || !p.Usable() {
		return domain.JobHandle{}, domain.ErrPartBusy
	}

	br, err := wire.NewBlueprintReader(src)
	if err != nil {
		return domain.JobHandle{}, fmt.Errorf("%w: %w", domain.ErrInvalidBlueprint, err)
	}

	p.job = &job{id: p.env.newJobID(), title: title, blueprint: br}
	p.report(domain.Event{Kind: domain.EventJobStarted})
	p.logger.Info("job started", ports.String("job", p.job.id), ports.String("title", title))
	return domain.JobHandle{ID: p.job.id, PartID: p.id, Title: title}, nil
}

// ExecInstr reads the next instruction and forwards it. mat is the
// container bound to the head's current material, or nil when none is.
// Returns true when an instruction was sent. A returned error means the
// job (or the part) was aborted; the abort has already been reported.
func (p *Part) ExecInstr(mat MaterialSink) (bool, error) {
	if p.role != domain.RolePrinthead {
		return false, domain.ErrWrongRole
	}
	if p.job == nil {
		return false, domain.ErrNoBlueprint
	}

	in, err := p.job.blueprint.Next()
	if errors.Is(err, io.EOF) {
		p.completeJob()
		return false, nil
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrInvalidBlueprint, err)
		p.abortJob(err)
		return false, err
	}

	if in.Op == wire.OpSetLevel {
		sl, err := in.DecodeSetLevel()
		if err != nil {
			err = fmt.Errorf("%w: %w", domain.ErrInvalidBlueprint, err)
			p.abortJob(err)
			return false, err
		}
		p.materialID = int(sl.MaterialID)
	}

	units := in.MaterialUnits()
	if units > 0 {
		switch {
		case mat == nil || mat.MaterialID() != p.materialID:
			err := fmt.Errorf("%w: material %d", domain.ErrMaterialUnbound, p.materialID)
			p.abortJob(err)
			return false, err
		case mat.MaterialEmpty():
			err := fmt.Errorf("%w: material %d", domain.ErrMaterialEmpty, p.materialID)
			p.abortJob(err)
			return false, err
		}
	}

	cmd := in.Bytes()
	if err := p.link.Send(cmd); err != nil {
		err = fmt.Errorf("send %s: %w", in.Op, err)
		p.fail(err)
		return false, err
	}
	if units > 0 {
		if err := mat.ConsumeMaterial(units); err != nil {
			p.logger.Warn("material signal failed", ports.Int("material", p.materialID), ports.Err(err))
		}
	}

	p.job.instructions++
	p.lastCommand = cmd
	p.retryCount = 0
	p.armTimeout()
	p.logger.Debug("instruction forwarded", ports.String("op", in.String()))
	return true, nil
}

// StartBenchmark sends the first of probes benchmark probes.
func (p *Part) StartBenchmark(probes int) error {
	if p.role != domain.RolePrinthead {
		return domain.ErrWrongRole
	}
	if probes <= 0 {
		return fmt.Errorf("%w: benchmark probes must be positive", domain.ErrInvalidConfig)
	}
	if p.State() != domain.StateIdle || !p.Usable() {
		return domain.ErrPartBusy
	}

	p.benchRemaining = probes
	p.benchProbes = probes
	p.benchStart = p.env.now()
	p.report(domain.Event{Kind: domain.EventBenchmarkStarted, Probes: probes})
	p.logger.Info("benchmark started", ports.Int("probes", probes))
	return p.sendProbe()
}

func (p *Part) sendProbe() error {
	cmd := wire.BenchmarkProbe().Bytes()
	if err := p.link.Send(cmd); err != nil {
		err = fmt.Errorf("send benchmark probe: %w", err)
		p.fail(err)
		return err
	}
	p.lastCommand = cmd
	p.retryCount = 0
	p.armTimeout()
	return nil
}

// NotifyPrinthead handles one acknowledgment byte from a print head.
// available is the global material gate; mat is the container for the
// head's material, or nil.
func (p *Part) NotifyPrinthead(ack byte, available bool, mat MaterialSink) error {
	if p.role != domain.RolePrinthead {
		return domain.ErrWrongRole
	}
	if !p.inFlight {
		if p.Transport() == domain.TransportDatagram {
			// Late answer to a retransmitted instruction.
			p.logger.Debug("ignoring late acknowledgment", ports.Uint8("ack", ack))
			return nil
		}
		err := fmt.Errorf("%w: unsolicited acknowledgment %#x", domain.ErrProtocolViolation, ack)
		p.fail(err)
		return err
	}
	p.disarm()

	if p.benchRemaining > 0 {
		return p.continueBenchmark(ack)
	}

	switch ack {
	case wire.AckSuccess:
		p.report(domain.Event{Kind: domain.EventInstructionAcked})
		if !available {
			p.report(domain.Event{Kind: domain.EventJobPaused})
			p.logger.Info("job paused until material is refilled", ports.String("job", p.job.id))
			return nil
		}
		_, err := p.ExecInstr(mat)
		return err
	case wire.AckFailure:
		p.abortJob(domain.ErrDeviceFailure)
		return domain.ErrDeviceFailure
	default:
		err := fmt.Errorf("%w: unexpected acknowledgment %#x", domain.ErrProtocolViolation, ack)
		p.fail(err)
		return err
	}
}

func (p *Part) continueBenchmark(ack byte) error {
	switch ack {
	case wire.AckSuccess:
	case wire.AckFailure:
		p.abortBenchmark(domain.ErrDeviceFailure)
		return domain.ErrDeviceFailure
	default:
		err := fmt.Errorf("%w: unexpected acknowledgment %#x", domain.ErrProtocolViolation, ack)
		p.fail(err)
		return err
	}

	p.benchRemaining--
	if p.benchRemaining > 0 {
		return p.sendProbe()
	}

	elapsed := p.env.now().Sub(p.benchStart)
	p.lastCommand = nil
	p.report(domain.Event{Kind: domain.EventBenchmarkFinished, Probes: p.benchProbes, Elapsed: elapsed})
	p.logger.Info("benchmark finished",
		ports.Int("probes", p.benchProbes),
		ports.Duration("elapsed", elapsed),
	)
	return nil
}

// NotifyMaterial handles one signal byte from a material container and
// reports whether the container was refilled.
func (p *Part) NotifyMaterial(ack byte) (bool, error) {
	if p.role != domain.RoleMaterial {
		return false, domain.ErrWrongRole
	}
	switch ack {
	case wire.AckFailure:
		p.materialEmpty = true
		p.report(domain.Event{Kind: domain.EventMaterialEmpty})
		p.logger.Warn("material container empty")
		return false, nil
	case wire.AckSuccess:
		p.materialEmpty = false
		p.report(domain.Event{Kind: domain.EventMaterialRefilled})
		p.logger.Info("material container refilled")
		return true, nil
	default:
		err := fmt.Errorf("%w: unexpected material signal %#x", domain.ErrProtocolViolation, ack)
		p.fail(err)
		return false, err
	}
}

// ConsumeMaterial tells a container that units were drawn from it.
func (p *Part) ConsumeMaterial(units uint8) error {
	if p.role != domain.RoleMaterial {
		return domain.ErrWrongRole
	}
	if units == 0 {
		return nil
	}
	if err := p.link.Send([]byte{units}); err != nil {
		err = fmt.Errorf("send consumption: %w", err)
		p.fail(err)
		return err
	}
	return nil
}

// Resume continues a paused job.
func (p *Part) Resume(mat MaterialSink) (bool, error) {
	if p.State() != domain.StatePaused || !p.Usable() {
		return false, nil
	}
	p.report(domain.Event{Kind: domain.EventJobResumed})
	p.logger.Info("job resumed", ports.String("job", p.job.id))
	return p.ExecInstr(mat)
}

// OnTimeout handles an expired acknowledgment deadline. Stream links abort
// at once; datagram links resend the last command until maxRetries
// attempts have gone unanswered.
func (p *Part) OnTimeout() {
	if !p.inFlight {
		return
	}
	p.inFlight = false

	if p.Transport() == domain.TransportStream {
		p.logger.Warn("instruction not acknowledged", ports.Duration("timeout", p.env.timeout))
		p.abort(domain.ErrDeviceTimeout)
		return
	}

	p.retryCount++
	if p.retryCount >= p.env.maxRetries {
		p.logger.Warn("instruction not acknowledged, retries exhausted", ports.Int("attempts", p.retryCount))
		p.abort(domain.ErrDeviceTimeoutExhausted)
		return
	}

	if err := p.link.Send(p.lastCommand); err != nil {
		p.fail(fmt.Errorf("retransmit: %w", err))
		return
	}
	p.armTimeout()
	p.report(domain.Event{Kind: domain.EventRetransmit, Attempt: p.retryCount})
	p.logger.Debug("instruction retransmitted", ports.Int("attempt", p.retryCount))
}

// disconnect records the loss of the part's endpoint.
func (p *Part) disconnect(cause error) {
	if !p.connected {
		return
	}
	p.connected = false
	if cause == nil {
		cause = io.EOF
	}
	p.report(domain.Event{Kind: domain.EventPartDisconnected, Err: cause})
	p.fail(fmt.Errorf("disconnected: %w", cause))
}

// fail takes the part out of service and closes its link.
func (p *Part) fail(err error) {
	if p.faulted {
		return
	}
	p.faulted = true
	p.fault = err
	p.abort(err)
	p.report(domain.Event{Kind: domain.EventPartFaulted, Err: err})
	p.logger.Error("part faulted", ports.Err(err))
	if err := p.link.Close(); err != nil {
		p.logger.Debug("close link", ports.Err(err))
	}
}

func (p *Part) abort(err error) {
	if p.benchRemaining > 0 {
		p.abortBenchmark(err)
		return
	}
	p.abortJob(err)
}

func (p *Part) abortBenchmark(err error) {
	p.disarm()
	done := p.benchProbes - p.benchRemaining
	p.benchRemaining = 0
	p.lastCommand = nil
	p.report(domain.Event{Kind: domain.EventBenchmarkAborted, Probes: done, Err: err})
	p.logger.Warn("benchmark aborted", ports.Int("probes", done), ports.Err(err))
}

func (p *Part) abortJob(err error) {
	if p.job == nil {
		return
	}
	p.disarm()
	p.report(domain.Event{Kind: domain.EventJobAborted, Err: err})
	p.logger.Warn("job aborted",
		ports.String("job", p.job.id),
		ports.Int("instructions", p.job.instructions),
		ports.Err(err),
	)
	p.clearJob()
}

func (p *Part) completeJob() {
	p.disarm()
	p.report(domain.Event{Kind: domain.EventJobCompleted})
	p.logger.Info("job completed",
		ports.String("job", p.job.id),
		ports.Int("instructions", p.job.instructions),
	)
	p.clearJob()
}

func (p *Part) clearJob() {
	if err := p.job.blueprint.Close(); err != nil {
		p.logger.Debug("close blueprint", ports.Err(err))
	}
	p.job = nil
	p.lastCommand = nil
	p.retryCount = 0
}

func (p *Part) armTimeout() {
	p.inFlight = true
	p.env.timers.Arm(ports.TimerID(p.id), p.env.timeout)
}

func (p *Part) disarm() {
	if !p.inFlight {
		return
	}
	p.inFlight = false
	p.env.timers.Cancel(ports.TimerID(p.id))
}

// report fills in the part's identity and publishes ev.
func (p *Part) report(ev domain.Event) {
	if p.env.reporter == nil {
		return
	}
	ev.At = p.env.now()
	ev.PartID = p.id
	ev.Role = p.role
	ev.Transport = p.link.Transport()
	ev.MaterialID = p.materialID
	if p.job != nil {
		ev.JobID = p.job.id
		ev.Title = p.job.title
		ev.Instructions = p.job.instructions
	}
	p.env.reporter.Report(ev)
}

// Status returns a snapshot of the part.
func (p *Part) Status() domain.PartStatus {
	st := domain.PartStatus{
		ID:            p.id,
		Role:          p.role,
		Transport:     p.link.Transport(),
		Remote:        p.link.Remote(),
		State:         p.State(),
		MaterialID:    p.materialID,
		MaterialEmpty: p.materialEmpty,
		BenchmarkLeft: p.benchRemaining,
		RetryCount:    p.retryCount,
		Faulted:       p.faulted,
		Connected:     p.connected,
		RegisteredAt:  p.registeredAt,
	}
	if p.job != nil {
		st.JobID = p.job.id
		st.JobTitle = p.job.title
		st.Instructions = p.job.instructions
	}
	if p.fault != nil {
		st.Fault = p.fault.Error()
	}
	return st
}
