package domain

import (
	"time"

	"github.com/bft-labs/fabpanel/pkg/wire"
)

// PartID identifies a registered device. Ids start at 1 and are never reused.
type PartID int

// EndpointID identifies a transport endpoint (a TCP connection or a UDP
// remote address) before and after its handshake.
type EndpointID uint64

// Role is the kind of device.
type Role = wire.Role

const (
	RolePrinthead = wire.RolePrinthead
	RoleMaterial  = wire.RoleMaterial
)

// UnknownMaterial is the material id of a print head that has not yet read
// a SetLevel instruction.
const UnknownMaterial = -1

// Transport is the delivery semantics of a device link.
type Transport int

const (
	// TransportStream is a reliable ordered byte stream (TCP).
	// Unacknowledged instructions abort the job immediately.
	TransportStream Transport = iota

	// TransportDatagram is an unreliable datagram socket (UDP).
	// Unacknowledged instructions are retransmitted.
	TransportDatagram
)

// String returns the transport name.
func (t Transport) String() string {
	switch t {
	case TransportStream:
		return "stream"
	case TransportDatagram:
		return "datagram"
	default:
		return "unknown"
	}
}

// PartState is the derived state of a device state machine.
type PartState int

const (
	// StateIdle has no blueprint and no benchmark.
	StateIdle PartState = iota

	// StateExecuting has an instruction in flight.
	StateExecuting

	// StatePaused keeps its blueprint, waiting on material.
	StatePaused

	// StateBenchmarking is running benchmark probes.
	StateBenchmarking
)

// String returns a human-readable representation of the state.
func (s PartState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateExecuting:
		return "Executing"
	case StatePaused:
		return "Paused"
	case StateBenchmarking:
		return "Benchmarking"
	default:
		return "Unknown"
	}
}

// JobHandle identifies an accepted print job.
type JobHandle struct {
	ID     string
	PartID PartID
	Title  string
}

// PartStatus is a point-in-time copy of one device's state.
type PartStatus struct {
	ID            PartID
	Role          Role
	Transport     Transport
	Remote        string
	State         PartState
	MaterialID    int
	MaterialEmpty bool
	JobID         string
	JobTitle      string
	Instructions  int
	BenchmarkLeft int
	RetryCount    int
	Faulted       bool
	Connected     bool
	Fault         string
	RegisteredAt  time.Time
}
