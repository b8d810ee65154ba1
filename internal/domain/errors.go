package domain

import (
	"errors"

	"github.com/bft-labs/fabpanel/pkg/wire"
)

// Engine errors. These are returned by the public API and carried in
// events; check them with errors.Is.
var (
	// ErrProtocolViolation marks a device that sent bytes the protocol does
	// not allow. The device is faulted; the engine keeps running.
	ErrProtocolViolation = errors.New("fabpanel: protocol violation")

	// ErrInvalidHandshake is returned for a zero handshake byte.
	ErrInvalidHandshake = wire.ErrInvalidHandshake

	// ErrInvalidBlueprint is returned when a blueprint fails validation.
	ErrInvalidBlueprint = errors.New("fabpanel: invalid blueprint")

	// ErrDeviceTimeout aborts a job on a stream transport when an
	// instruction is not acknowledged in time.
	ErrDeviceTimeout = errors.New("fabpanel: device timeout")

	// ErrDeviceTimeoutExhausted aborts a job on a datagram transport after
	// all retransmissions went unanswered.
	ErrDeviceTimeoutExhausted = errors.New("fabpanel: device timeout, retries exhausted")

	// ErrDeviceFailure aborts a job when a print head reports failure.
	ErrDeviceFailure = errors.New("fabpanel: device reported failure")

	// ErrNoFreePrinthead rejects a request when every print head is busy.
	ErrNoFreePrinthead = errors.New("fabpanel: no free printhead")

	// ErrNoMaterialAvailable rejects a request while any container is empty.
	ErrNoMaterialAvailable = errors.New("fabpanel: no material available")

	// ErrMaterialUnbound aborts a job whose instruction consumes material
	// with no container bound.
	ErrMaterialUnbound = errors.New("fabpanel: no material source bound")

	// ErrMaterialEmpty aborts a job that would consume from an empty container.
	ErrMaterialEmpty = errors.New("fabpanel: material container empty")

	// ErrPartBusy is returned when an operation requires an idle print head.
	ErrPartBusy = errors.New("fabpanel: part busy")

	// ErrNoBlueprint is returned when executing without a loaded blueprint.
	ErrNoBlueprint = errors.New("fabpanel: no blueprint loaded")

	// ErrWrongRole is returned when an operation targets the other device kind.
	ErrWrongRole = errors.New("fabpanel: operation not valid for role")

	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("fabpanel: already running")

	// ErrNotRunning is returned when an operation requires a running instance.
	ErrNotRunning = errors.New("fabpanel: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("fabpanel: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("fabpanel: invalid configuration")
)

// IsResourceUnavailable reports whether err is a synchronous rejection that
// may succeed when retried later.
func IsResourceUnavailable(err error) bool {
	return errors.Is(err, ErrNoFreePrinthead) || errors.Is(err, ErrNoMaterialAvailable)
}
