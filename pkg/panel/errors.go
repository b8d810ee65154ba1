package panel

import (
	"github.com/bft-labs/fabpanel/internal/domain"
	"github.com/bft-labs/fabpanel/pkg/catalog"
	"github.com/bft-labs/fabpanel/pkg/wire"
)

// Errors returned by Panel. Check with errors.Is.
var (
	ErrProtocolViolation      = domain.ErrProtocolViolation
	ErrInvalidHandshake       = domain.ErrInvalidHandshake
	ErrInvalidBlueprint       = domain.ErrInvalidBlueprint
	ErrUnknownOpcode          = wire.ErrUnknownOpcode
	ErrDeviceTimeout          = domain.ErrDeviceTimeout
	ErrDeviceTimeoutExhausted = domain.ErrDeviceTimeoutExhausted
	ErrDeviceFailure          = domain.ErrDeviceFailure
	ErrNoFreePrinthead        = domain.ErrNoFreePrinthead
	ErrNoMaterialAvailable    = domain.ErrNoMaterialAvailable
	ErrMaterialUnbound        = domain.ErrMaterialUnbound
	ErrMaterialEmpty          = domain.ErrMaterialEmpty
	ErrPartBusy               = domain.ErrPartBusy
	ErrNoBlueprint            = domain.ErrNoBlueprint
	ErrAlreadyRunning         = domain.ErrAlreadyRunning
	ErrNotRunning             = domain.ErrNotRunning
	ErrShutdownTimeout        = domain.ErrShutdownTimeout
	ErrInvalidConfig          = domain.ErrInvalidConfig
	ErrBlueprintNotFound      = catalog.ErrNotFound
)

// IsResourceUnavailable reports whether err is a rejection that may
// succeed later (no free print head, or material missing).
func IsResourceUnavailable(err error) bool {
	return domain.IsResourceUnavailable(err)
}
