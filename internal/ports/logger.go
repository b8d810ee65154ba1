package ports

import "github.com/bft-labs/fabpanel/pkg/log"

// Logger is the structured logger used by the engine.
type Logger = log.Logger

// Field is a structured log field.
type Field = log.Field

// Field constructors re-exported for engine code.
var (
	String   = log.String
	Int      = log.Int
	Uint8    = log.Uint8
	Bool     = log.Bool
	Duration = log.Duration
	Err      = log.Err
)
