package cliconfig

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/bft-labs/fabpanel/pkg/log"
)

// Logger builds the process logger from the configured level and format.
func (c Config) Logger(w io.Writer) (zerolog.Logger, error) {
	return log.NewZerologFromConfig(w, c.LogLevel, c.LogFormat)
}
