package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const helpDescription = `
Coordinate print heads and material containers from one panel.

Print heads connect over TCP, material containers over UDP. The panel streams
blueprint instructions one at a time, pauses jobs while material runs out and
resumes them after a refill.

Highlights:
  - Interactive console: p prints the default blueprint, b benchmarks, q quits.
  - REST API, websocket live feed and Prometheus metrics on --rest-addr.
  - Optional NATS bridge takes jobs from a dashboard queue.
  - Configure via ~/.fabpanel/config.toml, FABPANEL_* variables, or flags.
`

var exampleUsage = strings.TrimSpace(`
  fabpanel --blueprint-dir ./blueprints
  fabpanel --simulate --no-console
  fabpanel status --panel http://printer-1:8080
  fabpanel print cube.3dbp --title cube
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func versionString() string {
	return fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH)
}

func main() {
	root := newRootCmd()
	root.AddCommand(newStatusCmd(), newPrintCmd(), newBenchmarkCmd(), newBlueprintsCmd())

	if err := root.Execute(); err != nil {
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		log.Error().Err(err).Msg("fabpanel")
		os.Exit(1)
	}
}
