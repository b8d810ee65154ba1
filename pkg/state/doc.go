// Package state provides the wire views of the engine's part table.
//
// The engine publishes a snapshot of every registered device after each
// event it processes. This package turns those snapshots into JSON-friendly
// records for the REST API, the websocket feed and the HTTP client.
//
// # Usage
//
//	parts := state.FromStatuses(panel.Snapshot())
//	summary := state.Summarize(panel.Snapshot())
//	if summary.Busy {
//	    // every print head has a job
//	}
//
// # Field Names
//
// JSON uses snake_case field names. Summary keeps the "busy" and "matempty"
// keys the dashboard has always polled.
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package state
