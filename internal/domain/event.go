package domain

import "time"

// EventKind names a notification emitted by the engine.
type EventKind int

const (
	EventPartRegistered EventKind = iota
	EventPartRejected
	EventPartFaulted
	EventPartDisconnected
	EventJobStarted
	EventInstructionAcked
	EventJobPaused
	EventJobResumed
	EventJobCompleted
	EventJobAborted
	EventMaterialEmpty
	EventMaterialRefilled
	EventRetransmit
	EventBenchmarkStarted
	EventBenchmarkFinished
	EventBenchmarkAborted
)

var eventKindNames = map[EventKind]string{
	EventPartRegistered:    "part_registered",
	EventPartRejected:      "part_rejected",
	EventPartFaulted:       "part_faulted",
	EventPartDisconnected:  "part_disconnected",
	EventJobStarted:        "job_started",
	EventInstructionAcked:  "instruction_acked",
	EventJobPaused:         "job_paused",
	EventJobResumed:        "job_resumed",
	EventJobCompleted:      "job_completed",
	EventJobAborted:        "job_aborted",
	EventMaterialEmpty:     "material_empty",
	EventMaterialRefilled:  "material_refilled",
	EventRetransmit:        "retransmit",
	EventBenchmarkStarted:  "benchmark_started",
	EventBenchmarkFinished: "benchmark_finished",
	EventBenchmarkAborted:  "benchmark_aborted",
}

// String returns the snake_case event name.
func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is a notification about a device or job. Fields not relevant to
// Kind are left zero.
type Event struct {
	Kind       EventKind
	At         time.Time
	PartID     PartID
	Role       Role
	Transport  Transport
	MaterialID int

	JobID        string
	Title        string
	Instructions int

	// Probes is the benchmark probe count; Elapsed its duration.
	Probes  int
	Elapsed time.Duration

	// Attempt is the retransmission number for EventRetransmit.
	Attempt int

	Err error
}

// Reporter receives engine events. Implementations are called from the
// event loop goroutine and must not block.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report calls f(ev).
func (f ReporterFunc) Report(ev Event) { f(ev) }

// Reporters fans an event out to several reporters in order.
type Reporters []Reporter

// Report forwards ev to every reporter.
func (rs Reporters) Report(ev Event) {
	for _, r := range rs {
		if r != nil {
			r.Report(ev)
		}
	}
}
