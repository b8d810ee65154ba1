package ports

import "time"

// TimerID names a deadline. ContinuationTimer is reserved; part deadlines
// use the part id.
type TimerID int

// ContinuationTimer is the id of the single debounced resume timer.
const ContinuationTimer TimerID = 0

// Timers schedules deadlines for the event loop. Arming an id that is
// already pending replaces it. Expired deadlines are delivered back to the
// loop, never run on the caller's goroutine.
type Timers interface {
	Arm(id TimerID, d time.Duration)
	Cancel(id TimerID)
}
