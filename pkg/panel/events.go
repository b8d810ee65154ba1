package panel

import (
	"sync"

	"github.com/bft-labs/fabpanel/internal/domain"
	"github.com/bft-labs/fabpanel/pkg/lifecycle"
)

// State is the lifecycle state of a Panel.
type State = lifecycle.State

// Lifecycle states.
const (
	StateStopped  = lifecycle.StateStopped
	StateStarting = lifecycle.StateStarting
	StateRunning  = lifecycle.StateRunning
	StateStopping = lifecycle.StateStopping
	StateCrashed  = lifecycle.StateCrashed
)

// Engine types re-exported for embedders.
type (
	Event      = domain.Event
	EventKind  = domain.EventKind
	PartID     = domain.PartID
	PartState  = domain.PartState
	PartStatus = domain.PartStatus
	JobHandle  = domain.JobHandle
	Role       = domain.Role
	Transport  = domain.Transport
)

// Device roles and transports.
const (
	RolePrinthead     = domain.RolePrinthead
	RoleMaterial      = domain.RoleMaterial
	TransportStream   = domain.TransportStream
	TransportDatagram = domain.TransportDatagram
)

// Device and job event kinds.
const (
	EventPartRegistered    = domain.EventPartRegistered
	EventPartRejected      = domain.EventPartRejected
	EventPartFaulted       = domain.EventPartFaulted
	EventPartDisconnected  = domain.EventPartDisconnected
	EventJobStarted        = domain.EventJobStarted
	EventInstructionAcked  = domain.EventInstructionAcked
	EventJobPaused         = domain.EventJobPaused
	EventJobResumed        = domain.EventJobResumed
	EventJobCompleted      = domain.EventJobCompleted
	EventJobAborted        = domain.EventJobAborted
	EventMaterialEmpty     = domain.EventMaterialEmpty
	EventMaterialRefilled  = domain.EventMaterialRefilled
	EventRetransmit        = domain.EventRetransmit
	EventBenchmarkStarted  = domain.EventBenchmarkStarted
	EventBenchmarkFinished = domain.EventBenchmarkFinished
	EventBenchmarkAborted  = domain.EventBenchmarkAborted
)

// StateChangeEvent describes a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// EventHandler receives Panel notifications. Device events are delivered
// synchronously on the engine goroutine; implementations must return
// quickly.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnDeviceEvent(Event)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// override only the callbacks you need.
type BaseEventHandler struct{}

// OnStateChange does nothing.
func (BaseEventHandler) OnStateChange(StateChangeEvent) {}

// OnDeviceEvent does nothing.
func (BaseEventHandler) OnDeviceEvent(Event) {}

// hub fans device events out to the handler and subscribers.
type hub struct {
	handler EventHandler
	onState func(State)

	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

func newHub(handler EventHandler) *hub {
	return &hub{handler: handler, subs: make(map[int]func(Event))}
}

// Report implements domain.Reporter.
func (h *hub) Report(ev domain.Event) {
	if h.handler != nil {
		h.handler.OnDeviceEvent(ev)
	}
	h.mu.RLock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (h *hub) subscribe(fn func(Event)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// OnStateChange implements lifecycle.EventEmitter.
func (h *hub) OnStateChange(previous, current lifecycle.State, reason string) {
	if h.onState != nil {
		h.onState(current)
	}
	if h.handler == nil {
		return
	}
	h.handler.OnStateChange(StateChangeEvent{Previous: previous, Current: current, Reason: reason})
}
