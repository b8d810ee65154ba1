// Package deadline implements the timeout subsystem of the event loop.
//
// A Scheduler keeps at most one pending deadline per id. Expired deadlines
// are delivered as Fire values on a channel read by the loop goroutine; the
// loop calls Accept before acting on one, which drops fires that were
// cancelled or replaced after the runtime timer had already expired.
package deadline

import (
	"sync"
	"time"

	"github.com/bft-labs/fabpanel/internal/ports"
)

// Fire is an expired deadline.
type Fire struct {
	ID  ports.TimerID
	gen uint64
}

type entry struct {
	gen   uint64
	timer *time.Timer
}

// Scheduler implements ports.Timers on top of time.AfterFunc.
type Scheduler struct {
	mu      sync.Mutex
	pending map[ports.TimerID]*entry
	gen     uint64

	out       chan Fire
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a scheduler whose fire channel holds up to buffer undelivered fires.
func New(buffer int) *Scheduler {
	return &Scheduler{
		pending: make(map[ports.TimerID]*entry),
		out:     make(chan Fire, buffer),
		done:    make(chan struct{}),
	}
}

// Arm schedules id to fire after d, replacing any pending deadline for id.
func (s *Scheduler) Arm(id ports.TimerID, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.pending[id]; ok {
		e.timer.Stop()
	}
	s.gen++
	f := Fire{ID: id, gen: s.gen}
	s.pending[id] = &entry{
		gen:   f.gen,
		timer: time.AfterFunc(d, func() { s.deliver(f) }),
	}
}

// Cancel discards the pending deadline for id, if any.
func (s *Scheduler) Cancel(id ports.TimerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.pending[id]; ok {
		e.timer.Stop()
		delete(s.pending, id)
	}
}

// Pending reports whether id has an armed deadline.
func (s *Scheduler) Pending(id ports.TimerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// C returns the channel expired deadlines are delivered on.
func (s *Scheduler) C() <-chan Fire {
	return s.out
}

// Accept reports whether f is the live deadline for its id and, if so,
// clears it. Stale fires return false and must be ignored.
func (s *Scheduler) Accept(f Fire) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pending[f.ID]
	if !ok || e.gen != f.gen {
		return false
	}
	delete(s.pending, f.ID)
	return true
}

// Close stops every pending timer and unblocks pending deliveries.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		for id, e := range s.pending {
			e.timer.Stop()
			delete(s.pending, id)
		}
		s.mu.Unlock()
	})
}

func (s *Scheduler) deliver(f Fire) {
	select {
	case s.out <- f:
	case <-s.done:
	}
}

var _ ports.Timers = (*Scheduler)(nil)
