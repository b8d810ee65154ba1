package app

import (
	"context"
	"sync"

	"github.com/bft-labs/fabpanel/internal/deadline"
	"github.com/bft-labs/fabpanel/internal/domain"
	"github.com/bft-labs/fabpanel/internal/ports"
)

// Loop serializes every event that touches the registry onto one
// goroutine: transport events, expired deadlines and commands from the
// public API. No registry state is shared across goroutines; readers use
// the snapshot published after each event.
type Loop struct {
	reg    *Registry
	sched  *deadline.Scheduler
	logger ports.Logger

	net  chan ports.NetEvent
	cmds chan command
	done chan struct{}

	mu   sync.RWMutex
	snap []domain.PartStatus
}

type command struct {
	fn   func(*Registry)
	done chan struct{}
}

// NewLoop creates a loop driving reg. sched must be the Timers the
// registry was built with.
func NewLoop(reg *Registry, sched *deadline.Scheduler, logger ports.Logger) *Loop {
	return &Loop{
		reg:    reg,
		sched:  sched,
		logger: logger,
		net:    make(chan ports.NetEvent, 256),
		cmds:   make(chan command),
		done:   make(chan struct{}),
	}
}

// Post hands a transport event to the loop. It blocks until the loop
// accepts it or ctx is done.
func (l *Loop) Post(ctx context.Context, ev ports.NetEvent) error {
	select {
	case <-l.done:
		return domain.ErrNotRunning
	default:
	}
	select {
	case l.net <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return domain.ErrNotRunning
	}
}

// Do runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func(*Registry)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case l.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return domain.ErrNotRunning
	}
	// An accepted command always runs to completion.
	<-cmd.done
	return nil
}

// Run processes events until ctx is cancelled. Endpoints still open are
// closed before it returns.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer l.reg.Close()

	l.publish()
	l.logger.Debug("event loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("event loop stopped")
			return ctx.Err()
		case ev := <-l.net:
			l.reg.HandleNet(ev)
		case f := <-l.sched.C():
			if !l.sched.Accept(f) {
				continue
			}
			l.reg.HandleTimer(f.ID)
		case cmd := <-l.cmds:
			cmd.fn(l.reg)
			l.publish()
			close(cmd.done)
			continue
		}
		l.publish()
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Snapshot returns the part table as of the last processed event.
func (l *Loop) Snapshot() []domain.PartStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.PartStatus, len(l.snap))
	copy(out, l.snap)
	return out
}

func (l *Loop) publish() {
	snap := l.reg.Snapshot()
	l.mu.Lock()
	l.snap = snap
	l.mu.Unlock()
}
