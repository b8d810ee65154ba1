package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/fabpanel/pkg/log"
)

// recordingEmitter tracks state change events for testing.
type recordingEmitter struct {
	mu     sync.Mutex
	events []stateChange
}

type stateChange struct {
	previous State
	current  State
	reason   string
}

func (m *recordingEmitter) OnStateChange(previous, current State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stateChange{previous, current, reason})
}

func (m *recordingEmitter) Events() []stateChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stateChange{}, m.events...)
}

func managerIn(state State) *DefaultManager {
	m := NewManager(log.NewNoopLogger(), nil)
	m.state = state
	return m
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStopped, "Stopped"},
		{StateStarting, "Starting"},
		{StateRunning, "Running"},
		{StateStopping, "Stopping"},
		{StateCrashed, "Crashed"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestManager_TransitionTo(t *testing.T) {
	tests := []struct {
		from    State
		to      State
		wantErr error
	}{
		{StateStopped, StateStarting, nil},
		{StateStarting, StateRunning, nil},
		{StateStarting, StateCrashed, nil},
		{StateRunning, StateStopping, nil},
		{StateRunning, StateCrashed, nil},
		{StateStopping, StateStopped, nil},
		{StateCrashed, StateStarting, nil},
		{StateCrashed, StateStopping, nil},
		{StateStopped, StateRunning, ErrNotRunning},
		{StateStopped, StateStopping, ErrNotRunning},
		{StateRunning, StateStarting, ErrAlreadyRunning},
		{StateStarting, StateStopped, ErrAlreadyRunning},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			m := managerIn(tt.from)
			err := m.TransitionTo(tt.to, "test")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("TransitionTo() error = %v, want %v", err, tt.wantErr)
			}
			want := tt.to
			if tt.wantErr != nil {
				want = tt.from
			}
			if m.State() != want {
				t.Errorf("state = %v, want %v", m.State(), want)
			}
		})
	}
}

func TestManager_TransitionTo_EmitsEvents(t *testing.T) {
	emitter := &recordingEmitter{}
	m := NewManager(nil, emitter)

	_ = m.TransitionTo(StateStarting, "start requested")
	_ = m.TransitionTo(StateRunning, "listeners bound")

	events := emitter.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].previous != StateStarting || events[1].current != StateRunning {
		t.Errorf("event = %+v", events[1])
	}
	if events[1].reason != "listeners bound" {
		t.Errorf("reason = %q", events[1].reason)
	}
}

func TestManager_CanStartCanStop(t *testing.T) {
	tests := []struct {
		state    State
		canStart bool
		canStop  bool
	}{
		{StateStopped, true, false},
		{StateStarting, false, true},
		{StateRunning, false, true},
		{StateStopping, false, false},
		{StateCrashed, true, true},
	}
	for _, tt := range tests {
		m := managerIn(tt.state)
		if m.CanStart() != tt.canStart {
			t.Errorf("%v: CanStart() = %v", tt.state, m.CanStart())
		}
		if m.CanStop() != tt.canStop {
			t.Errorf("%v: CanStop() = %v", tt.state, m.CanStop())
		}
	}
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager(nil, nil)
	m.Cancel() // nil-safe

	ctx, cancel := context.WithCancel(context.Background())
	m.SetCancel(cancel)
	m.Cancel()

	select {
	case <-ctx.Done():
	default:
		t.Error("context not cancelled")
	}
}

func TestManager_GoCrashesOnError(t *testing.T) {
	m := managerIn(StateRunning)
	boom := errors.New("listener closed")

	m.Go(context.Background(), "listener", func(context.Context) error { return boom })
	if err := m.WaitWithTimeout(time.Second); err != nil {
		t.Fatalf("WaitWithTimeout() = %v", err)
	}

	if m.State() != StateCrashed {
		t.Errorf("state = %v, want Crashed", m.State())
	}
	if !errors.Is(m.Err(), boom) {
		t.Errorf("Err() = %v, want %v", m.Err(), boom)
	}
}

func TestManager_GoIgnoresCancellation(t *testing.T) {
	m := managerIn(StateRunning)
	ctx, cancel := context.WithCancel(context.Background())

	m.Go(ctx, "loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cancel()

	if err := m.WaitWithTimeout(time.Second); err != nil {
		t.Fatalf("WaitWithTimeout() = %v", err)
	}
	if m.State() != StateRunning {
		t.Errorf("state = %v, want Running", m.State())
	}
	if m.Err() != nil {
		t.Errorf("Err() = %v", m.Err())
	}
}

func TestManager_WaitWithTimeout_Timeout(t *testing.T) {
	m := managerIn(StateRunning)
	release := make(chan struct{})
	defer close(release)

	m.Go(context.Background(), "stuck", func(context.Context) error {
		<-release
		return nil
	})

	if err := m.WaitWithTimeout(20 * time.Millisecond); !errors.Is(err, ErrShutdownTimeout) {
		t.Errorf("WaitWithTimeout() = %v, want ErrShutdownTimeout", err)
	}
}

func TestBackoff(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 300*time.Millisecond)

	d := b.Next()
	if d < 80*time.Millisecond || d > 120*time.Millisecond {
		t.Errorf("first delay = %v, want 100ms ±20%%", d)
	}
	b.Next()
	if b.Current() != 300*time.Millisecond {
		t.Errorf("Current() = %v, want capped at 300ms", b.Current())
	}

	b.Reset()
	if b.Current() != 100*time.Millisecond {
		t.Errorf("Current() after Reset = %v", b.Current())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
}
