package deadline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fabpanel/internal/ports"
)

func recv(t *testing.T, s *Scheduler, within time.Duration) (Fire, bool) {
	t.Helper()
	select {
	case f := <-s.C():
		return f, true
	case <-time.After(within):
		return Fire{}, false
	}
}

func TestScheduler_ArmFires(t *testing.T) {
	s := New(4)
	defer s.Close()

	s.Arm(7, 5*time.Millisecond)
	assert.True(t, s.Pending(7))

	f, ok := recv(t, s, time.Second)
	require.True(t, ok, "deadline never fired")
	assert.Equal(t, ports.TimerID(7), f.ID)
	assert.True(t, s.Accept(f))
	assert.False(t, s.Pending(7))
	assert.False(t, s.Accept(f), "a fire is accepted once")
}

func TestScheduler_CancelPreventsFire(t *testing.T) {
	s := New(4)
	defer s.Close()

	s.Arm(1, 5*time.Millisecond)
	s.Cancel(1)
	assert.False(t, s.Pending(1))

	_, ok := recv(t, s, 50*time.Millisecond)
	assert.False(t, ok)
}

func TestScheduler_RearmReplaces(t *testing.T) {
	s := New(4)
	defer s.Close()

	s.Arm(ports.ContinuationTimer, time.Millisecond)
	// Let the first timer expire before re-arming so its fire is stale.
	first, ok := recv(t, s, time.Second)
	require.True(t, ok)

	s.Arm(ports.ContinuationTimer, 5*time.Millisecond)
	assert.False(t, s.Accept(first), "replaced deadline must be dropped")

	second, ok := recv(t, s, time.Second)
	require.True(t, ok)
	assert.True(t, s.Accept(second))

	_, ok = recv(t, s, 30*time.Millisecond)
	assert.False(t, ok, "only one fire per arm")
}

func TestScheduler_CloseUnblocksDelivery(t *testing.T) {
	s := New(0)
	s.Arm(3, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	s.Close()
	s.Close()
	assert.False(t, s.Pending(3))
}
