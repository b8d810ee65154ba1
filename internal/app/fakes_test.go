package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fabpanel/internal/domain"
	"github.com/bft-labs/fabpanel/internal/ports"
	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/wire"
)

var errLinkClosed = errors.New("link closed")

// fakeLink records everything sent to a device.
type fakeLink struct {
	mu        sync.Mutex
	transport domain.Transport
	remote    string
	sent      [][]byte
	closed    bool
	sendErr   error
}

func (l *fakeLink) Send(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errLinkClosed
	}
	if l.sendErr != nil {
		return l.sendErr
	}
	l.sent = append(l.sent, append([]byte(nil), b...))
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) Transport() domain.Transport { return l.transport }
func (l *fakeLink) Remote() string              { return l.remote }

func (l *fakeLink) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.sent...)
}

func (l *fakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// fakeTimers records armed deadlines; tests fire them by hand.
type fakeTimers struct {
	armed   map[ports.TimerID]time.Duration
	arms    map[ports.TimerID]int
	cancels map[ports.TimerID]int
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{
		armed:   make(map[ports.TimerID]time.Duration),
		arms:    make(map[ports.TimerID]int),
		cancels: make(map[ports.TimerID]int),
	}
}

func (f *fakeTimers) Arm(id ports.TimerID, d time.Duration) {
	f.armed[id] = d
	f.arms[id]++
}

func (f *fakeTimers) Cancel(id ports.TimerID) {
	delete(f.armed, id)
	f.cancels[id]++
}

func (f *fakeTimers) Pending(id ports.TimerID) bool {
	_, ok := f.armed[id]
	return ok
}

// recorder collects reported events.
type recorder struct {
	events []domain.Event
}

func (r *recorder) Report(ev domain.Event) { r.events = append(r.events, ev) }

func (r *recorder) count(kind domain.EventKind) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind domain.EventKind) (domain.Event, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return domain.Event{}, false
}

// harness drives a Registry without sockets or real timers.
type harness struct {
	t      *testing.T
	reg    *Registry
	timers *fakeTimers
	events *recorder
	now    time.Time
	jobs   int
	nextEP domain.EndpointID
}

func newHarness(t *testing.T, cfg RegistryConfig) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		timers: newFakeTimers(),
		events: &recorder{},
		now:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	cfg.Now = func() time.Time { return h.now }
	cfg.NewJobID = func() string {
		h.jobs++
		return fmt.Sprintf("job-%d", h.jobs)
	}
	h.reg = NewRegistry(cfg, h.timers, h.events, log.NewNoopLogger())
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

// connect opens an endpoint and sends its handshake byte.
func (h *harness) connect(transport domain.Transport, handshake byte) (domain.EndpointID, *fakeLink) {
	h.nextEP++
	link := &fakeLink{transport: transport, remote: "dev"}
	h.reg.HandleNet(ports.NetEvent{Kind: ports.NetConnected, Endpoint: h.nextEP, Link: link})
	h.reg.HandleNet(ports.NetEvent{Kind: ports.NetData, Endpoint: h.nextEP, Data: []byte{handshake}})
	return h.nextEP, link
}

func (h *harness) printhead(transport domain.Transport) (domain.EndpointID, *fakeLink, *Part) {
	ep, link := h.connect(transport, wire.HandshakePrinthead)
	return ep, link, h.reg.endpoints[ep].part
}

func (h *harness) material(id int) (domain.EndpointID, *fakeLink, *Part) {
	ep, link := h.connect(domain.TransportDatagram, byte(id+2))
	return ep, link, h.reg.endpoints[ep].part
}

func (h *harness) recv(ep domain.EndpointID, b ...byte) {
	h.reg.HandleNet(ports.NetEvent{Kind: ports.NetData, Endpoint: ep, Data: b})
}

func (h *harness) fire(id ports.TimerID) {
	require.True(h.t, h.timers.Pending(id), "timer %d not armed", id)
	delete(h.timers.armed, id)
	h.reg.HandleTimer(id)
}

func blueprint(t *testing.T, ins ...wire.Instruction) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := wire.NewBlueprintWriter(&buf)
	require.NoError(t, w.Write(ins...))
	return &buf
}

// closeTracker reports whether the engine closed a blueprint source.
type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}
