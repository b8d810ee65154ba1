package natsbridge

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/panel"
	"github.com/bft-labs/fabpanel/pkg/state"
)

// fakeConn is an in-memory broker connection.
type fakeConn struct {
	mu        sync.Mutex
	handler   func([]byte)
	published map[string][]string
	closed    bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{published: map[string][]string{}}
}

func (c *fakeConn) Subscribe(subject string, handler func([]byte)) (func() error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
	return func() error { return nil }, nil
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[subject] = append(c.published[subject], string(data))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) deliver(msg string) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h([]byte(msg))
}

func (c *fakeConn) subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

func (c *fakeConn) messages(subject string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.published[subject]...)
}

// fakeEngine answers PrintNamed from a script of errors.
type fakeEngine struct {
	mu      sync.Mutex
	errs    []error
	printed []string
	sub     func(panel.Event)
}

func (e *fakeEngine) StartPrint(context.Context, io.Reader, string) (panel.JobHandle, error) {
	return panel.JobHandle{}, errors.New("unused")
}

func (e *fakeEngine) PrintNamed(_ context.Context, name, title string) (panel.JobHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) > 0 {
		err := e.errs[0]
		e.errs = e.errs[1:]
		if err != nil {
			return panel.JobHandle{}, err
		}
	}
	e.printed = append(e.printed, name+"/"+title)
	return panel.JobHandle{ID: "job-" + title, PartID: 1, Title: title}, nil
}

func (e *fakeEngine) StartBenchmark(context.Context, int) (panel.PartID, error) { return 0, nil }
func (e *fakeEngine) Snapshot() []panel.PartStatus                              { return nil }
func (e *fakeEngine) Summary() state.Summary                                    { return state.Summary{} }

func (e *fakeEngine) Subscribe(fn func(panel.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sub = fn
	return func() {}
}

func (e *fakeEngine) emit(ev panel.Event) {
	e.mu.Lock()
	fn := e.sub
	e.mu.Unlock()
	fn(ev)
}

func (e *fakeEngine) Scripted() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

func (e *fakeEngine) Printed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.printed...)
}

func startBridge(t *testing.T, engine *fakeEngine, cfg Config) (*Plugin, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	cfg.Dialer = func(string) (Conn, error) { return conn, nil }
	p := New(cfg)
	require.NoError(t, p.Initialize(context.Background(), panel.PluginConfig{Engine: engine, Logger: log.NewNoopLogger()}))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	require.Eventually(t, conn.subscribed, time.Second, 5*time.Millisecond)
	return p, conn
}

func hasMessage(conn *fakeConn, subject, prefix string) func() bool {
	return func() bool {
		for _, m := range conn.messages(subject) {
			if strings.HasPrefix(m, prefix) {
				return true
			}
		}
		return false
	}
}

func TestParseJob(t *testing.T) {
	tests := []struct {
		in      string
		want    Job
		wantErr bool
	}{
		{"0;modell;cube", Job{0, "modell", "cube"}, false},
		{"2;bm;title;with;semicolons\n", Job{2, "bm", "title;with;semicolons"}, false},
		{"0;modell", Job{}, true},
		{"x;modell;cube", Job{}, true},
		{"0;;cube", Job{}, true},
	}
	for _, tt := range tests {
		got, err := ParseJob(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, "0;modell;cube", Job{0, "modell", "cube"}.String())
}

func TestBridge_AcceptsJob(t *testing.T) {
	engine := &fakeEngine{}
	_, conn := startBridge(t, engine, Config{})

	conn.deliver("0;modell;cube")

	assert.Equal(t, []string{"modell/cube"}, engine.Printed())
	require.Eventually(t, hasMessage(conn, DefaultFeedbackSubject, "accepted;cube;job-cube"), time.Second, 5*time.Millisecond)
}

func TestBridge_IgnoresOtherFab(t *testing.T) {
	engine := &fakeEngine{}
	_, conn := startBridge(t, engine, Config{FabID: 1})

	conn.deliver("0;modell;cube")

	assert.Empty(t, engine.Printed())
}

func TestBridge_InvalidJob(t *testing.T) {
	_, conn := startBridge(t, &fakeEngine{}, Config{})

	conn.deliver("garbage")

	require.Eventually(t, hasMessage(conn, DefaultFeedbackSubject, "invalid;"), time.Second, 5*time.Millisecond)
}

func TestBridge_QueuesUntilPartFree(t *testing.T) {
	engine := &fakeEngine{errs: []error{panel.ErrNoFreePrinthead, panel.ErrNoFreePrinthead}}
	p, conn := startBridge(t, engine, Config{RetryInterval: time.Hour})

	conn.deliver("0;modell;first")
	conn.deliver("0;modell;second")
	require.Len(t, p.Queued(), 2)
	require.Eventually(t, hasMessage(conn, DefaultFeedbackSubject, "queued;second;2"), time.Second, 5*time.Millisecond)

	// The first retry is still rejected; the second drains the queue in order.
	engine.emit(panel.Event{Kind: panel.EventJobCompleted, Title: "other"})
	require.Eventually(t, func() bool { return len(engine.Printed()) == 0 && engine.Scripted() == 0 }, time.Second, 5*time.Millisecond)
	engine.emit(panel.Event{Kind: panel.EventJobCompleted, Title: "other"})

	require.Eventually(t, func() bool { return len(engine.Printed()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"modell/first", "modell/second"}, engine.Printed())
	assert.Empty(t, p.Queued())
	require.Eventually(t, hasMessage(conn, DefaultInfoSubject, "Done: other"), time.Second, 5*time.Millisecond)
}

func TestBridge_FailedJobNotQueued(t *testing.T) {
	engine := &fakeEngine{errs: []error{panel.ErrBlueprintNotFound}}
	p, conn := startBridge(t, engine, Config{})

	conn.deliver("0;missing;cube")

	assert.Empty(t, p.Queued())
	require.Eventually(t, hasMessage(conn, DefaultFeedbackSubject, "failed;cube;"), time.Second, 5*time.Millisecond)
}

func TestBridge_RateLimited(t *testing.T) {
	engine := &fakeEngine{}
	_, conn := startBridge(t, engine, Config{IntakeRate: 0.001, IntakeBurst: 1})

	conn.deliver("0;modell;one")
	conn.deliver("0;modell;two")

	assert.Equal(t, []string{"modell/one"}, engine.Printed())
	require.Eventually(t, hasMessage(conn, DefaultFeedbackSubject, "rejected;two;rate limited"), time.Second, 5*time.Millisecond)
}

func TestBridge_ReconnectsAfterDialFailure(t *testing.T) {
	conn := newFakeConn()
	var mu sync.Mutex
	dials := 0
	p := New(Config{Dialer: func(string) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			return nil, errors.New("connection refused")
		}
		return conn, nil
	}})
	require.NoError(t, p.Initialize(context.Background(), panel.PluginConfig{Engine: &fakeEngine{}}))

	require.Eventually(t, conn.subscribed, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Shutdown(context.Background()))
	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.True(t, conn.closed)
}
