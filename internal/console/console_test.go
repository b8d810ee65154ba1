package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fabpanel/internal/domain"
	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/panel"
	"github.com/bft-labs/fabpanel/pkg/state"
)

type fakeEngine struct {
	mu       sync.Mutex
	printed  []string
	probes   []int
	printErr error
	parts    []panel.PartStatus
}

func (e *fakeEngine) StartPrint(context.Context, io.Reader, string) (panel.JobHandle, error) {
	return panel.JobHandle{}, nil
}

func (e *fakeEngine) PrintNamed(_ context.Context, name, title string) (panel.JobHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.printErr != nil {
		return panel.JobHandle{}, e.printErr
	}
	e.printed = append(e.printed, name)
	return panel.JobHandle{ID: "job-1", PartID: 1, Title: title}, nil
}

func (e *fakeEngine) StartBenchmark(_ context.Context, probes int) (panel.PartID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.probes = append(e.probes, probes)
	return 2, nil
}

func (e *fakeEngine) Snapshot() []panel.PartStatus       { return e.parts }
func (e *fakeEngine) Summary() state.Summary             { return state.Summarize(e.parts) }
func (e *fakeEngine) Subscribe(func(panel.Event)) func() { return func() {} }

func (e *fakeEngine) Printed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.printed...)
}

func newConsole(t *testing.T, engine panel.Engine, in io.Reader, quit func()) (*Console, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	c := New(Config{In: in, Out: out, Quit: quit})
	require.NoError(t, c.Initialize(context.Background(), panel.PluginConfig{Engine: engine, Logger: log.NewNoopLogger()}))
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c, out
}

func TestHandle_Commands(t *testing.T) {
	engine := &fakeEngine{}
	c, out := newConsole(t, engine, strings.NewReader(""), nil)
	<-c.Done()
	out.Reset()

	tests := []struct {
		line     string
		wantQuit bool
		wantOut  string
	}{
		{"p", false, "Printing modell on part 1 (job job-1)"},
		{"p  cube ", false, "Printing cube on part 1"},
		{"b", false, "Benchmark running on part 2"},
		{"b 50", false, "Benchmark running on part 2"},
		{"b zero", false, "Probe count must be a positive number"},
		{"x", false, "Unknown input"},
		{"q", true, "Shutting down"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out.Reset()
			assert.Equal(t, tt.wantQuit, c.Handle(context.Background(), tt.line))
			assert.Contains(t, out.String(), tt.wantOut)
		})
	}

	assert.Equal(t, []string{"modell", "cube"}, engine.Printed())
	assert.Equal(t, []int{0, 50}, engine.probes)

	out.Reset()
	assert.False(t, c.Handle(context.Background(), "   "))
	assert.Empty(t, out.String())
}

func TestHandle_Busy(t *testing.T) {
	engine := &fakeEngine{printErr: panel.ErrNoFreePrinthead}
	c, out := newConsole(t, engine, strings.NewReader(""), nil)
	<-c.Done()

	out.Reset()
	c.Handle(context.Background(), "p")
	assert.Equal(t, "Printhead[s] busy\n", out.String())

	engine.printErr = panel.ErrNoMaterialAvailable
	out.Reset()
	c.Handle(context.Background(), "p")
	assert.Equal(t, "Material empty, refill first\n", out.String())
}

func TestHandle_Status(t *testing.T) {
	engine := &fakeEngine{parts: []panel.PartStatus{
		{ID: 1, Role: panel.RolePrinthead, State: domain.StateExecuting, JobTitle: "cube", Instructions: 4},
		{ID: 2, Role: panel.RoleMaterial, Transport: panel.TransportDatagram, MaterialEmpty: true},
	}}
	c, out := newConsole(t, engine, strings.NewReader(""), nil)
	<-c.Done()

	out.Reset()
	c.Handle(context.Background(), "s")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "cube (4 done)")
	assert.Contains(t, lines[1], "EMPTY")
}

func TestLoop_QuitsOnQ(t *testing.T) {
	engine := &fakeEngine{}
	quit := make(chan struct{})
	c, out := newConsole(t, engine, strings.NewReader("p\nq\np\n"), func() { close(quit) })

	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatal("quit not called")
	}
	<-c.Done()
	assert.Equal(t, []string{"modell"}, engine.Printed())
	assert.Contains(t, out.String(), "Fabrication panel ready.")
}

func TestInitialize_RequiresIO(t *testing.T) {
	c := New(Config{})
	assert.Error(t, c.Initialize(context.Background(), panel.PluginConfig{Engine: &fakeEngine{}}))
	assert.Equal(t, "console", c.Name())
}
