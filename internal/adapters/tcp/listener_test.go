package tcp

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/fabpanel/internal/domain"
	"github.com/bft-labs/fabpanel/internal/ports"
	"github.com/bft-labs/fabpanel/pkg/log"
)

type chanSink chan ports.NetEvent

func (c chanSink) Post(ctx context.Context, ev ports.NetEvent) error {
	select {
	case c <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func next(t *testing.T, c chanSink) ports.NetEvent {
	t.Helper()
	select {
	case ev := <-c:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return ports.NetEvent{}
	}
}

func TestListener_RelaysDeviceTraffic(t *testing.T) {
	sink := make(chanSink, 16)
	var ids atomic.Uint64
	l, err := Listen("127.0.0.1:0", sink, func() domain.EndpointID {
		return domain.EndpointID(ids.Add(1))
	}, log.NewNoopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()

	dev, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer dev.Close()

	ev := next(t, sink)
	require.Equal(t, ports.NetConnected, ev.Kind)
	assert.Equal(t, domain.EndpointID(1), ev.Endpoint)
	assert.Equal(t, domain.TransportStream, ev.Link.Transport())
	link := ev.Link

	_, err = dev.Write([]byte{1, 255})
	require.NoError(t, err)
	var got []byte
	for len(got) < 2 {
		ev = next(t, sink)
		require.Equal(t, ports.NetData, ev.Kind)
		got = append(got, ev.Data...)
	}
	assert.Equal(t, []byte{1, 255}, got)

	require.NoError(t, link.Send([]byte{2, 9, 9}))
	buf := make([]byte, 3)
	require.NoError(t, dev.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = dev.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 9, 9}, buf)

	dev.Close()
	ev = next(t, sink)
	assert.Equal(t, ports.NetClosed, ev.Kind)
	assert.NoError(t, ev.Err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestListen_BadAddress(t *testing.T) {
	_, err := Listen("256.0.0.1:bad", make(chanSink), nil, log.NewNoopLogger())
	assert.Error(t, err)
}
