// Package udp serves datagram-transport devices. Each remote address is one
// endpoint; its first datagram carries the handshake.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/fabpanel/internal/domain"
	"github.com/bft-labs/fabpanel/internal/ports"
)

const maxDatagram = 1500

// Listener multiplexes every datagram device over one socket.
type Listener struct {
	conn   *net.UDPConn
	sink   ports.EventSink
	nextID func() domain.EndpointID
	logger ports.Logger

	mu    sync.Mutex
	peers map[string]*Link
}

// Listen binds addr.
func Listen(addr string, sink ports.EventSink, nextID func() domain.EndpointID, logger ports.Logger) (*Listener, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	return &Listener{
		conn:   conn,
		sink:   sink,
		nextID: nextID,
		logger: logger.With(ports.String("transport", domain.TransportDatagram.String())),
		peers:  make(map[string]*Link),
	}, nil
}

// Close releases the socket without serving it.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Serve reads datagrams until ctx is cancelled.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	l.logger.Info("accepting devices", ports.String("addr", l.conn.LocalAddr().String()))
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read udp: %w", err)
		}
		if n == 0 {
			continue
		}

		link, fresh := l.endpoint(addr)
		if link.closed.Load() {
			l.logger.Debug("datagram from closed peer dropped", ports.String("remote", addr.String()))
			continue
		}
		if fresh {
			if err := l.sink.Post(ctx, ports.NetEvent{Kind: ports.NetConnected, Endpoint: link.id, Link: link}); err != nil {
				return nil
			}
			l.logger.Debug("device connected", ports.String("remote", addr.String()))
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		if err := l.sink.Post(ctx, ports.NetEvent{Kind: ports.NetData, Endpoint: link.id, Data: data}); err != nil {
			return nil
		}
	}
}

// endpoint returns the link for addr, creating it on first contact. Closed
// links stay mapped so a faulted or rejected device cannot register again
// from the same address.
func (l *Listener) endpoint(addr *net.UDPAddr) (*Link, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := addr.String()
	if link, ok := l.peers[key]; ok {
		return link, false
	}
	link := &Link{id: l.nextID(), conn: l.conn, addr: addr}
	l.peers[key] = link
	return link, true
}

// Link addresses one remote device through the shared socket.
type Link struct {
	id     domain.EndpointID
	conn   *net.UDPConn
	addr   *net.UDPAddr
	closed atomic.Bool
}

// Send writes b as a single datagram.
func (k *Link) Send(b []byte) error {
	if k.closed.Load() {
		return net.ErrClosed
	}
	_, err := k.conn.WriteToUDP(b, k.addr)
	return err
}

// Close detaches the peer. The shared socket stays open and later
// datagrams from the peer are dropped.
func (k *Link) Close() error {
	k.closed.Store(true)
	return nil
}

// Transport returns domain.TransportDatagram.
func (k *Link) Transport() domain.Transport { return domain.TransportDatagram }

// Remote returns the peer address.
func (k *Link) Remote() string { return k.addr.String() }
