// Package tcp accepts stream-transport devices and relays their bytes to the
// event loop.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bft-labs/fabpanel/internal/domain"
	"github.com/bft-labs/fabpanel/internal/ports"
)

const (
	readBufferSize = 512
	writeTimeout   = 2 * time.Second
)

// Listener accepts device connections on a TCP address.
type Listener struct {
	ln     net.Listener
	sink   ports.EventSink
	nextID func() domain.EndpointID
	logger ports.Logger

	wg sync.WaitGroup
}

// Listen binds addr. nextID allocates endpoint ids shared with the other
// transports.
func Listen(addr string, sink ports.EventSink, nextID func() domain.EndpointID, logger ports.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return &Listener{
		ln:     ln,
		sink:   sink,
		nextID: nextID,
		logger: logger.With(ports.String("transport", domain.TransportStream.String())),
	}, nil
}

// Close releases the socket without serving it.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until ctx is cancelled, then waits for the
// per-connection readers to exit.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()
	defer l.wg.Wait()

	l.logger.Info("accepting devices", ports.String("addr", l.ln.Addr().String()))
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(ctx, conn)
		}()
	}
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	id := l.nextID()
	link := &Link{conn: conn}
	if err := l.sink.Post(ctx, ports.NetEvent{Kind: ports.NetConnected, Endpoint: id, Link: link}); err != nil {
		conn.Close()
		return
	}
	l.logger.Debug("device connected", ports.String("remote", link.Remote()))

	// A cancelled context unblocks Read by closing the connection.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if perr := l.sink.Post(ctx, ports.NetEvent{Kind: ports.NetData, Endpoint: id, Data: data}); perr != nil {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = nil
			}
			_ = l.sink.Post(ctx, ports.NetEvent{Kind: ports.NetClosed, Endpoint: id, Err: err})
			return
		}
	}
}

// Link is the write side of one device connection.
type Link struct {
	conn net.Conn
	once sync.Once
}

// Send writes b, bounded by a write deadline so a stalled device cannot
// block the event loop.
func (k *Link) Send(b []byte) error {
	if err := k.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := k.conn.Write(b)
	return err
}

// Close closes the connection. Safe to call more than once.
func (k *Link) Close() error {
	var err error
	k.once.Do(func() { err = k.conn.Close() })
	return err
}

// Transport returns domain.TransportStream.
func (k *Link) Transport() domain.Transport { return domain.TransportStream }

// Remote returns the peer address.
func (k *Link) Remote() string { return k.conn.RemoteAddr().String() }
