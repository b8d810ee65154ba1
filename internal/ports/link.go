package ports

import (
	"context"

	"github.com/bft-labs/fabpanel/internal/domain"
)

// Link is the write side of a device endpoint. Reads are delivered to the
// event loop as NetEvents by the adapter that owns the endpoint.
type Link interface {
	// Send writes b to the device. For datagram links b is one datagram.
	Send(b []byte) error

	// Close releases the endpoint. Further Sends fail.
	Close() error

	// Transport reports the delivery semantics of the link.
	Transport() domain.Transport

	// Remote returns the peer address for logs and status.
	Remote() string
}

// NetEventKind classifies a NetEvent.
type NetEventKind int

const (
	// NetConnected announces a new endpoint and carries its Link.
	NetConnected NetEventKind = iota

	// NetData carries bytes received from an endpoint.
	NetData

	// NetClosed reports that an endpoint went away; Err holds the cause.
	NetClosed
)

// NetEvent is posted by transport adapters to the event loop.
type NetEvent struct {
	Kind     NetEventKind
	Endpoint domain.EndpointID
	Link     Link
	Data     []byte
	Err      error
}

// EventSink accepts transport events on behalf of the event loop.
type EventSink interface {
	Post(ctx context.Context, ev NetEvent) error
}
