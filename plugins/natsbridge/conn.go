package natsbridge

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bft-labs/fabpanel/pkg/log"
)

// Conn is the subset of a NATS connection the bridge uses.
type Conn interface {
	Subscribe(subject string, handler func(data []byte)) (unsubscribe func() error, err error)
	Publish(subject string, data []byte) error
	Close()
}

// Dialer opens a Conn to url.
type Dialer func(url string) (Conn, error)

// natsConn adapts *nats.Conn to Conn.
type natsConn struct {
	nc *nats.Conn
}

// DialNATS connects with reconnection handled by the client library.
func DialNATS(name string, logger log.Logger) Dialer {
	return func(url string) (Conn, error) {
		nc, err := nats.Connect(url,
			nats.Name(name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.Timeout(5*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("nats disconnected", log.Err(err))
				}
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("nats reconnected", log.String("url", nc.ConnectedUrl()))
			}),
		)
		if err != nil {
			return nil, err
		}
		return &natsConn{nc: nc}, nil
	}
}

func (c *natsConn) Subscribe(subject string, handler func([]byte)) (func() error, error) {
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) { handler(m.Data) })
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

func (c *natsConn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

func (c *natsConn) Close() {
	_ = c.nc.Drain()
}
