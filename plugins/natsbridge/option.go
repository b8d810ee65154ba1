package natsbridge

import "github.com/bft-labs/fabpanel/pkg/panel"

// WithNATSBridge returns a panel Option that takes jobs from a NATS
// subject.
//
// Usage:
//
//	p, err := panel.New(cfg,
//	    natsbridge.WithNATSBridge(natsbridge.Config{
//	        URL:   "nats://127.0.0.1:4222",
//	        FabID: 0,
//	    }),
//	)
func WithNATSBridge(cfg Config) panel.Option {
	return panel.WithPlugin(New(cfg))
}
