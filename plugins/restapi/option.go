package restapi

import "github.com/bft-labs/fabpanel/pkg/panel"

// WithRESTAPI returns a panel Option that serves the HTTP API, the
// websocket feed and Prometheus metrics.
//
// Usage:
//
//	p, err := panel.New(cfg,
//	    restapi.WithRESTAPI(restapi.Config{
//	        Addr: ":8080",
//	    }),
//	)
func WithRESTAPI(cfg Config) panel.Option {
	return panel.WithPlugin(New(cfg))
}
