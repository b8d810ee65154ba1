// Package client talks to a panel's REST API.
//
// Dashboards poll Status to decide where to send work, and submit
// blueprints with Print:
//
//	c := client.New("http://printer-1:8080", http.DefaultClient, logger)
//	st, err := c.Status(ctx)
//	if err == nil && !st.Busy && !st.MatEmpty {
//	    res, err := c.Print(ctx, "cube", f)
//	}
//
// Non-2xx responses are returned as *APIError; use errors.Is with
// ErrRejected to detect a panel that could not take the job right now.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package client
