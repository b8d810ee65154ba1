package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bft-labs/fabpanel/pkg/catalog"
	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/state"
)

// ErrRejected matches an APIError for a request the panel refused because
// it had no free print head or material (HTTP 409).
var ErrRejected = errors.New("client: rejected by panel")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("panel returned %d: %s", e.StatusCode, e.Reason)
}

// Is reports whether target is ErrRejected and the status was 409.
func (e *APIError) Is(target error) bool {
	return target == ErrRejected && e.StatusCode == http.StatusConflict
}

// Result is the panel's answer to a print or benchmark request.
type Result struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	PartID  int    `json:"part_id,omitempty"`
}

// Client calls one panel.
type Client struct {
	baseURL string
	client  HTTPClient
	logger  log.Logger
}

// New creates a client for the panel at baseURL.
func New(baseURL string, client HTTPClient, logger log.Logger) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// Status fetches the dashboard summary.
func (c *Client) Status(ctx context.Context) (state.Summary, error) {
	var s state.Summary
	err := c.do(ctx, http.MethodGet, "/status", nil, &s)
	return s, err
}

// Parts fetches the full part table.
func (c *Client) Parts(ctx context.Context) (state.Snapshot, error) {
	var s state.Snapshot
	err := c.do(ctx, http.MethodGet, "/parts", nil, &s)
	return s, err
}

// Blueprints lists the panel's catalog.
func (c *Client) Blueprints(ctx context.Context) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	err := c.do(ctx, http.MethodGet, "/blueprints", nil, &entries)
	return entries, err
}

// Print uploads a blueprint and starts it.
func (c *Client) Print(ctx context.Context, title string, blueprint io.Reader) (Result, error) {
	raw, err := io.ReadAll(blueprint)
	if err != nil {
		return Result{}, fmt.Errorf("read blueprint: %w", err)
	}
	body := map[string]string{
		"blueprint": base64.StdEncoding.EncodeToString(raw),
		"title":     title,
	}
	var res Result
	err = c.do(ctx, http.MethodPost, "/print", body, &res)
	return res, err
}

// PrintNamed starts a blueprint from the panel's catalog.
func (c *Client) PrintNamed(ctx context.Context, name, title string) (Result, error) {
	var res Result
	err := c.do(ctx, http.MethodPost, "/print", map[string]string{"name": name, "title": title}, &res)
	return res, err
}

// Benchmark starts a round-trip benchmark. Zero probes uses the panel
// default.
func (c *Client) Benchmark(ctx context.Context, probes int) (Result, error) {
	var res Result
	err := c.do(ctx, http.MethodPost, "/benchmark", map[string]int{"probes": probes}, &res)
	return res, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		c.logger.Debug("panel request failed",
			log.String("path", path),
			log.Int("status", resp.StatusCode))
		return &APIError{StatusCode: resp.StatusCode, Reason: reason(respBody)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// reason extracts the reason or error field of an error body.
func reason(body []byte) string {
	var r struct {
		Reason string `json:"reason"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &r) == nil {
		if r.Reason != "" {
			return r.Reason
		}
		if r.Error != "" {
			return r.Error
		}
	}
	return strings.TrimSpace(string(body))
}
