package restapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/fabpanel/pkg/catalog"
	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/panel"
	"github.com/bft-labs/fabpanel/pkg/state"
)

// PrintRequest is the body of POST /print. Either Blueprint (base64 of a
// blueprint file) or Name (a catalog entry) must be set.
type PrintRequest struct {
	Blueprint string `json:"blueprint,omitempty"`
	Name      string `json:"name,omitempty"`
	Title     string `json:"title"`
}

// PrintResponse reports the outcome of a print or benchmark request.
type PrintResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	PartID  int    `json:"part_id,omitempty"`
}

// BenchmarkRequest is the body of POST /benchmark. Zero probes uses the
// panel default.
type BenchmarkRequest struct {
	Probes int `json:"probes"`
}

func (p *Plugin) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", p.handleStatus)
	mux.HandleFunc("GET /status", p.handleStatus)
	mux.HandleFunc("GET /parts", p.handleParts)
	mux.HandleFunc("GET /blueprints", p.handleBlueprints)
	mux.HandleFunc("POST /print", p.handlePrint)
	mux.HandleFunc("POST /benchmark", p.handleBenchmark)
	mux.HandleFunc("GET /ws", p.handleFeed)
	mux.HandleFunc("GET /metrics", p.handleMetrics)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalidrequest"})
	})
	return mux
}

func (p *Plugin) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, p.engine.Summary())
}

func (p *Plugin) handleParts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, state.NewSnapshot(time.Now().UTC(), p.engine.Snapshot()))
}

func (p *Plugin) handleBlueprints(w http.ResponseWriter, _ *http.Request) {
	entries := []catalog.Entry{}
	if p.catalog != nil {
		entries = p.catalog.List()
	}
	writeJSON(w, http.StatusOK, entries)
}

func (p *Plugin) handlePrint(w http.ResponseWriter, r *http.Request) {
	var req PrintRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, p.cfg.MaxBlueprintBytes*2)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, PrintResponse{Reason: "malformed request: " + err.Error()})
		return
	}

	var (
		h   panel.JobHandle
		err error
	)
	switch {
	case req.Name != "":
		h, err = p.engine.PrintNamed(r.Context(), req.Name, req.Title)
	case req.Blueprint != "":
		raw, decErr := base64.StdEncoding.DecodeString(req.Blueprint)
		if decErr != nil {
			writeJSON(w, http.StatusBadRequest, PrintResponse{Reason: "blueprint is not base64: " + decErr.Error()})
			return
		}
		if int64(len(raw)) > p.cfg.MaxBlueprintBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, PrintResponse{Reason: "blueprint too large"})
			return
		}
		h, err = p.engine.StartPrint(r.Context(), bytes.NewReader(raw), req.Title)
	default:
		writeJSON(w, http.StatusBadRequest, PrintResponse{Reason: "blueprint or name is required"})
		return
	}

	if err != nil {
		p.logger.Warn("print rejected", log.String("title", req.Title), log.Err(err))
		writeJSON(w, statusFor(err), PrintResponse{Reason: err.Error(), JobID: h.ID, PartID: int(h.PartID)})
		return
	}
	writeJSON(w, http.StatusOK, PrintResponse{Success: true, JobID: h.ID, PartID: int(h.PartID)})
}

func (p *Plugin) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	var req BenchmarkRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, PrintResponse{Reason: "malformed request: " + err.Error()})
			return
		}
	}
	id, err := p.engine.StartBenchmark(r.Context(), req.Probes)
	if err != nil {
		writeJSON(w, statusFor(err), PrintResponse{Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, PrintResponse{Success: true, PartID: int(id)})
}

func (p *Plugin) handleMetrics(w http.ResponseWriter, r *http.Request) {
	p.metrics.Update(p.engine.Snapshot())
	p.metrics.Handler().ServeHTTP(w, r)
}

// handleFeed streams a state.Snapshot frame immediately and then every
// FeedInterval until the client goes away or the plugin shuts down.
func (p *Plugin) handleFeed(w http.ResponseWriter, r *http.Request) {
	// Hijacked connections are invisible to http.Server.Shutdown.
	p.mu.Lock()
	if p.server == nil {
		p.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	p.feeds.Add(1)
	p.mu.Unlock()
	defer p.feeds.Done()

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Debug("websocket upgrade failed", log.Err(err))
		return
	}
	defer conn.Close()

	// The reader only notices the peer closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(p.cfg.FeedInterval)
	defer ticker.Stop()
	for {
		frame := state.NewSnapshot(time.Now().UTC(), p.engine.Snapshot())
		_ = conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-gone:
			return
		case <-p.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-r.Context().Done():
			return
		}
	}
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case panel.IsResourceUnavailable(err), errors.Is(err, panel.ErrPartBusy):
		return http.StatusConflict
	case errors.Is(err, panel.ErrBlueprintNotFound), errors.Is(err, catalog.ErrInvalidName):
		return http.StatusNotFound
	case errors.Is(err, panel.ErrInvalidBlueprint):
		return http.StatusUnprocessableEntity
	case errors.Is(err, panel.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
