// Package playground serves Lox over HTTP and WebSocket: one-shot runs and
// validation, the stored run history with its exports, and interactive
// sessions.
package playground

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/holla2040/loxr/internal/protocol"
	"github.com/holla2040/loxr/internal/registry"
	"github.com/holla2040/loxr/internal/remote"
	"github.com/holla2040/loxr/internal/report"
	"github.com/holla2040/loxr/internal/script/result"
	"github.com/holla2040/loxr/internal/script/runner"
	"github.com/holla2040/loxr/internal/script/validate"
	"github.com/holla2040/loxr/internal/store"
	"github.com/redis/go-redis/v9"
)

const defaultListLimit = 50

// runRequest is the JSON body for POST /run.
type runRequest struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// validateRequest is the JSON body for POST /validate.
type validateRequest struct {
	Source string `json:"source"`
}

// RedisHealthChecker provides Redis connection health information.
type RedisHealthChecker interface {
	IsConnected() bool
	Status() remote.Status
}

// healthStatus is the response for GET /health.
type healthStatus struct {
	Status      string         `json:"status"`
	Clients     int            `json:"clients"`
	History     bool           `json:"history"`
	RedisHealth *remote.Status `json:"redis_health,omitempty"`
}

// Handler holds all dependencies for HTTP request handling.
type Handler struct {
	Store       *store.Store       // nil disables run history
	Hub         *Hub               // nil disables /ws and notices
	Workers     *registry.Registry // nil disables /workers
	RedisHealth RedisHealthChecker // nil means no health checking
	RunTimeout  time.Duration
}

// RegisterRoutes adds all playground routes to the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /run", h.run)
	mux.HandleFunc("POST /validate", h.validate)
	mux.HandleFunc("GET /runs", h.listRuns)
	mux.HandleFunc("GET /runs/{id}", h.getRun)
	mux.HandleFunc("DELETE /runs/{id}", h.deleteRun)
	mux.HandleFunc("GET /runs/{id}/csv", h.exportRun(report.FormatCSV, "text/csv"))
	mux.HandleFunc("GET /runs/{id}/json", h.exportRun(report.FormatJSON, "application/json"))
	mux.HandleFunc("GET /runs/{id}/pdf", h.exportRun(report.FormatPDF, "application/pdf"))
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /workers", h.listWorkers)
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWebSocket)
	}
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TimeoutMs < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "timeout_ms must not be negative"})
		return
	}
	if req.Name == "" {
		req.Name = "playground"
	}

	timeout := h.RunTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	rep := runner.Run(r.Context(), req.Name, req.Source, runner.WithTimeout(timeout))
	log.Printf("playground: run %s %s exit=%d in %dms", rep.RunID, rep.Status, rep.ExitCode, rep.DurationMs)

	if h.Store != nil {
		if err := h.Store.RecordRun(rep); err != nil {
			log.Printf("playground: record run %s: %v", rep.RunID, err)
		}
	}
	if h.Hub != nil {
		h.Hub.BroadcastEvent(protocol.TypeRunNotice, protocol.NoticeFor(rep))
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	writeJSON(w, http.StatusOK, validate.ValidateSource(req.Source))
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if !h.historyEnabled(w) {
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []result.RunReport{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) deleteRun(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.lookupRun(w, r); !ok {
		return
	}
	if err := h.Store.DeleteRun(r.PathValue("id")); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) exportRun(format, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, ok := h.lookupRun(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", contentType)
		if format != report.FormatJSON {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", rep.RunID, format))
		}
		if err := report.Export(w, format, []result.RunReport{*rep}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthStatus{Status: "ok", History: h.Store != nil}
	if h.Hub != nil {
		resp.Clients = h.Hub.ClientCount()
	}
	if h.RedisHealth != nil {
		status := h.RedisHealth.Status()
		resp.RedisHealth = &status
		if !status.Connected {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listWorkers(w http.ResponseWriter, r *http.Request) {
	if h.Workers == nil {
		writeJSON(w, http.StatusOK, []registry.WorkerEntry{})
		return
	}
	writeJSON(w, http.StatusOK, h.Workers.List())
}

// lookupRun fetches the run named by the {id} path value, writing the error
// response itself when it cannot.
func (h *Handler) lookupRun(w http.ResponseWriter, r *http.Request) (*result.RunReport, bool) {
	if !h.historyEnabled(w) {
		return nil, false
	}
	rep, err := h.Store.GetRun(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	if rep == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return nil, false
	}
	return rep, true
}

func (h *Handler) historyEnabled(w http.ResponseWriter) bool {
	if h.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run history disabled"})
		return false
	}
	return true
}

// Relay subscribes to the given Redis channels and rebroadcasts every valid
// protocol message on them to WebSocket clients, typed by its envelope.
// Worker heartbeats also update the registry. Blocks until ctx is cancelled
// or the subscription ends.
func (h *Handler) Relay(ctx context.Context, rdb *redis.Client, channels ...string) error {
	sub := rdb.Subscribe(ctx, channels...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("SUBSCRIBE %v: %w", channels, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %v closed", channels)
			}
			msg, err := protocol.Parse([]byte(m.Payload))
			if err != nil {
				log.Printf("relay: dropping message on %s: %v", m.Channel, err)
				continue
			}
			h.observe(msg)
		}
	}
}

func (h *Handler) observe(msg *protocol.Message) {
	if msg.Envelope.Type == protocol.TypeWorkerHeartbeat && h.Workers != nil {
		if hb, err := protocol.ParseHeartbeat(msg); err == nil {
			h.Workers.UpdateFromHeartbeat(msg.Envelope.Source, hb)
		}
	}
	if h.Hub != nil {
		h.Hub.BroadcastEvent(msg.Envelope.Type, msg.Payload)
	}
}

// WatchWorkers re-evaluates worker liveness every interval, broadcasting a
// worker.status event for each change and forgetting workers offline for an
// hour. Blocks until ctx is cancelled.
func (h *Handler) WatchWorkers(ctx context.Context, interval time.Duration) {
	if h.Workers == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.checkWorkers(now)
		}
	}
}

func (h *Handler) checkWorkers(now time.Time) {
	for _, instance := range h.Workers.RunHealthCheck(now) {
		if w := h.Workers.Lookup(instance); w != nil {
			log.Printf("playground: worker %s is %s", instance, w.Status)
			if h.Hub != nil {
				h.Hub.BroadcastEvent("worker.status", w)
			}
		}
	}
	if n := h.Workers.Prune(now, time.Hour); n > 0 {
		log.Printf("playground: forgot %d offline workers", n)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
