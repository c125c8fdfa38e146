// Package registry tracks remote workers from their heartbeats.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/holla2040/loxr/internal/protocol"
)

// Status constants for workers.
const (
	StatusOnline  = "online"
	StatusStale   = "stale"
	StatusOffline = "offline"
)

// Health check thresholds. Workers beat every 5 seconds by default.
const (
	StaleThreshold   = 15 * time.Second
	OfflineThreshold = 30 * time.Second
)

// WorkerEntry is a worker's most recent heartbeat.
type WorkerEntry struct {
	Instance      string    `json:"instance"`
	Service       string    `json:"service"`
	Version       string    `json:"version"`
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	JobsProcessed int       `json:"jobs_processed"`
	JobsFailed    int       `json:"jobs_failed"`
	LastError     string    `json:"last_error,omitempty"`
}

// Registry holds the in-memory map of workers.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*WorkerEntry // instance -> entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{workers: make(map[string]*WorkerEntry)}
}

// UpdateFromHeartbeat upserts the worker identified by source.
func (r *Registry) UpdateFromHeartbeat(source protocol.Source, payload *protocol.HeartbeatPayload) {
	r.UpdateAt(source, payload, time.Now())
}

// UpdateAt is UpdateFromHeartbeat with an explicit receive time.
func (r *Registry) UpdateAt(source protocol.Source, payload *protocol.HeartbeatPayload, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[source.Instance]
	if !ok {
		w = &WorkerEntry{Instance: source.Instance}
		r.workers[source.Instance] = w
	}
	w.Service = source.Service
	w.Version = source.Version
	w.Status = StatusOnline
	w.LastHeartbeat = now
	w.UptimeSeconds = payload.UptimeSeconds
	w.JobsProcessed = payload.JobsProcessed
	w.JobsFailed = payload.JobsFailed
	w.LastError = ""
	if payload.LastError != nil {
		w.LastError = *payload.LastError
	}
}

// Lookup returns a copy of the worker entry, or nil if not found.
func (r *Registry) Lookup(instance string) *WorkerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[instance]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}

// List returns copies of all worker entries ordered by instance.
func (r *Registry) List() []WorkerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WorkerEntry, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

// RunHealthCheck updates every worker's status from the time since its
// last heartbeat and returns the instances whose status changed. Pass
// time.Now() in production.
func (r *Registry) RunHealthCheck(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed []string
	for instance, w := range r.workers {
		elapsed := now.Sub(w.LastHeartbeat)

		status := StatusOnline
		switch {
		case elapsed >= OfflineThreshold:
			status = StatusOffline
		case elapsed >= StaleThreshold:
			status = StatusStale
		}
		if status != w.Status {
			w.Status = status
			changed = append(changed, instance)
		}
	}
	sort.Strings(changed)
	return changed
}

// Prune removes workers that have been offline for longer than keep.
func (r *Registry) Prune(now time.Time, keep time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for instance, w := range r.workers {
		if w.Status == StatusOffline && now.Sub(w.LastHeartbeat) >= OfflineThreshold+keep {
			delete(r.workers, instance)
			n++
		}
	}
	return n
}
