// Standalone Prometheus endpoint
//
// The websocket server mounts /metrics itself. Exporter is for the batch and
// TUI modes, which have no HTTP listener of their own.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// DefaultExporterAddr is used when no address is given.
const DefaultExporterAddr = ":9101"

// Exporter serves one ViewerMetrics on its own listener.
type Exporter struct {
	vm      *ViewerMetrics
	server  *http.Server
	addr    atomic.Value // string, the bound address once started
	running atomic.Bool
}

// NewExporter creates an exporter for vm listening on addr.
func NewExporter(vm *ViewerMetrics, addr string) *Exporter {
	if addr == "" {
		addr = DefaultExporterAddr
	}
	e := &Exporter{vm: vm}
	e.server = &http.Server{
		Addr:              addr,
		Handler:           e.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return e
}

// Handler routes /metrics, /healthz and /readyz.
func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.vm.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/readyz", e.handleReady)
	return mux
}

// handleReady answers 200 while a worker is running and 503 otherwise.
func (e *Exporter) handleReady(w http.ResponseWriter, r *http.Request) {
	workers := e.vm.ActiveWorkers()
	status := http.StatusOK
	if workers == 0 {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"ready":       workers > 0,
		"workers":     workers,
		"models_held": e.vm.HeldModels(),
	})
}

// Start binds the listener and serves in the background. The returned
// channel yields a serve error, if any, and is closed when serving stops.
func (e *Exporter) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", e.server.Addr)
	if err != nil {
		return nil, err
	}
	e.addr.Store(ln.Addr().String())
	e.running.Store(true)

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		defer e.running.Store(false)
		if err := e.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh, nil
}

// Shutdown stops the listener, waiting for in-flight scrapes.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.server.Shutdown(ctx)
}

// Running reports whether the exporter is serving.
func (e *Exporter) Running() bool {
	return e.running.Load()
}

// Addr returns the bound address after Start, or the configured one.
func (e *Exporter) Addr() string {
	if a, ok := e.addr.Load().(string); ok {
		return a
	}
	return e.server.Addr
}
