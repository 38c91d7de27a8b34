// Metrics for the G-code viewer host
//
// Defines the Prometheus collectors for:
// - Parse runs (lines, records, chunks, warnings)
// - Analysis runs
// - Worker lifecycle and command dispatch
// - Transport connections
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes used as the status label.
const (
	StatusOK        = "ok"
	StatusCancelled = "cancelled"
	StatusError     = "error"
)

// ViewerMetrics holds every collector of the host. A nil *ViewerMetrics is
// valid and records nothing.
type ViewerMetrics struct {
	// Parse metrics
	ParseRuns     *prometheus.CounterVec
	ParseLines    prometheus.Counter
	ParseRecords  prometheus.Counter
	ParseDuration prometheus.Histogram
	Chunks        prometheus.Counter
	Warnings      *prometheus.CounterVec

	// Analysis metrics
	AnalyzeRuns      *prometheus.CounterVec
	AnalyzeDuration  prometheus.Histogram
	AnalyzeAnomalies prometheus.Counter

	// Worker metrics
	Commands        *prometheus.CounterVec
	WorkersActive   prometheus.Gauge
	WorkerRestarts  prometheus.Counter
	ModelsHeld      prometheus.Gauge
	ConnectionsOpen prometheus.Gauge

	registry *prometheus.Registry

	// Mirrors of the gauges for readiness checks.
	workers atomic.Int64
	models  atomic.Int64
}

// NewViewerMetrics creates the collectors on a fresh registry, together with
// the Go runtime and process collectors.
func NewViewerMetrics() *ViewerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newWithRegistry(reg)
}

func newWithRegistry(reg *prometheus.Registry) *ViewerMetrics {
	f := promauto.With(reg)
	return &ViewerMetrics{
		ParseRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gcodeview_parse_runs_total",
			Help: "Total number of parse runs by outcome",
		}, []string{"status"}),
		ParseLines: f.NewCounter(prometheus.CounterOpts{
			Name: "gcodeview_parse_lines_total",
			Help: "Total number of G-code lines parsed",
		}),
		ParseRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "gcodeview_parse_records_total",
			Help: "Total number of model records emitted",
		}),
		ParseDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gcodeview_parse_duration_seconds",
			Help:    "Time taken by a parse run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		Chunks: f.NewCounter(prometheus.CounterOpts{
			Name: "gcodeview_parse_chunks_total",
			Help: "Total number of progress chunks streamed",
		}),
		Warnings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gcodeview_warnings_total",
			Help: "Total number of non-fatal warnings by kind",
		}, []string{"kind"}),

		AnalyzeRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gcodeview_analyze_runs_total",
			Help: "Total number of analysis runs by outcome",
		}, []string{"status"}),
		AnalyzeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gcodeview_analyze_duration_seconds",
			Help:    "Time taken by an analysis run",
			Buckets: prometheus.DefBuckets,
		}),
		AnalyzeAnomalies: f.NewCounter(prometheus.CounterOpts{
			Name: "gcodeview_analyze_anomalies_total",
			Help: "Total number of records with an unknown move class",
		}),

		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gcodeview_worker_commands_total",
			Help: "Total number of worker commands received",
		}, []string{"command"}),
		WorkersActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "gcodeview_workers_active",
			Help: "Number of running workers",
		}),
		WorkerRestarts: f.NewCounter(prometheus.CounterOpts{
			Name: "gcodeview_worker_restarts_total",
			Help: "Total number of worker restarts",
		}),
		ModelsHeld: f.NewGauge(prometheus.GaugeOpts{
			Name: "gcodeview_models_held",
			Help: "Number of parsed models held by workers",
		}),
		ConnectionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "gcodeview_connections_open",
			Help: "Number of open websocket connections",
		}),

		registry: reg,
	}
}

// RecordParse records a finished parse run.
func (m *ViewerMetrics) RecordParse(status string, lines, records int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ParseRuns.WithLabelValues(status).Inc()
	m.ParseLines.Add(float64(lines))
	m.ParseRecords.Add(float64(records))
	m.ParseDuration.Observe(duration.Seconds())
}

// RecordChunk counts one streamed chunk.
func (m *ViewerMetrics) RecordChunk() {
	if m == nil {
		return
	}
	m.Chunks.Inc()
}

// RecordWarning counts a warning of the given kind.
func (m *ViewerMetrics) RecordWarning(kind string) {
	if m == nil {
		return
	}
	m.Warnings.WithLabelValues(kind).Inc()
}

// RecordAnalyze records a finished analysis run.
func (m *ViewerMetrics) RecordAnalyze(status string, anomalies int, duration time.Duration) {
	if m == nil {
		return
	}
	m.AnalyzeRuns.WithLabelValues(status).Inc()
	m.AnalyzeAnomalies.Add(float64(anomalies))
	m.AnalyzeDuration.Observe(duration.Seconds())
}

// RecordCommand counts a worker command. Unrecognised names are folded
// into "unknown" to bound label cardinality.
func (m *ViewerMetrics) RecordCommand(command string, known bool) {
	if m == nil {
		return
	}
	if !known {
		command = "unknown"
	}
	m.Commands.WithLabelValues(command).Inc()
}

// WorkerStarted marks a worker goroutine as running.
func (m *ViewerMetrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.workers.Add(1)
	m.WorkersActive.Inc()
}

// WorkerStopped marks a worker goroutine as gone.
func (m *ViewerMetrics) WorkerStopped() {
	if m == nil {
		return
	}
	m.workers.Add(-1)
	m.WorkersActive.Dec()
}

// RecordRestart counts a worker restart.
func (m *ViewerMetrics) RecordRestart() {
	if m == nil {
		return
	}
	m.WorkerRestarts.Inc()
}

// ModelHeld adjusts the held model gauge by delta.
func (m *ViewerMetrics) ModelHeld(delta int) {
	if m == nil {
		return
	}
	m.models.Add(int64(delta))
	m.ModelsHeld.Add(float64(delta))
}

// ActiveWorkers returns the number of running worker goroutines.
func (m *ViewerMetrics) ActiveWorkers() int {
	if m == nil {
		return 0
	}
	return int(m.workers.Load())
}

// HeldModels returns the number of parsed models waiting for analysis.
func (m *ViewerMetrics) HeldModels() int {
	if m == nil {
		return 0
	}
	return int(m.models.Load())
}

// ConnectionOpened and ConnectionClosed track websocket sessions.
func (m *ViewerMetrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsOpen.Inc()
}

func (m *ViewerMetrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsOpen.Dec()
}

// Registry returns the underlying registry.
func (m *ViewerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *ViewerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Global metrics instance
var (
	globalMetrics     *ViewerMetrics
	globalMetricsOnce sync.Once
)

// GlobalMetrics returns the process-wide metrics instance.
func GlobalMetrics() *ViewerMetrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewViewerMetrics()
	})
	return globalMetrics
}
