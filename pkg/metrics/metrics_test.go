// Unit tests for viewer metrics
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics() *ViewerMetrics {
	return newWithRegistry(prometheus.NewRegistry())
}

func TestRecordParse(t *testing.T) {
	vm := newTestMetrics()
	vm.RecordParse(StatusOK, 100, 40, 50*time.Millisecond)
	vm.RecordParse(StatusOK, 10, 5, 10*time.Millisecond)
	vm.RecordParse(StatusCancelled, 3, 0, time.Millisecond)

	if got := testutil.ToFloat64(vm.ParseRuns.WithLabelValues(StatusOK)); got != 2 {
		t.Errorf("expected 2 ok runs, got %v", got)
	}
	if got := testutil.ToFloat64(vm.ParseRuns.WithLabelValues(StatusCancelled)); got != 1 {
		t.Errorf("expected 1 cancelled run, got %v", got)
	}
	if got := testutil.ToFloat64(vm.ParseLines); got != 113 {
		t.Errorf("expected 113 lines, got %v", got)
	}
	if got := testutil.ToFloat64(vm.ParseRecords); got != 45 {
		t.Errorf("expected 45 records, got %v", got)
	}
	if got := testutil.CollectAndCount(vm.ParseDuration); got != 1 {
		t.Errorf("expected 1 histogram series, got %d", got)
	}
}

func TestRecordWarningsAndChunks(t *testing.T) {
	vm := newTestMetrics()
	vm.RecordChunk()
	vm.RecordChunk()
	vm.RecordWarning("arc_radius_mismatch")
	vm.RecordWarning("arc_segments_clamped")
	vm.RecordWarning("arc_radius_mismatch")

	if got := testutil.ToFloat64(vm.Chunks); got != 2 {
		t.Errorf("expected 2 chunks, got %v", got)
	}
	expected := `
# HELP gcodeview_warnings_total Total number of non-fatal warnings by kind
# TYPE gcodeview_warnings_total counter
gcodeview_warnings_total{kind="arc_radius_mismatch"} 2
gcodeview_warnings_total{kind="arc_segments_clamped"} 1
`
	if err := testutil.CollectAndCompare(vm.Warnings, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected warnings metric: %v", err)
	}
}

func TestRecordAnalyze(t *testing.T) {
	vm := newTestMetrics()
	vm.RecordAnalyze(StatusOK, 3, 20*time.Millisecond)

	if got := testutil.ToFloat64(vm.AnalyzeRuns.WithLabelValues(StatusOK)); got != 1 {
		t.Errorf("expected 1 analyze run, got %v", got)
	}
	if got := testutil.ToFloat64(vm.AnalyzeAnomalies); got != 3 {
		t.Errorf("expected 3 anomalies, got %v", got)
	}
}

func TestRecordCommand(t *testing.T) {
	vm := newTestMetrics()
	vm.RecordCommand("parseGCode", true)
	vm.RecordCommand("bogus", false)
	vm.RecordCommand("other", false)

	if got := testutil.ToFloat64(vm.Commands.WithLabelValues("parseGCode")); got != 1 {
		t.Errorf("expected 1 parseGCode, got %v", got)
	}
	if got := testutil.ToFloat64(vm.Commands.WithLabelValues("unknown")); got != 2 {
		t.Errorf("expected 2 unknown commands, got %v", got)
	}
	if got := testutil.CollectAndCount(vm.Commands); got != 2 {
		t.Errorf("expected 2 label sets, got %d", got)
	}
}

func TestWorkerGauges(t *testing.T) {
	vm := newTestMetrics()
	vm.WorkerStarted()
	vm.WorkerStarted()
	vm.WorkerStopped()
	vm.RecordRestart()
	vm.ModelHeld(1)
	vm.ModelHeld(1)
	vm.ModelHeld(-1)
	vm.ConnectionOpened()
	vm.ConnectionClosed()

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"workers", vm.WorkersActive, 1},
		{"restarts", vm.WorkerRestarts, 1},
		{"models", vm.ModelsHeld, 1},
		{"connections", vm.ConnectionsOpen, 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestNilMetrics(t *testing.T) {
	var vm *ViewerMetrics
	// none of these may panic
	vm.RecordParse(StatusOK, 1, 1, time.Second)
	vm.RecordChunk()
	vm.RecordWarning("x")
	vm.RecordAnalyze(StatusOK, 0, time.Second)
	vm.RecordCommand("parseGCode", true)
	vm.WorkerStarted()
	vm.WorkerStopped()
	vm.RecordRestart()
	vm.ModelHeld(1)
	vm.ConnectionOpened()
	vm.ConnectionClosed()
}

func TestGlobalMetrics(t *testing.T) {
	a := GlobalMetrics()
	b := GlobalMetrics()
	if a == nil || a != b {
		t.Error("GlobalMetrics should return a single instance")
	}
	if a.Registry() == nil {
		t.Error("registry should not be nil")
	}
}
