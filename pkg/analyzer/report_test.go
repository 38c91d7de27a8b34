package analyzer

import (
	"math"
	"strings"
	"testing"

	"gcodeview/pkg/model"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0s"},
		{59.4, "59s"},
		{61, "1m 01s"},
		{3723, "1h 02m 03s"},
		{math.NaN(), "-"},
		{-1, "-"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestGenerateReport(t *testing.T) {
	res := &Result{
		Bounds: Box{
			X: Range{Min: model.Some(0), Max: model.Some(10)},
			Y: Range{Min: model.Some(0), Max: model.Some(5)},
		},
		TotalFilament: map[int]float64{1: 2, 0: 3},
		PrintTime:     61,
		LayerHeight:   model.Some(math.NaN()),
		LayerCount:    1,
		LayerTotal:    2,
		Speeds:        Speeds{Extrude: []float64{1200, 1800}},
		ByZ:           []ZStats{{Z: 0.2, Filament: map[int]float64{0: 3, 1: 2}, PrintTime: 61}},
		Anomalies:     1,
	}

	report := GenerateReport(res, "cube.gcode", false)
	for _, want := range []string{
		"cube.gcode\n==========",
		"Print time:    1m 01s",
		"Filament:      5.00 mm",
		"Layers:        1 printed of 2",
		"Layer height:  -",
		"Bounds X:      0.00 .. 10.00",
		"Bounds Z:      - .. -",
		"Extrude speeds: 1200, 1800",
		"Retract speeds: -",
		"1 moves both extruded and retracted",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("expected report to contain %q\n%s", want, report)
		}
	}
	if strings.Index(report, "T0:") > strings.Index(report, "T1:") {
		t.Error("expected tools in ascending order")
	}
	if strings.Contains(report, "Per height") {
		t.Error("expected no per-height table without verbose")
	}

	verbose := GenerateReport(res, "", true)
	if !strings.Contains(verbose, "Per height") || !strings.Contains(verbose, "0.200") {
		t.Errorf("expected per-height table\n%s", verbose)
	}
}
