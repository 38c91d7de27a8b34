package analyzer

import (
	"context"
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gcodeview/pkg/log"
	"gcodeview/pkg/model"
	"gcodeview/pkg/parser"
)

func move(px, py, x, y, pz float64, feed float64) model.Record {
	return model.Record{
		X:        model.Some(x),
		Y:        model.Some(y),
		Z:        pz,
		PrevX:    model.Some(px),
		PrevY:    model.Some(py),
		PrevZ:    model.Some(pz),
		FeedRate: feed,
	}
}

func extrude(px, py, x, y, pz, amount, feed float64) model.Record {
	r := move(px, py, x, y, pz, feed)
	r.Extrude = true
	r.ExtrusionAmount = amount
	return r
}

func buildModel(layers ...[]model.Record) *model.Model {
	m := model.New()
	for _, recs := range layers {
		z := 0.0
		if len(recs) > 0 {
			z = recs[0].Z
		}
		idx := m.AddLayer(z)
		m.Append(idx, recs...)
	}
	return m
}

func analyze(t *testing.T, m *model.Model) *Result {
	t.Helper()
	a := &Analyzer{Logger: log.Nop()}
	res, err := a.Analyze(context.Background(), m, nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	return res
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBoundsIgnoreTravelZ(t *testing.T) {
	m := buildModel(
		[]model.Record{
			extrude(0, 0, 10, 0, 0.2, 1, 600),
			extrude(10, 0, 10, 20, 0.2, 1, 600),
		},
		[]model.Record{
			extrude(10, 20, -5, 20, 0.4, 1, 600),
		},
		[]model.Record{
			// travel only, high up
			move(-5, 20, 0, 0, 5, 6000),
		},
	)
	res := analyze(t, m)

	if !approx(res.Bounds.X.Min.Value, -5) || !approx(res.Bounds.X.Max.Value, 10) {
		t.Errorf("expected X bounds [-5, 10], got [%v, %v]", res.Bounds.X.Min, res.Bounds.X.Max)
	}
	if !approx(res.Bounds.Y.Min.Value, 0) || !approx(res.Bounds.Y.Max.Value, 20) {
		t.Errorf("expected Y bounds [0, 20], got [%v, %v]", res.Bounds.Y.Min, res.Bounds.Y.Max)
	}
	if !approx(res.Bounds.Z.Min.Value, 0.2) || !approx(res.Bounds.Z.Max.Value, 0.4) {
		t.Errorf("expected Z bounds [0.2, 0.4], got [%v, %v]", res.Bounds.Z.Min, res.Bounds.Z.Max)
	}
	if !approx(res.Size.X.Value, 15) || !approx(res.Size.Z.Value, 0.2) {
		t.Errorf("expected size X=15 Z=0.2, got X=%v Z=%v", res.Size.X, res.Size.Z)
	}
}

func TestBoundsSkipUndefinedPrevious(t *testing.T) {
	first := model.Record{X: model.Some(100), Y: model.Some(100), Z: 0.2}
	m := buildModel([]model.Record{first, extrude(100, 100, 110, 105, 0.2, 1, 600)})
	res := analyze(t, m)

	if res.Bounds.X.Min.Value != 110 || res.Bounds.X.Max.Value != 110 {
		t.Errorf("expected X bounds [110, 110], got [%v, %v]", res.Bounds.X.Min, res.Bounds.X.Max)
	}
	if res.Bounds.Y.Min.Value != 105 {
		t.Errorf("expected first record to be excluded from Y bounds, got min %v", res.Bounds.Y.Min)
	}
}

func TestEmptyModel(t *testing.T) {
	res := analyze(t, model.New())
	if res.LayerTotal != 0 || res.LayerCount != 0 {
		t.Errorf("expected no layers, got total=%d count=%d", res.LayerTotal, res.LayerCount)
	}
	if res.Bounds.X.Min.Valid || res.Size.X.Valid {
		t.Errorf("expected undefined bounds, got %+v", res.Bounds.X)
	}
	if !math.IsNaN(res.LayerHeight.Value) {
		t.Errorf("expected NaN layer height, got %v", res.LayerHeight.Value)
	}
}

func TestPrintTime(t *testing.T) {
	retract := move(5, 5, 5, 5, 0.2, 1800)
	retract.NoMove = true
	retract.Retract = model.RetractStart
	retract.ExtrusionAmount = -2

	// The chord wins over a longer retract once XY is known.
	wipe := move(0, 0, 3, 4, 0.2, 600)
	wipe.Retract = model.RetractStart
	wipe.ExtrusionAmount = -20

	prime := model.Record{Z: 0.2, PrevZ: model.Some(0.2), NoMove: true, Extrude: true, ExtrusionAmount: 3, FeedRate: 60}

	stopped := move(0, 0, 10, 0, 0.2, 0)

	tests := []struct {
		name string
		rec  model.Record
		want float64
	}{
		{"chord", move(0, 0, 30, 40, 0.2, 600), 5},
		{"retract", retract, 2.0 / 30},
		{"retract while moving", wipe, 0.5},
		{"extrusion only", prime, 3},
		{"zero feed", stopped, 0},
	}

	total := 0.0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recordTime(&tt.rec); !approx(got, tt.want) {
				t.Errorf("expected %v seconds, got %v", tt.want, got)
			}
		})
		total += tt.want
	}

	var recs []model.Record
	for _, tt := range tests {
		recs = append(recs, tt.rec)
	}
	res := analyze(t, buildModel(recs))
	if !approx(res.PrintTime, total) {
		t.Errorf("expected total print time %v, got %v", total, res.PrintTime)
	}
	zs, ok := res.ForZ(0.2)
	if !ok || !approx(zs.PrintTime, total) {
		t.Errorf("expected per-Z print time %v, got %+v", total, zs)
	}
}

func TestNoMoveRecordsHaveNoChord(t *testing.T) {
	reset := move(10, 10, 0, 0, 0.2, 600)
	reset.NoMove = true
	if got := recordTime(&reset); got != 0 {
		t.Errorf("expected position reset to take no time, got %v", got)
	}
}

func TestFilamentPerTool(t *testing.T) {
	a := extrude(0, 0, 10, 0, 0.2, 1.5, 600)
	b := extrude(10, 0, 20, 0, 0.2, 2, 600)
	b.Tool = 1
	c := extrude(20, 0, 30, 0, 0.4, 0.5, 600)
	r := move(30, 0, 30, 0, 0.4, 1800)
	r.Retract = model.RetractStart
	r.ExtrusionAmount = -1

	res := analyze(t, buildModel([]model.Record{a, b}, []model.Record{c, r}))

	want := map[int]float64{0: 1.0, 1: 2}
	if !reflect.DeepEqual(res.TotalFilament, want) {
		t.Errorf("expected filament %v, got %v", want, res.TotalFilament)
	}
	if !approx(res.Filament(), 3) {
		t.Errorf("expected total filament 3, got %v", res.Filament())
	}

	zs, ok := res.ForZ(0.4)
	if !ok {
		t.Fatal("expected a 0.4 bucket")
	}
	if !approx(zs.Filament[0], -0.5) {
		t.Errorf("expected 0.4 bucket filament -0.5, got %v", zs.Filament[0])
	}
}

func TestSpeedClasses(t *testing.T) {
	r := move(0, 0, 0, 0, 0.2, 2400)
	r.Retract = model.RetractStart
	r.ExtrusionAmount = -1

	recs := []model.Record{
		move(0, 0, 10, 0, 0.2, 6000),
		extrude(10, 0, 20, 0, 0.2, 1, 1200),
		extrude(20, 0, 30, 0, 0.2, 1, 1800),
		extrude(30, 0, 40, 0, 0.2, 1, 1200),
		r,
		move(40, 0, 0, 0, 0.2, 6000),
	}
	res := analyze(t, buildModel(recs))

	want := Speeds{
		Extrude: []float64{1200, 1800},
		Retract: []float64{2400},
		Move:    []float64{6000},
	}
	if !reflect.DeepEqual(res.Speeds, want) {
		t.Errorf("expected speeds %+v, got %+v", want, res.Speeds)
	}
	if got := res.Speeds.Of(ClassExtrude); len(got) != 2 {
		t.Errorf("expected 2 extrude speeds, got %v", got)
	}
	zs, _ := res.ForZ(0.2)
	if !reflect.DeepEqual(zs.Speeds, want) {
		t.Errorf("expected per-Z speeds %+v, got %+v", want, zs.Speeds)
	}
	if res.Anomalies != 0 {
		t.Errorf("expected no anomalies, got %d", res.Anomalies)
	}
}

func TestAnomalyIsCountedAsMove(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	a := &Analyzer{Logger: log.FromZap(zap.New(core), "analyzer")}

	bad := extrude(0, 0, 10, 0, 0.2, 1, 900)
	bad.Retract = model.RetractStart
	bad.SourceLine = 7

	res, err := a.Analyze(context.Background(), buildModel([]model.Record{bad}), nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.Anomalies != 1 {
		t.Errorf("expected 1 anomaly, got %d", res.Anomalies)
	}
	if !reflect.DeepEqual(res.Speeds.Move, []float64{900}) {
		t.Errorf("expected anomaly speed in move class, got %+v", res.Speeds)
	}
	entries := logs.FilterMessage("unknown move type").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(entries))
	}
	if line := entries[0].ContextMap()["line"]; line != int64(7) {
		t.Errorf("expected line 7 in warning, got %v", line)
	}
}

func TestLayerHeight(t *testing.T) {
	res := analyze(t, buildModel(
		[]model.Record{extrude(0, 0, 1, 0, 0.2, 1, 600)},
		[]model.Record{move(1, 0, 2, 0, 0.3, 600)},
		[]model.Record{extrude(2, 0, 3, 0, 0.4, 1, 600)},
		[]model.Record{extrude(3, 0, 4, 0, 0.6, 1, 600)},
	))
	if res.LayerTotal != 4 || res.LayerCount != 3 {
		t.Errorf("expected 4 layers with 3 printed, got %d/%d", res.LayerTotal, res.LayerCount)
	}
	if !approx(res.LayerHeight.Value, 0.2) {
		t.Errorf("expected layer height 0.2, got %v", res.LayerHeight.Value)
	}

	single := analyze(t, buildModel([]model.Record{extrude(0, 0, 1, 0, 0.2, 1, 600)}))
	if !math.IsNaN(single.LayerHeight.Value) {
		t.Errorf("expected NaN layer height for one layer, got %v", single.LayerHeight.Value)
	}
	out, err := json.Marshal(single)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if v, ok := decoded["layer_height"]; !ok || v != nil {
		t.Errorf("expected null layer_height, got %v", v)
	}
}

func TestProgressPerLayer(t *testing.T) {
	m := buildModel(
		[]model.Record{extrude(0, 0, 10, 0, 0.2, 1, 600)},
		[]model.Record{extrude(10, 0, 20, 0, 0.4, 1, 600)},
		[]model.Record{},
		[]model.Record{extrude(20, 0, 30, 0, 0.6, 1, 600)},
	)

	var got []Progress
	a := &Analyzer{Logger: log.Nop()}
	if _, err := a.Analyze(context.Background(), m, func(p Progress) { got = append(got, p) }); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(got) != 4 {
		t.Fatalf("expected 4 progress reports, got %d", len(got))
	}
	wantPercent := []float64{25, 50, 75, 100}
	wantTime := []float64{1, 2, 2, 3}
	for i, p := range got {
		if !approx(p.Percent, wantPercent[i]) {
			t.Errorf("report %d: expected %v%%, got %v", i, wantPercent[i], p.Percent)
		}
		if !approx(p.PrintTime, wantTime[i]) {
			t.Errorf("report %d: expected %v seconds, got %v", i, wantTime[i], p.PrintTime)
		}
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &Analyzer{Logger: log.Nop()}
	_, err := a.Analyze(ctx, buildModel([]model.Record{move(0, 0, 1, 1, 0, 600)}), nil)
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAnalyzeParsedModel(t *testing.T) {
	opts := parser.DefaultOptions()
	opts.Logger = log.Nop()
	lines := []model.Line{
		{Text: "G1 X0 Y0 Z0.2 F600"},
		{Text: "G1 X10 E1"},
		{Text: "G1 Z0.4"},
		{Text: "G1 X0 E2"},
	}
	m, err := parser.Parse(context.Background(), lines, opts, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	before := m.NumRecords()

	res := analyze(t, m)

	if m.NumRecords() != before {
		t.Errorf("expected model to be unchanged, got %d records (was %d)", m.NumRecords(), before)
	}
	if !approx(res.TotalFilament[0], 2) {
		t.Errorf("expected 2mm filament, got %v", res.TotalFilament[0])
	}
	if res.LayerCount != 2 || !approx(res.LayerHeight.Value, 0.2) {
		t.Errorf("expected 2 layers of 0.2, got %d of %v", res.LayerCount, res.LayerHeight.Value)
	}
	if !approx(res.PrintTime, 2) {
		t.Errorf("expected 2 seconds, got %v", res.PrintTime)
	}
	if !approx(res.Bounds.X.Min.Value, 0) || !approx(res.Bounds.X.Max.Value, 10) {
		t.Errorf("expected X bounds [0, 10], got [%v, %v]", res.Bounds.X.Min, res.Bounds.X.Max)
	}
}

func TestPrimeAtTravelHeight(t *testing.T) {
	opts := parser.DefaultOptions()
	opts.Logger = log.Nop()
	lines := []model.Line{
		{Text: "G1 X0 Y0 Z5"},
		{Text: "G1 E2 F300"},
		{Text: "G1 Z0.2"},
		{Text: "G1 X10 E3"},
		{Text: "G1 Z0.4"},
		{Text: "G1 X0 E4"},
	}
	m, err := parser.Parse(context.Background(), lines, opts, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	res := analyze(t, m)
	if !approx(res.Bounds.Z.Min.Value, 0.2) || !approx(res.Bounds.Z.Max.Value, 0.4) {
		t.Errorf("expected Z bounds [0.2, 0.4], got [%v, %v]", res.Bounds.Z.Min, res.Bounds.Z.Max)
	}
	if res.LayerCount != 2 {
		t.Errorf("expected 2 printed layers, got %d", res.LayerCount)
	}
	if !approx(res.LayerHeight.Value, 0.2) {
		t.Errorf("expected layer height 0.2, got %v", res.LayerHeight.Value)
	}
}
