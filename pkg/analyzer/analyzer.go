// Package analyzer computes bounds, filament, timing and speed statistics
// over a parsed model.
package analyzer

import (
	"context"
	"math"

	"gcodeview/pkg/log"
	"gcodeview/pkg/model"
)

// Analyzer runs analysis passes. The zero value logs through the default
// logger.
type Analyzer struct {
	Logger *log.Logger
}

// Analyze runs a pass with the default Analyzer.
func Analyze(ctx context.Context, m *model.Model, progress func(Progress)) (*Result, error) {
	return (&Analyzer{}).Analyze(ctx, m, progress)
}

// Analyze walks every record in layer-then-record order. The model is not
// modified. progress, when non-nil, is called after each layer.
func (a *Analyzer) Analyze(ctx context.Context, m *model.Model, progress func(Progress)) (*Result, error) {
	logger := a.Logger
	if logger == nil {
		logger = log.GetLogger("analyzer")
	}

	p := pass{
		res: &Result{
			TotalFilament: make(map[int]float64),
			LayerTotal:    m.NumLayers(),
		},
		byZ:    make(map[float64]int),
		logger: logger,
	}

	n := m.NumLayers()
	for li := 0; li < n; li++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		layer := m.Layer(li)
		extruding := false
		for i := range layer.Records {
			r := &layer.Records[i]
			p.record(li, r)
			if r.Extrude {
				extruding = true
			}
		}
		if extruding {
			p.res.LayerCount++
		}
		if progress != nil {
			progress(Progress{
				Percent:   float64(li+1) / float64(n) * 100,
				PrintTime: p.res.PrintTime,
			})
		}
	}

	res := p.res
	res.Size = Size{X: res.Bounds.X.Size(), Y: res.Bounds.Y.Size(), Z: res.Bounds.Z.Size()}
	res.LayerHeight = model.Some(math.NaN())
	if res.LayerCount > 1 && res.Bounds.Z.Min.Valid {
		res.LayerHeight = model.Some((res.Bounds.Z.Max.Value - res.Bounds.Z.Min.Value) / float64(res.LayerCount-1))
	}

	logger.WithFields(log.Fields{
		"layers":     res.LayerTotal,
		"printed":    res.LayerCount,
		"print_time": res.PrintTime,
		"anomalies":  res.Anomalies,
	}).Debug("analysis complete")
	return res, nil
}

type pass struct {
	res    *Result
	byZ    map[float64]int
	logger *log.Logger
}

func (p *pass) bucket(z float64) *ZStats {
	idx, ok := p.byZ[z]
	if !ok {
		idx = len(p.res.ByZ)
		p.byZ[z] = idx
		p.res.ByZ = append(p.res.ByZ, ZStats{Z: z, Filament: make(map[int]float64)})
	}
	return &p.res.ByZ[idx]
}

func (p *pass) record(layer int, r *model.Record) {
	res := p.res
	zs := p.bucket(r.BucketZ())

	if r.X.Finite() && r.PrevX.Valid {
		res.Bounds.X.extend(r.X.Value)
	}
	if r.Y.Finite() && r.PrevY.Valid {
		res.Bounds.Y.extend(r.Y.Value)
	}
	if r.Extrude && r.PrevZ.Finite() {
		res.Bounds.Z.extend(r.PrevZ.Value)
	}

	amount := r.ExtrusionAmount
	if amount != 0 && finite(amount) {
		res.TotalFilament[r.Tool] += amount
		zs.Filament[r.Tool] += amount
	}

	t := recordTime(r)
	res.PrintTime += t
	zs.PrintTime += t

	class := p.classify(layer, r)
	res.Speeds.add(class, r.FeedRate)
	zs.Speeds.add(class, r.FeedRate)
}

// recordTime is the constant-velocity duration of r in seconds. A move with
// resolved XY takes its chord; anything else takes its extrusion length.
func recordTime(r *model.Record) float64 {
	xy := !r.NoMove && r.X.Finite() && r.Y.Finite() && r.PrevX.Finite() && r.PrevY.Finite()
	fps := r.FeedRate / 60
	amount := math.Abs(r.ExtrusionAmount)

	var t float64
	switch {
	case xy:
		t = math.Hypot(r.X.Value-r.PrevX.Value, r.Y.Value-r.PrevY.Value) / fps
	case amount != 0:
		t = amount / fps
	}
	if !finite(t) {
		return 0
	}
	return t
}

func (p *pass) classify(layer int, r *model.Record) Class {
	switch {
	case r.Extrude && r.Retract == model.RetractNone:
		return ClassExtrude
	case !r.Extrude && r.Retract != model.RetractNone:
		return ClassRetract
	case !r.Extrude:
		return ClassMove
	}
	p.res.Anomalies++
	p.logger.WithFields(log.Fields{
		"layer":   layer,
		"line":    r.SourceLine,
		"retract": int(r.Retract),
	}).Warn("unknown move type")
	return ClassMove
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
