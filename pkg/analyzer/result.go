package analyzer

import (
	"math"

	"gcodeview/pkg/model"
)

// Range is the extent of one axis. Both ends are undefined until a sample
// is seen.
type Range struct {
	Min model.Axis `json:"min"`
	Max model.Axis `json:"max"`
}

func (r *Range) extend(v float64) {
	if !r.Min.Valid || v < r.Min.Value {
		r.Min = model.Some(v)
	}
	if !r.Max.Valid || v > r.Max.Value {
		r.Max = model.Some(v)
	}
}

// Size returns |max - min|, or undefined when the range is empty.
func (r Range) Size() model.Axis {
	if !r.Min.Valid || !r.Max.Valid {
		return model.None
	}
	return model.Some(math.Abs(r.Max.Value - r.Min.Value))
}

// Box is the model bounding box. Z is sampled only on extruding records.
type Box struct {
	X Range `json:"x"`
	Y Range `json:"y"`
	Z Range `json:"z"`
}

// Size is the per-axis extent of a Box.
type Size struct {
	X model.Axis `json:"x"`
	Y model.Axis `json:"y"`
	Z model.Axis `json:"z"`
}

// Class is the speed histogram bucket of a record.
type Class string

const (
	ClassExtrude Class = "extrude"
	ClassRetract Class = "retract"
	ClassMove    Class = "move"
)

// Speeds holds distinct feed rates per class in discovery order.
type Speeds struct {
	Extrude []float64 `json:"extrude"`
	Retract []float64 `json:"retract"`
	Move    []float64 `json:"move"`
}

func (s *Speeds) add(c Class, feed float64) {
	var list *[]float64
	switch c {
	case ClassExtrude:
		list = &s.Extrude
	case ClassRetract:
		list = &s.Retract
	default:
		list = &s.Move
	}
	for _, v := range *list {
		if v == feed {
			return
		}
	}
	*list = append(*list, feed)
}

// Of returns the speeds of class c.
func (s *Speeds) Of(c Class) []float64 {
	switch c {
	case ClassExtrude:
		return s.Extrude
	case ClassRetract:
		return s.Retract
	default:
		return s.Move
	}
}

// ZStats aggregates the records of one Z bucket.
type ZStats struct {
	Z         float64         `json:"z"`
	Filament  map[int]float64 `json:"filament"`
	PrintTime float64         `json:"print_time"`
	Speeds    Speeds          `json:"speeds"`
}

// Result is the outcome of one analysis pass.
type Result struct {
	Bounds Box  `json:"bounds"`
	Size   Size `json:"size"`

	// TotalFilament is the extrusion per tool index.
	TotalFilament map[int]float64 `json:"total_filament"`

	// PrintTime is the estimated duration in seconds.
	PrintTime float64 `json:"print_time"`

	// LayerHeight is NaN when fewer than two layers extrude.
	LayerHeight model.Axis `json:"layer_height"`
	LayerCount  int        `json:"layer_count"`
	LayerTotal  int        `json:"layer_total"`

	Speeds Speeds `json:"speeds"`

	// ByZ holds per-height statistics in discovery order.
	ByZ []ZStats `json:"by_z"`

	Anomalies int `json:"anomalies"`
}

// ForZ returns the statistics of bucket z.
func (r *Result) ForZ(z float64) (*ZStats, bool) {
	for i := range r.ByZ {
		if r.ByZ[i].Z == z {
			return &r.ByZ[i], true
		}
	}
	return nil, false
}

// Filament returns the total extrusion over all tools.
func (r *Result) Filament() float64 {
	total := 0.0
	for _, v := range r.TotalFilament {
		total += v
	}
	return total
}

// Progress is reported once per analysed layer.
type Progress struct {
	Percent   float64 `json:"progress"`
	PrintTime float64 `json:"print_time"`
}
