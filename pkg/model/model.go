// Package model holds the per-layer geometric model built from G-code.
package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// Axis is an optional coordinate. The zero value is undefined.
type Axis struct {
	Value float64
	Valid bool
}

// Some returns a defined axis value.
func Some(v float64) Axis { return Axis{Value: v, Valid: true} }

// None is the undefined axis.
var None = Axis{}

// Get returns the value and whether it is defined.
func (a Axis) Get() (float64, bool) { return a.Value, a.Valid }

// Or returns the value, or def when undefined.
func (a Axis) Or(def float64) float64 {
	if a.Valid {
		return a.Value
	}
	return def
}

// Finite reports whether the axis is defined and a finite number.
func (a Axis) Finite() bool {
	return a.Valid && !math.IsNaN(a.Value) && !math.IsInf(a.Value, 0)
}

func (a Axis) String() string {
	if !a.Valid {
		return "undefined"
	}
	return strconv.FormatFloat(a.Value, 'f', -1, 64)
}

// MarshalJSON encodes undefined and non-finite values as null.
func (a Axis) MarshalJSON() ([]byte, error) {
	if !a.Finite() {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value)
}

// UnmarshalJSON accepts a number or null.
func (a *Axis) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = None
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Some(v)
	return nil
}

// Line is one input line with the caller's progress marker.
type Line struct {
	Text       string  `json:"text"`
	Percentage float64 `json:"percentage"`
}

// ToolOffset is added to absolute X/Y while the tool is selected.
type ToolOffset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Retract marks a change of retraction state on a record.
type Retract int8

const (
	RetractNone  Retract = 0
	RetractEnd   Retract = 1  // retraction ends (filament pushed back)
	RetractStart Retract = -1 // retraction begins
)

// Record is one emitted move or state change.
type Record struct {
	X               Axis    `json:"x"`
	Y               Axis    `json:"y"`
	Z               float64 `json:"z"`
	Extrude         bool    `json:"extrude"`
	LaserPower      float64 `json:"laser_power"`
	Retract         Retract `json:"retract"`
	NoMove          bool    `json:"no_move"`
	ExtrusionAmount float64 `json:"extrusion"`
	PrevX           Axis    `json:"prev_x"`
	PrevY           Axis    `json:"prev_y"`
	PrevZ           Axis    `json:"prev_z"`
	FeedRate        float64 `json:"speed"`
	SourceLine      int     `json:"gcode_line"`
	Percentage      float64 `json:"percentage"`
	Tool            int     `json:"tool"`
}

// BucketZ is the Z used for per-height statistics: PrevZ, falling back to Z.
func (r *Record) BucketZ() float64 {
	return r.PrevZ.Or(r.Z)
}

// Layer is the ordered list of records sharing one Z bucket.
type Layer struct {
	Index   int      `json:"index"`
	Z       float64  `json:"z"`
	Records []Record `json:"records"`
}

// Clone returns a deep copy of the layer.
func (l *Layer) Clone() *Layer {
	out := &Layer{Index: l.Index, Z: l.Z, Records: make([]Record, len(l.Records))}
	copy(out.Records, l.Records)
	return out
}

// Model is the ordered list of layers of one parse run.
type Model struct {
	Layers []*Layer `json:"layers"`
}

// New returns an empty model.
func New() *Model {
	return &Model{}
}

// AddLayer appends an empty layer at height z and returns its index.
func (m *Model) AddLayer(z float64) int {
	idx := len(m.Layers)
	m.Layers = append(m.Layers, &Layer{Index: idx, Z: z})
	return idx
}

// Append adds records to layer idx. The layer must exist.
func (m *Model) Append(idx int, recs ...Record) {
	l := m.Layers[idx]
	l.Records = append(l.Records, recs...)
}

// Layer returns layer i, or an empty layer when i is out of range.
func (m *Model) Layer(i int) *Layer {
	if m == nil || i < 0 || i >= len(m.Layers) {
		return &Layer{Index: i}
	}
	return m.Layers[i]
}

// NumLayers returns the number of layers.
func (m *Model) NumLayers() int {
	if m == nil {
		return 0
	}
	return len(m.Layers)
}

// NumRecords returns the total record count over all layers.
func (m *Model) NumRecords() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, l := range m.Layers {
		n += len(l.Records)
	}
	return n
}

// Each calls fn for every record in layer-then-record order. It stops early
// when fn returns false.
func (m *Model) Each(fn func(layer int, r *Record) bool) {
	if m == nil {
		return
	}
	for li, l := range m.Layers {
		for i := range l.Records {
			if !fn(li, &l.Records[i]) {
				return
			}
		}
	}
}
