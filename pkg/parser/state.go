package parser

import (
	"gcodeview/pkg/model"
)

const defaultFeedRate = 4000 // mm/min until the first F

// extruder is the per-tool extrusion accumulator.
type extruder struct {
	axes      [4]float64 // A, B, C, E
	abs       float64    // last delta
	retracted bool
}

func axisSlot(letter byte) int {
	switch letter {
	case 'A':
		return 0
	case 'B':
		return 1
	case 'C':
		return 2
	default:
		return 3
	}
}

// update applies one extrusion axis value and returns the resulting delta.
func (e *extruder) update(letter byte, v float64, relative bool) float64 {
	slot := axisSlot(letter)
	if relative {
		e.abs = v
		e.axes[slot] += v
	} else {
		e.abs = v - e.axes[slot]
		e.axes[slot] = v
	}
	return e.abs
}

// transition derives the extrude flag and retract transition for delta.
// extrude and a non-zero retract never occur together.
func (e *extruder) transition(delta float64) (bool, model.Retract) {
	switch {
	case delta < 0:
		if e.retracted {
			return false, model.RetractNone
		}
		e.retracted = true
		return false, model.RetractStart
	case delta == 0:
		return false, model.RetractNone
	case e.retracted:
		e.retracted = false
		return false, model.RetractEnd
	default:
		return true, model.RetractNone
	}
}

func (e *extruder) reset() {
	e.axes = [4]float64{}
	e.abs = 0
}

// state is the modal machine state of one parse run.
type state struct {
	relative        bool
	relativeExtrude bool
	direct          bool
	inches          bool

	tool      int
	offset    model.ToolOffset
	offsets   []model.ToolOffset
	extruders map[int]*extruder

	feed  float64
	laser float64

	prevX, prevY, prevZ model.Axis

	zToLayer map[float64]int
	layer    int
}

func newState(opts Options) *state {
	offsets := opts.ToolOffsets
	if len(offsets) == 0 {
		offsets = []model.ToolOffset{{}}
	}
	s := &state{
		inches:    opts.Inches,
		offsets:   offsets,
		offset:    offsets[0],
		feed:      defaultFeedRate,
		extruders: make(map[int]*extruder),
		zToLayer:  make(map[float64]int),
	}
	s.selectTool(0)
	return s
}

// current returns the extrusion accumulator of the selected tool.
func (s *state) current() *extruder {
	return s.extruders[s.tool]
}

// selectTool switches tool, creating its accumulator on first use. Unknown
// tools get a zero offset.
func (s *state) selectTool(tool int) {
	s.tool = tool
	if s.extruders[tool] == nil {
		s.extruders[tool] = &extruder{}
	}
	s.offset = model.ToolOffset{}
	if tool < len(s.offsets) {
		s.offset = s.offsets[tool]
	}
}

// layerFor returns the layer index of z, adding a layer to m when z has not
// been seen before.
func (s *state) layerFor(m *model.Model, z float64) int {
	idx, ok := s.zToLayer[z]
	if !ok {
		idx = m.AddLayer(z)
		s.zToLayer[z] = idx
	}
	s.layer = idx
	return idx
}
