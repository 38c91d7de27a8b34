package parser

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gcodeview/pkg/gcode"
	"gcodeview/pkg/log"
	"gcodeview/pkg/model"
)

// ctxCheckInterval is how many lines are processed between context checks.
const ctxCheckInterval = 1024

// Parse interprets lines in order and returns the model. Bad input never
// fails a run: unknown commands are ignored and malformed arguments skipped.
// The only error is ctx's, when it is cancelled before the run completes.
func Parse(ctx context.Context, lines []model.Line, opts Options, sink Sink) (*model.Model, error) {
	if sink == nil {
		sink = SinkFuncs{}
	}
	if opts.ChunkRatio <= 0 {
		opts.ChunkRatio = DefaultOptions().ChunkRatio
	}
	if opts.MaxArcSegments <= 0 {
		opts.MaxArcSegments = gcode.DefaultMaxArcSegments
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger("parser")
	}

	p := &run{
		opts:   opts,
		st:     newState(opts),
		m:      model.New(),
		sink:   sink,
		logger: logger,
		chunks: newChunker(len(lines), opts.ChunkRatio),
	}

	for i := range lines {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		p.line(i, lines[i])
	}
	p.flush(100)

	logger.WithFields(log.Fields{
		"lines":   len(lines),
		"layers":  p.m.NumLayers(),
		"records": p.m.NumRecords(),
	}).Debug("parse complete")
	return p.m, nil
}

type run struct {
	opts   Options
	st     *state
	m      *model.Model
	sink   Sink
	logger *log.Logger
	chunks *chunker
}

// motion is the outcome of reading one command's arguments.
type motion struct {
	x, y, z   model.Axis // explicit targets, already resolved
	extrude   bool
	retract   model.Retract
	amount    float64
	hasExtrus bool
	move      bool // emitted records are moves rather than position resets
}

func (mo *motion) explicitXYZ() bool {
	return mo.x.Valid || mo.y.Valid || mo.z.Valid
}

func (p *run) line(i int, ln model.Line) {
	cmd := gcode.ParseLine(ln.Text)
	if cmd == nil || cmd.Kind == gcode.KindUnknown {
		return
	}
	if len(cmd.Malformed) > 0 {
		p.logger.WithFields(log.Fields{
			"line":   i,
			"tokens": cmd.Malformed,
		}).Debug("skipped malformed arguments")
	}

	st := p.st
	var mo motion
	emit := false
	arc := false

	switch cmd.Kind {
	case gcode.KindLinear:
		p.readMove(cmd, &mo)
		mo.move = true
		emit = mo.explicitXYZ() || mo.retract != model.RetractNone
	case gcode.KindArcCW, gcode.KindArcCCW:
		p.readMove(cmd, &mo)
		mo.move = true
		arc = mo.explicitXYZ() || cmd.Has('I') || cmd.Has('J') || cmd.Has('P') || mo.retract != model.RetractNone
	case gcode.KindAbsoluteExtrusion:
		st.relativeExtrude = false
	case gcode.KindRelativeExtrusion:
		st.relativeExtrude = true
	case gcode.KindLaserOn:
		if v, ok := cmd.Get('S'); ok {
			st.laser = v
		}
	case gcode.KindLaserOff:
		st.laser = 0
	case gcode.KindAbsolute:
		st.relative = false
		st.relativeExtrude = false
	case gcode.KindRelative:
		st.relative = true
		st.relativeExtrude = true
	case gcode.KindDirectOn:
		st.direct = true
	case gcode.KindDirectOff:
		st.direct = false
	case gcode.KindSetPosition:
		p.setPosition(cmd, &mo)
		emit = mo.explicitXYZ()
	case gcode.KindHome:
		p.home(cmd, &mo)
		mo.move = true
		emit = mo.explicitXYZ()
	case gcode.KindTool:
		st.selectTool(cmd.Tool)
	case gcode.KindInches:
		st.inches = true
	case gcode.KindMillimeters:
		st.inches = false
	}

	z := mo.z.Or(st.prevZ.Or(0))
	layer := st.layerFor(p.m, z)

	switch {
	case arc:
		p.emitArc(i, ln, cmd, &mo, layer)
	case emit:
		p.m.Append(layer, p.record(i, ln, &mo, z))
	}

	if mo.x.Valid {
		st.prevX = mo.x
	}
	if mo.y.Valid {
		st.prevY = mo.y
	}
	if mo.z.Valid {
		st.prevZ = mo.z
	}

	if p.chunks.due(i) {
		p.flush(float64(i) / float64(p.chunks.total) * 100)
		p.chunks.lastSend = i
	}
	p.chunks.add(layer, z)
}

// readMove reads X/Y/Z, extrusion axes and F of a G0-G3 command. The tool
// offset is added to X and Y in both positioning modes.
func (p *run) readMove(cmd *gcode.Command, mo *motion) {
	st := p.st
	ext := st.current()
	for _, prm := range cmd.Params {
		v := prm.Value
		switch prm.Letter {
		case 'X':
			if st.relative {
				mo.x = model.Some(st.prevX.Or(0) + v + st.offset.X)
			} else {
				mo.x = model.Some(v + st.offset.X)
			}
		case 'Y':
			if st.relative {
				mo.y = model.Some(st.prevY.Or(0) + v + st.offset.Y)
			} else {
				mo.y = model.Some(v + st.offset.Y)
			}
		case 'Z':
			if st.relative {
				mo.z = model.Some(st.prevZ.Or(0) + v)
			} else {
				mo.z = model.Some(v)
			}
		case 'E', 'A', 'B', 'C':
			mo.hasExtrus = true
			delta := ext.update(prm.Letter, v, st.relativeExtrude)
			mo.extrude, mo.retract = ext.transition(delta)
			mo.amount = delta
		case 'F':
			st.feed = v
		}
	}

	if st.direct && !mo.hasExtrus {
		mo.extrude = true
		mo.amount = p.travel(mo)
		ext.abs = mo.amount
	}
	if !mo.extrude && mo.retract == model.RetractNone {
		mo.amount = 0
	}
}

// travel is the XY distance of the move, or 0 when the start is unknown.
func (p *run) travel(mo *motion) float64 {
	st := p.st
	if !st.prevX.Valid || !st.prevY.Valid {
		return 0
	}
	dx := mo.x.Or(st.prevX.Value) - st.prevX.Value
	dy := mo.y.Or(st.prevY.Value) - st.prevY.Value
	return math.Hypot(dx, dy)
}

// setPosition handles G92. Without arguments every axis and accumulator of
// the current tool is zeroed.
func (p *run) setPosition(cmd *gcode.Command, mo *motion) {
	st := p.st
	ext := st.current()
	if cmd.Bare {
		mo.x, mo.y, mo.z = model.Some(0), model.Some(0), model.Some(0)
		ext.reset()
		return
	}
	for _, prm := range cmd.Params {
		switch prm.Letter {
		case 'X':
			mo.x = model.Some(prm.Value + st.offset.X)
		case 'Y':
			mo.y = model.Some(prm.Value + st.offset.Y)
		case 'Z':
			mo.z = model.Some(prm.Value)
		case 'E', 'A', 'B', 'C':
			ext.axes[axisSlot(prm.Letter)] = prm.Value
		}
	}
}

// home handles G28 and $H. Named axes go to zero; no axes means all. On the
// first layer Z is homed as well.
func (p *run) home(cmd *gcode.Command, mo *motion) {
	if cmd.Bare {
		mo.x, mo.y, mo.z = model.Some(0), model.Some(0), model.Some(0)
		return
	}
	if cmd.Mentioned('X') {
		mo.x = model.Some(0)
	}
	if cmd.Mentioned('Y') {
		mo.y = model.Some(0)
	}
	if cmd.Mentioned('Z') || p.st.layer == 0 {
		mo.z = model.Some(0)
	}
}

func (p *run) record(i int, ln model.Line, mo *motion, z float64) model.Record {
	st := p.st
	x, y := mo.x, mo.y
	if !x.Valid {
		x = st.prevX
	}
	if !y.Valid {
		y = st.prevY
	}
	return model.Record{
		X:               x,
		Y:               y,
		Z:               z,
		Extrude:         mo.extrude,
		LaserPower:      st.laser,
		Retract:         mo.retract,
		NoMove:          !mo.move || !mo.explicitXYZ(),
		ExtrusionAmount: mo.amount,
		PrevX:           st.prevX,
		PrevY:           st.prevY,
		PrevZ:           st.prevZ,
		FeedRate:        st.feed,
		SourceLine:      i,
		Percentage:      ln.Percentage,
		Tool:            st.tool,
	}
}

// emitArc interpolates a G2/G3 move and appends one record per segment. The
// first segment starts at the current position.
func (p *run) emitArc(i int, ln model.Line, cmd *gcode.Command, mo *motion, layer int) {
	st := p.st
	start := gcode.Point{X: st.prevX.Or(0), Y: st.prevY.Or(0), Z: st.prevZ.Or(0)}
	end := gcode.Point{X: mo.x.Or(start.X), Y: mo.y.Or(start.Y), Z: mo.z.Or(start.Z)}
	turns, _ := cmd.Get('P')
	ci, _ := cmd.Get('I')
	cj, _ := cmd.Get('J')

	res := gcode.Arc{
		Clockwise:    cmd.Kind == gcode.KindArcCW,
		Start:        start,
		End:          end,
		I:            ci,
		J:            cj,
		Turns:        turns,
		CurveSection: gcode.CurveSection(st.inches),
		MaxSegments:  p.opts.MaxArcSegments,
	}.Interpolate()

	if res.RadiusMismatch {
		p.warn(i, WarnArcRadius, ln.Text, fmt.Sprintf(
			"radius to end of arc differs from radius to start: r1=%g r2=%g (%.2f%%)",
			res.StartRadius, res.EndRadius, res.RadiusRatio))
	}
	if res.Clamped {
		p.warn(i, WarnArcClamped, ln.Text, fmt.Sprintf(
			"arc needs %d segments, clamped to %d", res.Steps, len(res.Points)))
	}

	n := len(res.Points)
	recs := make([]model.Record, n)
	prev := start
	for k, pt := range res.Points {
		r := model.Record{
			X:          model.Some(pt.X),
			Y:          model.Some(pt.Y),
			Z:          pt.Z,
			Extrude:    mo.extrude,
			LaserPower: st.laser,
			PrevX:      model.Some(prev.X),
			PrevY:      model.Some(prev.Y),
			PrevZ:      model.Some(prev.Z),
			FeedRate:   st.feed,
			SourceLine: i,
			Percentage: ln.Percentage,
			Tool:       st.tool,
		}
		switch {
		case mo.extrude:
			r.ExtrusionAmount = mo.amount / float64(n)
		case k == 0:
			r.Retract = mo.retract
			r.ExtrusionAmount = mo.amount
		}
		recs[k] = r
		prev = pt
	}
	p.m.Append(layer, recs...)

	// The end point becomes the current position even when only I/J were given.
	mo.x, mo.y = model.Some(end.X), model.Some(end.Y)
}

func (p *run) warn(i int, kind WarningKind, text string, msg string) {
	st := p.st
	w := Warning{
		Kind:    kind,
		Line:    i,
		Command: gcode.StripComment(strings.TrimSpace(text)),
		Message: msg,
		PrevX:   st.prevX,
		PrevY:   st.prevY,
		PrevZ:   st.prevZ,
	}
	p.logger.WithFields(log.Fields{
		"line":    w.Line,
		"command": w.Command,
		"prev_x":  w.PrevX.String(),
		"prev_y":  w.PrevY.String(),
		"prev_z":  w.PrevZ.String(),
	}).Warn(msg)
	p.sink.HandleWarning(w)
}

func (p *run) flush(progress float64) {
	ch := p.chunks.take(progress)
	if p.opts.IncludeLayers {
		ch.Layers = make([]*model.Layer, len(ch.LayerIndices))
		for k, idx := range ch.LayerIndices {
			ch.Layers[k] = p.m.Layer(idx).Clone()
		}
	}
	p.sink.HandleChunk(ch)
}
