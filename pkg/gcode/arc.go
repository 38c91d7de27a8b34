package gcode

import "math"

const (
	// DefaultMaxArcSegments bounds the subdivision of a single arc.
	DefaultMaxArcSegments = 20000

	minArcSegments = 8

	// radiusTolerance is the lowest accepted start/end radius ratio, in percent.
	radiusTolerance = 99.7
)

// CurveSection returns the chord length target for the given unit system.
func CurveSection(inches bool) float64 {
	if inches {
		return 1.0 / 25.4
	}
	return 1.0
}

// Point is a resolved XYZ position.
type Point struct {
	X, Y, Z float64
}

// Arc describes a G2/G3 move in absolute coordinates.
type Arc struct {
	Clockwise    bool
	Start        Point
	End          Point
	I, J         float64 // centre offset from Start
	Turns        float64 // P; zero means 1
	CurveSection float64 // zero means 1 mm
	MaxSegments  int     // zero means DefaultMaxArcSegments
}

// ArcResult is the interpolated polyline. Points excludes Start; the last
// point lies on the arc at the end angle.
type ArcResult struct {
	Points []Point

	// Steps is the subdivision count before clamping.
	Steps   int
	Clamped bool

	StartRadius float64
	EndRadius   float64
	// RadiusRatio is min/max of the two radii in percent.
	RadiusRatio    float64
	RadiusMismatch bool
}

// Interpolate subdivides the arc into line segments. Angles are measured
// around the centre; the sweep is always positive, and equal start and end
// angles describe full turns.
func (a Arc) Interpolate() ArcResult {
	turns := a.Turns
	if turns == 0 {
		turns = 1
	}
	section := a.CurveSection
	if section <= 0 {
		section = 1
	}
	maxSegs := a.MaxSegments
	if maxSegs <= 0 {
		maxSegs = DefaultMaxArcSegments
	}

	cx := a.Start.X + a.I
	cy := a.Start.Y + a.J
	ax, ay := a.Start.X-cx, a.Start.Y-cy
	bx, by := a.End.X-cx, a.End.Y-cy

	var angleA, angleB float64
	if a.Clockwise {
		angleA = math.Atan2(by, bx)
		angleB = math.Atan2(ay, ax)
	} else {
		angleA = math.Atan2(ay, ax)
		angleB = math.Atan2(by, bx)
	}
	if angleB <= angleA {
		angleB += 2 * math.Pi * turns
	}
	sweep := angleB - angleA

	radius := math.Hypot(ax, ay)
	length := radius * sweep

	res := ArcResult{StartRadius: radius, EndRadius: math.Hypot(bx, by)}
	res.RadiusRatio = radiusRatio(res.StartRadius, res.EndRadius)
	res.RadiusMismatch = res.RadiusRatio < radiusTolerance

	raw := math.Ceil(math.Max(math.Max(sweep*2.4, length/section), minArcSegments))
	steps := maxSegs
	switch {
	case math.IsNaN(raw):
		res.Steps = maxSegs
		res.Clamped = true
	case raw > float64(maxSegs):
		res.Steps = int(math.Min(raw, math.MaxInt32))
		res.Clamped = true
	default:
		steps = int(raw)
		res.Steps = steps
	}

	res.Points = make([]Point, steps)
	dz := a.End.Z - a.Start.Z
	for s := 1; s <= steps; s++ {
		step := s
		if a.Clockwise {
			step = steps - s
		}
		ta := angleA + sweep*float64(step)/float64(steps)
		res.Points[s-1] = Point{
			X: cx + radius*math.Cos(ta),
			Y: cy + radius*math.Sin(ta),
			Z: a.Start.Z + dz*float64(s)/float64(steps),
		}
	}
	return res
}

func radiusRatio(r1, r2 float64) float64 {
	if r1 == r2 {
		return 100
	}
	if r2 > r1 {
		return math.Abs(r1/r2) * 100
	}
	return math.Abs(r2/r1) * 100
}
