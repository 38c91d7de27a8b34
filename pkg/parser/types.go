// Package parser turns G-code lines into a per-layer model, streaming
// progress chunks while it runs.
package parser

import (
	"sync"

	"gcodeview/pkg/config"
	"gcodeview/pkg/gcode"
	"gcodeview/pkg/log"
	"gcodeview/pkg/model"
)

// Options configure one parse run.
type Options struct {
	// ToolOffsets are added to absolute X/Y of the selected tool. The first
	// entry is the default tool; an empty list means a single zero offset.
	ToolOffsets []model.ToolOffset

	// ChunkRatio is the fraction of input lines between progress chunks.
	ChunkRatio float64

	// MaxArcSegments caps the subdivision of one arc.
	MaxArcSegments int

	// Inches starts the run in G20 units.
	Inches bool

	// IncludeLayers attaches copies of the touched layers to every chunk.
	IncludeLayers bool

	Logger *log.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ToolOffsets:    []model.ToolOffset{{}},
		ChunkRatio:     0.02,
		MaxArcSegments: gcode.DefaultMaxArcSegments,
	}
}

// OptionsFromSettings maps parser settings onto Options.
func OptionsFromSettings(s config.ParserSettings, tools []model.ToolOffset) Options {
	opts := DefaultOptions()
	if len(tools) > 0 {
		opts.ToolOffsets = tools
	}
	if s.ChunkRatio > 0 {
		opts.ChunkRatio = s.ChunkRatio
	}
	if s.MaxArcSegments > 0 {
		opts.MaxArcSegments = s.MaxArcSegments
	}
	opts.Inches = s.Units == "inch"
	opts.IncludeLayers = s.IncludeLayers
	return opts
}

// Chunk reports the layers touched since the previous chunk.
type Chunk struct {
	LayerIndices []int          `json:"layer_indices"`
	ZValues      []float64      `json:"z_values"`
	Progress     float64        `json:"progress"`
	Layers       []*model.Layer `json:"layers,omitempty"`
}

// WarningKind names a non-fatal geometry problem.
type WarningKind string

const (
	WarnArcRadius  WarningKind = "arc_radius_mismatch"
	WarnArcClamped WarningKind = "arc_segments_clamped"
)

// Warning is a non-fatal problem found while parsing.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Line    int         `json:"line"`
	Command string      `json:"command"`
	Message string      `json:"message"`
	PrevX   model.Axis  `json:"prev_x"`
	PrevY   model.Axis  `json:"prev_y"`
	PrevZ   model.Axis  `json:"prev_z"`
}

// Sink receives streamed parse output. Calls happen on the parsing
// goroutine, in order.
type Sink interface {
	HandleChunk(Chunk)
	HandleWarning(Warning)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnChunk   func(Chunk)
	OnWarning func(Warning)
}

func (s SinkFuncs) HandleChunk(c Chunk) {
	if s.OnChunk != nil {
		s.OnChunk(c)
	}
}

func (s SinkFuncs) HandleWarning(w Warning) {
	if s.OnWarning != nil {
		s.OnWarning(w)
	}
}

// Collector is a Sink that keeps everything it receives.
type Collector struct {
	mu       sync.Mutex
	Chunks   []Chunk
	Warnings []Warning
}

func (c *Collector) HandleChunk(ch Chunk) {
	c.mu.Lock()
	c.Chunks = append(c.Chunks, ch)
	c.mu.Unlock()
}

func (c *Collector) HandleWarning(w Warning) {
	c.mu.Lock()
	c.Warnings = append(c.Warnings, w)
	c.mu.Unlock()
}
