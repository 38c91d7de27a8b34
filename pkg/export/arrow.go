// Package export writes parsed models as Apache Arrow IPC streams.
package export

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"gcodeview/pkg/errors"
	"gcodeview/pkg/model"
)

// DefaultBatchSize is the number of rows per record batch.
const DefaultBatchSize = 64 * 1024

// Column indices of Schema.
const (
	colLayer = iota
	colZ
	colX
	colY
	colPrevX
	colPrevY
	colPrevZ
	colExtrude
	colRetract
	colNoMove
	colExtrusion
	colLaserPower
	colSpeed
	colLine
	colPercentage
	colTool
)

// Schema is the row layout: one row per record, in layer-then-record order.
// Undefined coordinates are null.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "layer", Type: arrow.PrimitiveTypes.Int32},
	{Name: "z", Type: arrow.PrimitiveTypes.Float64},
	{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "y", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "prev_x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "prev_y", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "prev_z", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "extrude", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "retract", Type: arrow.PrimitiveTypes.Int8},
	{Name: "no_move", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "extrusion", Type: arrow.PrimitiveTypes.Float64},
	{Name: "laser_power", Type: arrow.PrimitiveTypes.Float64},
	{Name: "speed", Type: arrow.PrimitiveTypes.Float64},
	{Name: "gcode_line", Type: arrow.PrimitiveTypes.Int64},
	{Name: "percentage", Type: arrow.PrimitiveTypes.Float64},
	{Name: "tool", Type: arrow.PrimitiveTypes.Int32},
}, nil)

// Options configure an export.
type Options struct {
	BatchSize int
	Allocator memory.Allocator
}

// Writer streams a model as Arrow record batches.
type Writer struct {
	opts Options
}

// NewWriter creates a Writer. Zero options select defaults.
func NewWriter(opts Options) *Writer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.NewGoAllocator()
	}
	return &Writer{opts: opts}
}

// schemaFor attaches the layer Z table as schema metadata.
func schemaFor(m *model.Model) *arrow.Schema {
	keys := []string{"layers"}
	vals := []string{strconv.Itoa(m.NumLayers())}
	for i := 0; i < m.NumLayers(); i++ {
		keys = append(keys, "layer."+strconv.Itoa(i)+".z")
		vals = append(vals, strconv.FormatFloat(m.Layer(i).Z, 'f', -1, 64))
	}
	md := arrow.NewMetadata(keys, vals)
	return arrow.NewSchema(Schema.Fields(), &md)
}

// Write encodes m to w and returns the number of rows written.
func (wr *Writer) Write(ctx context.Context, w io.Writer, m *model.Model) (int, error) {
	schema := schemaFor(m)
	iw := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(wr.opts.Allocator))

	b := array.NewRecordBuilder(wr.opts.Allocator, schema)
	defer b.Release()

	rows, pending := 0, 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		rec := b.NewRecord()
		defer rec.Release()
		pending = 0
		return iw.Write(rec)
	}

	var err error
	m.Each(func(layer int, r *model.Record) bool {
		if rows%DefaultBatchSize == 0 {
			if err = ctx.Err(); err != nil {
				return false
			}
		}
		appendRow(b, layer, r)
		rows++
		pending++
		if pending >= wr.opts.BatchSize {
			if err = flush(); err != nil {
				return false
			}
		}
		return true
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		iw.Close()
		return rows, errors.ExportError("write arrow stream", err)
	}
	if err := iw.Close(); err != nil {
		return rows, errors.ExportError("close arrow stream", err)
	}
	return rows, nil
}

// WriteFile writes m to path, replacing any existing file.
func (wr *Writer) WriteFile(ctx context.Context, path string, m *model.Model) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.ExportError("create export file", err).SetFile(path)
	}
	rows, err := wr.Write(ctx, f, m)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.ExportError("close export file", cerr).SetFile(path)
	}
	return rows, err
}

func appendAxis(b *array.Float64Builder, a model.Axis) {
	if a.Valid {
		b.Append(a.Value)
	} else {
		b.AppendNull()
	}
}

func appendRow(b *array.RecordBuilder, layer int, r *model.Record) {
	b.Field(colLayer).(*array.Int32Builder).Append(int32(layer))
	b.Field(colZ).(*array.Float64Builder).Append(r.Z)
	appendAxis(b.Field(colX).(*array.Float64Builder), r.X)
	appendAxis(b.Field(colY).(*array.Float64Builder), r.Y)
	appendAxis(b.Field(colPrevX).(*array.Float64Builder), r.PrevX)
	appendAxis(b.Field(colPrevY).(*array.Float64Builder), r.PrevY)
	appendAxis(b.Field(colPrevZ).(*array.Float64Builder), r.PrevZ)
	b.Field(colExtrude).(*array.BooleanBuilder).Append(r.Extrude)
	b.Field(colRetract).(*array.Int8Builder).Append(int8(r.Retract))
	b.Field(colNoMove).(*array.BooleanBuilder).Append(r.NoMove)
	b.Field(colExtrusion).(*array.Float64Builder).Append(r.ExtrusionAmount)
	b.Field(colLaserPower).(*array.Float64Builder).Append(r.LaserPower)
	b.Field(colSpeed).(*array.Float64Builder).Append(r.FeedRate)
	b.Field(colLine).(*array.Int64Builder).Append(int64(r.SourceLine))
	b.Field(colPercentage).(*array.Float64Builder).Append(r.Percentage)
	b.Field(colTool).(*array.Int32Builder).Append(int32(r.Tool))
}
