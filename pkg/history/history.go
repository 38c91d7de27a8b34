// Package history keeps a log of finished analyses.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gcodeview/pkg/analyzer"
	"gcodeview/pkg/config"
	"gcodeview/pkg/errors"
)

// Entry is one stored analysis.
type Entry struct {
	ID         string           `json:"id"`
	Filename   string           `json:"filename"`
	CreatedAt  time.Time        `json:"created_at"`
	Lines      int              `json:"lines"`
	PrintTime  float64          `json:"print_time"`
	Filament   float64          `json:"filament"`
	LayerCount int              `json:"layer_count"`
	LayerTotal int              `json:"layer_total"`
	Anomalies  int              `json:"anomalies"`
	Result     *analyzer.Result `json:"result,omitempty"`
}

// NewEntry summarises res for storage.
func NewEntry(filename string, lines int, res *analyzer.Result) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Filename:  filename,
		CreatedAt: time.Now().UTC(),
		Lines:     lines,
		Result:    res,
	}
	if res != nil {
		e.PrintTime = res.PrintTime
		e.Filament = res.Filament()
		e.LayerCount = res.LayerCount
		e.LayerTotal = res.LayerTotal
		e.Anomalies = res.Anomalies
	}
	return e
}

// Totals aggregates every stored entry.
type Totals struct {
	TotalJobs      int     `json:"total_jobs"`
	TotalPrintTime float64 `json:"total_print_time"`
	TotalFilament  float64 `json:"total_filament"`
	LongestPrint   float64 `json:"longest_print"`
}

func (t *Totals) add(e *Entry) {
	t.TotalJobs++
	t.TotalPrintTime += e.PrintTime
	t.TotalFilament += e.Filament
	if e.PrintTime > t.LongestPrint {
		t.LongestPrint = e.PrintTime
	}
}

// ListOptions filter and page a listing. Zero values disable a filter.
type ListOptions struct {
	Limit  int
	Start  int
	Since  time.Time
	Before time.Time
	// Order is "asc" or "desc" (default) by creation time.
	Order string
}

// Store persists entries.
type Store interface {
	Add(ctx context.Context, e Entry) error
	Get(ctx context.Context, id string) (Entry, error)
	List(ctx context.Context, opts ListOptions) ([]Entry, int, error)
	Totals(ctx context.Context) (Totals, error)
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context) error
	Close()
}

// ErrNotFound is returned for unknown entry IDs.
var ErrNotFound = errors.New(errors.ErrHistory, "entry not found")

// Open returns the store selected by s.
func Open(ctx context.Context, s config.HistorySettings) (Store, error) {
	switch s.Backend {
	case "", "memory":
		return NewMemoryStore(s.Limit), nil
	case "postgres":
		return NewPostgresStore(ctx, s.DSN, s.Limit)
	default:
		return nil, errors.ConfigValidationError("history", "backend", "unknown backend "+s.Backend)
	}
}
