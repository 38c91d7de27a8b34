package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"gcodeview/pkg/errors"
	"gcodeview/pkg/log"
	"gcodeview/pkg/metrics"
	"gcodeview/pkg/model"
)

func newTestWorker(t *testing.T, cfg Config) *Worker {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	w := New(cfg)
	t.Cleanup(func() { w.Close() })
	return w
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func lines(texts ...string) []model.Line {
	out := make([]model.Line, len(texts))
	for i, s := range texts {
		out[i] = model.Line{Text: s, Percentage: float64(i) / float64(len(texts)) * 100}
	}
	return out
}

var twoLayers = lines(
	"G21",
	"G90",
	"G1 X0 Y0 Z0.2 F1200",
	"G1 X10 E1",
	"G1 Y10 E2",
	"G1 Z0.4",
	"G1 X0 E3",
	"M30",
)

// run submits req and collects the notifications of its run up to until.
func run(t *testing.T, w *Worker, req Request, until string) ([]Notification, error) {
	t.Helper()
	ctx := testContext(t)
	id, err := w.Submit(ctx, req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("expected a uuid run id, got %q", id)
	}
	var got []Notification
	_, err = w.Await(ctx, id, until, func(n Notification) { got = append(got, n) })
	return got, err
}

func TestParseThenAnalyze(t *testing.T) {
	w := newTestWorker(t, Config{})

	notes, err := run(t, w, Request{Cmd: CmdParseGCode, Lines: twoLayers}, NoteModel)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(notes) < 2 {
		t.Fatalf("expected chunks and a model notification, got %d", len(notes))
	}
	last := notes[len(notes)-1]
	if last.Cmd != NoteModel {
		t.Errorf("expected %s last, got %s", NoteModel, last.Cmd)
	}
	final := notes[len(notes)-2]
	if final.Cmd != NoteMultiLayer || final.Chunk == nil || final.Chunk.Progress != 100 {
		t.Errorf("expected a final chunk at 100%%, got %+v", final)
	}
	seen := map[int]bool{}
	for _, n := range notes[:len(notes)-1] {
		if n.Cmd != NoteMultiLayer {
			t.Errorf("expected only chunks before the model, got %s", n.Cmd)
			continue
		}
		for _, idx := range n.Chunk.LayerIndices {
			seen[idx] = true
		}
	}
	if !seen[0] || !seen[1] {
		t.Errorf("expected layers 0 and 1 to be reported, got %v", seen)
	}

	notes, err = run(t, w, Request{Cmd: CmdAnalyzeModel}, NoteAnalyzeDone)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	done := notes[len(notes)-1]
	if done.Result == nil {
		t.Fatal("expected a result")
	}
	if done.Result.LayerCount != 2 {
		t.Errorf("expected 2 printed layers, got %d", done.Result.LayerCount)
	}
	if got := done.Result.TotalFilament[0]; got != 3 {
		t.Errorf("expected 3mm filament, got %v", got)
	}
	progress := 0
	for _, n := range notes {
		if n.Cmd == NoteAnalyzeProgress {
			progress++
		}
	}
	if progress != done.Result.LayerTotal {
		t.Errorf("expected %d progress notifications, got %d", done.Result.LayerTotal, progress)
	}
}

func TestAnalyzeWithoutModel(t *testing.T) {
	w := newTestWorker(t, Config{})

	notes, err := run(t, w, Request{Cmd: CmdAnalyzeModel}, NoteAnalyzeDone)
	if !errors.HasCode(err, errors.ErrNoModel) {
		t.Fatalf("expected NO_MODEL, got %v", err)
	}
	if len(notes) != 1 || notes[0].Cmd != NoteError || notes[0].Error.Code != "NO_MODEL" {
		t.Errorf("expected a single error notification, got %+v", notes)
	}
}

func TestModelReleasedAfterAnalyze(t *testing.T) {
	vm := metrics.NewViewerMetrics()
	w := newTestWorker(t, Config{Metrics: vm})

	if _, err := w.ParseAndAnalyze(testContext(t), twoLayers, nil, nil); err != nil {
		t.Fatalf("ParseAndAnalyze failed: %v", err)
	}
	if got := testutil.ToFloat64(vm.ModelsHeld); got != 0 {
		t.Errorf("expected no held models, got %v", got)
	}
	if _, err := run(t, w, Request{Cmd: CmdAnalyzeModel}, NoteAnalyzeDone); !errors.HasCode(err, errors.ErrNoModel) {
		t.Errorf("expected NO_MODEL on second analyze, got %v", err)
	}
	if got := testutil.ToFloat64(vm.AnalyzeRuns.WithLabelValues(metrics.StatusOK)); got != 1 {
		t.Errorf("expected 1 analyze run, got %v", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	vm := metrics.NewViewerMetrics()
	w := newTestWorker(t, Config{Metrics: vm})

	notes, err := run(t, w, Request{Cmd: "frobnicate"}, NoteUnknownCommand)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notes) != 1 || notes[0].Command != "frobnicate" {
		t.Errorf("expected unknownCommand echoing the name, got %+v", notes)
	}
	if notes[0].Error == nil || notes[0].Error.Code != string(errors.ErrUnknownCommand) {
		t.Errorf("expected UNKNOWN_COMMAND error info, got %+v", notes[0].Error)
	}
	if got := testutil.ToFloat64(vm.Commands.WithLabelValues("unknown")); got != 1 {
		t.Errorf("expected 1 unknown command, got %v", got)
	}
}

func TestFinalNotifications(t *testing.T) {
	tests := []struct {
		cmd   string
		final bool
	}{
		{NoteMultiLayer, false},
		{NoteWarning, false},
		{NoteModel, true},
		{NoteAnalyzeProgress, false},
		{NoteAnalyzeDone, true},
		{NoteUnknownCommand, true},
		{NoteError, true},
	}
	for _, tt := range tests {
		if got := (Notification{Cmd: tt.cmd}).Final(); got != tt.final {
			t.Errorf("%s: expected final=%v, got %v", tt.cmd, tt.final, got)
		}
	}
}

func TestSetOptionTunesParser(t *testing.T) {
	w := newTestWorker(t, Config{})
	ctx := testContext(t)

	if _, err := w.Submit(ctx, Request{Cmd: CmdSetOption, Options: map[string]interface{}{
		"includeLayers": true,
		"chunkRatio":    1.0,
		"theme":         "dark",
	}}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	notes, err := run(t, w, Request{Cmd: CmdParseGCode, Lines: twoLayers}, NoteModel)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected one chunk and the model, got %d notifications", len(notes))
	}
	ch := notes[0].Chunk
	if ch == nil || len(ch.Layers) != len(ch.LayerIndices) {
		t.Fatalf("expected layers attached to the chunk, got %+v", ch)
	}
	records := 0
	for _, l := range ch.Layers {
		records += len(l.Records)
	}
	if records != 5 {
		t.Errorf("expected 5 attached records, got %d", records)
	}
}

func TestToolOffsetsFromRequest(t *testing.T) {
	w := newTestWorker(t, Config{Tools: []model.ToolOffset{{}, {X: 100, Y: 100}}})

	req := Request{
		Cmd:         CmdParseGCode,
		Lines:       lines("T1", "G1 X1 Y1 Z0.2"),
		ToolOffsets: []model.ToolOffset{{}, {X: 10, Y: 5}},
	}
	if _, err := run(t, w, req, NoteModel); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ctx := testContext(t)
	res, err := w.ParseAndAnalyze(ctx, req.Lines, req.ToolOffsets, nil)
	if err != nil {
		t.Fatalf("ParseAndAnalyze failed: %v", err)
	}
	if res.Bounds.X.Max.Valid {
		t.Errorf("expected no X bounds for a first move from an unknown position, got %v", res.Bounds.X.Max)
	}

	res, err = w.ParseAndAnalyze(ctx, lines("G1 X0 Y0 Z0.2", "T1", "G1 X1 Y1"), nil, nil)
	if err != nil {
		t.Fatalf("ParseAndAnalyze failed: %v", err)
	}
	if got := res.Bounds.X.Max.Value; got != 101 {
		t.Errorf("expected configured tool offset to apply, got max X %v", got)
	}
}

func TestRestartAbortsRun(t *testing.T) {
	vm := metrics.NewViewerMetrics()
	w := newTestWorker(t, Config{Buffer: 1, Metrics: vm})
	ctx := testContext(t)

	big := make([]model.Line, 200000)
	for i := range big {
		big[i] = model.Line{Text: fmt.Sprintf("G1 X%d Y%d Z%d E%d", i%100, i%50, i/1000, i)}
	}
	if _, err := w.Submit(ctx, Request{Cmd: CmdParseGCode, Lines: big}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := w.Submit(ctx, Request{Cmd: CmdAnalyzeModel}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Nobody reads notifications, so the run is stuck on a full channel.
	time.Sleep(20 * time.Millisecond)
	if err := w.Restart(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if got := testutil.ToFloat64(vm.WorkerRestarts); got != 1 {
		t.Errorf("expected 1 restart, got %v", got)
	}

	_, err := run(t, w, Request{Cmd: CmdAnalyzeModel}, NoteAnalyzeDone)
	if !errors.HasCode(err, errors.ErrNoModel) {
		t.Errorf("expected the held model to be dropped, got %v", err)
	}
	if got := testutil.ToFloat64(vm.WorkersActive); got != 1 {
		t.Errorf("expected 1 active worker, got %v", got)
	}
}

func TestCloseRejectsRequests(t *testing.T) {
	w := New(Config{Logger: log.Nop()})
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	_, err := w.Submit(context.Background(), Request{Cmd: CmdAnalyzeModel})
	if !errors.HasCode(err, errors.ErrWorkerClosed) {
		t.Errorf("expected WORKER_CLOSED, got %v", err)
	}
	if err := w.Restart(); !errors.HasCode(err, errors.ErrWorkerClosed) {
		t.Errorf("expected WORKER_CLOSED from Restart, got %v", err)
	}
	if _, ok := <-w.Notifications(); ok {
		t.Error("expected the notification channel to be closed")
	}
}
