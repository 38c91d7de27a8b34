package worker

import (
	"context"

	"gcodeview/pkg/analyzer"
	"gcodeview/pkg/errors"
	"gcodeview/pkg/model"
)

// Await consumes notifications until one of run runID has kind until.
// Every notification of the run, the final one included, is passed to fn
// when fn is non-nil. Notifications of other runs are discarded. An error
// notification of the run ends the wait with that error.
//
// Await assumes it is the only reader of the notification channel.
func (w *Worker) Await(ctx context.Context, runID, until string, fn func(Notification)) (Notification, error) {
	for {
		select {
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		case n, ok := <-w.notes:
			if !ok {
				return Notification{}, errors.WorkerClosedError()
			}
			if n.RunID != runID {
				continue
			}
			if fn != nil {
				fn(n)
			}
			switch {
			case n.Cmd == until:
				return n, nil
			case n.Error != nil:
				return n, n.Error.Err()
			}
		}
	}
}

// ParseAndAnalyze parses lines and analyzes the result in one go. It is a
// convenience for hosts that only need the summary.
func (w *Worker) ParseAndAnalyze(ctx context.Context, lines []model.Line, tools []model.ToolOffset, fn func(Notification)) (*analyzer.Result, error) {
	id, err := w.Submit(ctx, Request{Cmd: CmdParseGCode, Lines: lines, ToolOffsets: tools})
	if err != nil {
		return nil, err
	}
	if _, err := w.Await(ctx, id, NoteModel, fn); err != nil {
		return nil, err
	}

	id, err = w.Submit(ctx, Request{Cmd: CmdAnalyzeModel})
	if err != nil {
		return nil, err
	}
	n, err := w.Await(ctx, id, NoteAnalyzeDone, fn)
	if err != nil {
		return nil, err
	}
	return n.Result, nil
}
