// Package worker runs parse and analyze requests on a dedicated goroutine
// and reports results as a stream of notifications.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"gcodeview/pkg/analyzer"
	"gcodeview/pkg/config"
	"gcodeview/pkg/errors"
	"gcodeview/pkg/log"
	"gcodeview/pkg/metrics"
	"gcodeview/pkg/model"
	"gcodeview/pkg/parser"
)

const (
	defaultBuffer = 64
	queueSize     = 16
)

// Config configures a Worker.
type Config struct {
	// Parser holds the defaults that setOption requests overlay.
	Parser config.ParserSettings

	// Tools are used when a parse request carries no tool offsets.
	Tools []model.ToolOffset

	// Buffer is the notification channel capacity.
	Buffer int

	Logger  *log.Logger
	Metrics *metrics.ViewerMetrics
}

// Worker serialises requests onto one goroutine. Notifications of all runs
// are delivered in order on a single channel that stays open until Close.
type Worker struct {
	cfg    Config
	logger *log.Logger
	notes  chan Notification

	mu     sync.Mutex
	reqs   chan job
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

type job struct {
	id  string
	req Request
}

// session is the state owned by one worker goroutine.
type session struct {
	model   *model.Model
	options *config.Options
}

// New starts a worker.
func New(cfg Config) *Worker {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.Parser.ChunkRatio == 0 {
		cfg.Parser = config.Defaults().Parser
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLogger("worker")
	}
	w := &Worker{
		cfg:    cfg,
		logger: logger,
		notes:  make(chan Notification, cfg.Buffer),
	}
	w.start()
	return w
}

func (w *Worker) start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.reqs = make(chan job, queueSize)
	w.done = make(chan struct{})
	w.cancel = cancel
	go w.loop(ctx, w.reqs, w.done)
}

// Notifications returns the notification stream. It is closed by Close.
func (w *Worker) Notifications() <-chan Notification {
	return w.notes
}

// Submit queues req and returns the run ID its notifications will carry.
// It blocks while the queue is full.
func (w *Worker) Submit(ctx context.Context, req Request) (string, error) {
	id := uuid.NewString()
	for {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return "", errors.WorkerClosedError()
		}
		reqs, done := w.reqs, w.done
		w.mu.Unlock()

		select {
		case reqs <- job{id: id, req: req}:
			return id, nil
		case <-done:
			// restarted underneath us; retry on the new loop
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Restart aborts the running request, drops queued requests and the held
// model, and starts over with default options.
func (w *Worker) Restart() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.WorkerClosedError()
	}
	w.cancel()
	<-w.done
	w.cfg.Metrics.RecordRestart()
	w.logger.Debug("worker restarted")
	w.start()
	return nil
}

// Close stops the worker and closes the notification channel.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.cancel()
	<-w.done
	close(w.notes)
	return nil
}

func (w *Worker) loop(ctx context.Context, reqs <-chan job, done chan<- struct{}) {
	defer close(done)
	w.cfg.Metrics.WorkerStarted()
	defer w.cfg.Metrics.WorkerStopped()

	s := &session{options: config.NewOptions()}
	defer w.release(s)

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-reqs:
			w.handle(ctx, s, j)
		}
	}
}

func (w *Worker) handle(ctx context.Context, s *session, j job) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.FromPanic(r)
			w.logger.WithError(err).WithField("cmd", j.req.Cmd).Error("request panicked")
			w.emit(ctx, Notification{Cmd: NoteError, RunID: j.id, Error: errorInfo(err)})
		}
	}()

	switch j.req.Cmd {
	case CmdParseGCode:
		w.cfg.Metrics.RecordCommand(j.req.Cmd, true)
		w.parse(ctx, s, j)
	case CmdSetOption:
		w.cfg.Metrics.RecordCommand(j.req.Cmd, true)
		s.options.Merge(j.req.Options)
	case CmdAnalyzeModel:
		w.cfg.Metrics.RecordCommand(j.req.Cmd, true)
		w.analyze(ctx, s, j)
	default:
		w.cfg.Metrics.RecordCommand(j.req.Cmd, false)
		err := errors.UnknownCommandError(j.req.Cmd)
		w.logger.WithField("cmd", j.req.Cmd).Warn("unknown command")
		w.emit(ctx, Notification{Cmd: NoteUnknownCommand, RunID: j.id, Command: j.req.Cmd, Error: errorInfo(err)})
	}
}

func (w *Worker) parse(ctx context.Context, s *session, j job) {
	w.release(s)

	tools := j.req.ToolOffsets
	if len(tools) == 0 {
		tools = w.cfg.Tools
	}
	opts := parser.OptionsFromSettings(s.options.ApplyParser(w.cfg.Parser), tools)
	opts.Logger = w.logger.WithPrefix("parser")

	sink := parser.SinkFuncs{
		OnChunk: func(c parser.Chunk) {
			w.cfg.Metrics.RecordChunk()
			w.emit(ctx, Notification{Cmd: NoteMultiLayer, RunID: j.id, Chunk: &c})
		},
		OnWarning: func(pw parser.Warning) {
			w.cfg.Metrics.RecordWarning(string(pw.Kind))
			w.emit(ctx, Notification{Cmd: NoteWarning, RunID: j.id, Warning: &pw})
		},
	}

	start := time.Now()
	m, err := parser.Parse(ctx, j.req.Lines, opts, sink)
	if err != nil {
		w.cfg.Metrics.RecordParse(metrics.StatusCancelled, len(j.req.Lines), 0, time.Since(start))
		w.logger.WithField("run", j.id).Debug("parse aborted")
		return
	}
	w.cfg.Metrics.RecordParse(metrics.StatusOK, len(j.req.Lines), m.NumRecords(), time.Since(start))

	s.model = m
	w.cfg.Metrics.ModelHeld(1)
	w.emit(ctx, Notification{Cmd: NoteModel, RunID: j.id})
}

func (w *Worker) analyze(ctx context.Context, s *session, j job) {
	if s.model == nil {
		w.emit(ctx, Notification{Cmd: NoteError, RunID: j.id, Error: errorInfo(errors.NoModelError())})
		return
	}

	a := &analyzer.Analyzer{Logger: w.logger.WithPrefix("analyzer")}
	start := time.Now()
	res, err := a.Analyze(ctx, s.model, func(p analyzer.Progress) {
		w.emit(ctx, Notification{Cmd: NoteAnalyzeProgress, RunID: j.id, Progress: &p})
	})
	if err != nil {
		w.cfg.Metrics.RecordAnalyze(metrics.StatusCancelled, 0, time.Since(start))
		return
	}
	w.cfg.Metrics.RecordAnalyze(metrics.StatusOK, res.Anomalies, time.Since(start))

	w.release(s)
	w.emit(ctx, Notification{Cmd: NoteAnalyzeDone, RunID: j.id, Result: res})
}

func (w *Worker) release(s *session) {
	if s.model != nil {
		s.model = nil
		w.cfg.Metrics.ModelHeld(-1)
	}
}

// emit delivers n unless the run is cancelled first.
func (w *Worker) emit(ctx context.Context, n Notification) bool {
	select {
	case w.notes <- n:
		return true
	case <-ctx.Done():
		return false
	}
}
