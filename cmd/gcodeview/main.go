// Command gcodeview parses and analyzes G-code files.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"gcodeview/pkg/analyzer"
	"gcodeview/pkg/config"
	"gcodeview/pkg/export"
	"gcodeview/pkg/history"
	"gcodeview/pkg/log"
	"gcodeview/pkg/metrics"
	"gcodeview/pkg/model"
	"gcodeview/pkg/parser"
	"gcodeview/pkg/server"
	"gcodeview/pkg/source"
	"gcodeview/pkg/tui"
	"gcodeview/pkg/worker"
)

// Version of the command.
const Version = server.Version

type options struct {
	configFile  string
	jsonOut     bool
	report      bool
	output      string
	verbose     bool
	exportPath  string
	serve       bool
	addr        string
	metricsAddr string
	version     bool
	help        bool
}

func newFlagSet(opts *options, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("gcodeview", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: gcodeview [options] <file|-|s3://bucket/key>\n\n")
		fmt.Fprintf(stderr, "gcodeview parses G-code into a layered model and estimates print time,\n")
		fmt.Fprintf(stderr, "filament use and bounds.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  gcodeview part.gcode                 # Interactive TUI\n")
		fmt.Fprintf(stderr, "  gcodeview -r part.gcode              # Print a report\n")
		fmt.Fprintf(stderr, "  gcodeview -j s3://prints/part.gcode  # Analysis as JSON\n")
		fmt.Fprintf(stderr, "  gcodeview -e part.arrow part.gcode   # Export the model as Arrow IPC\n")
		fmt.Fprintf(stderr, "  gcodeview --serve -c gcodeview.cfg   # Websocket and REST server\n")
	}

	fs.StringVarP(&opts.configFile, "config", "c", "", "Settings file (INI)")
	fs.BoolVarP(&opts.jsonOut, "json", "j", false, "Output the analysis as JSON")
	fs.BoolVarP(&opts.report, "report", "r", false, "Print a text report")
	fs.StringVarP(&opts.output, "output", "o", "", "Write the report or JSON to this file")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Include the per-height breakdown in the report")
	fs.StringVarP(&opts.exportPath, "export", "e", "", "Write the parsed model as an Arrow IPC stream")
	fs.BoolVarP(&opts.serve, "serve", "s", false, "Run the websocket and REST server")
	fs.StringVar(&opts.addr, "addr", "", "Server address (overrides [server] address)")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on a separate address")
	fs.BoolVarP(&opts.version, "version", "V", false, "Print version information")
	fs.BoolVarP(&opts.help, "help", "h", false, "Show this help message")
	return fs
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if opts.help {
		fs.Usage()
		return 0
	}
	if opts.version {
		fmt.Fprintf(stdout, "gcodeview version %s\n", Version)
		return 0
	}

	settings, err := config.LoadSettings(opts.configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading settings: %v\n", err)
		return 1
	}
	logger, err := setupLogging(settings.Log)
	if err != nil {
		fmt.Fprintf(stderr, "Error configuring logging: %v\n", err)
		return 1
	}
	defer logger.Sync()

	vm := metrics.GlobalMetrics()
	if opts.metricsAddr != "" {
		ex := metrics.NewExporter(vm, opts.metricsAddr)
		errCh, err := ex.Start()
		if err != nil {
			fmt.Fprintf(stderr, "Error starting metrics endpoint: %v\n", err)
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			ex.Shutdown(sctx)
		}()
		go func() {
			if err := <-errCh; err != nil {
				logger.WithError(err).Error("metrics endpoint failed")
			}
		}()
		logger.Debug("metrics on %s", ex.Addr())
	}

	if opts.serve {
		return runServe(ctx, settings, opts, vm, logger, stderr)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	location := fs.Arg(0)

	lines, err := source.NewLoader(settings.S3).Load(ctx, location)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading %s: %v\n", location, err)
		return 1
	}

	wcfg := worker.Config{Parser: settings.Parser, Tools: settings.Tools, Logger: logger.WithPrefix("worker"), Metrics: vm}

	switch {
	case opts.exportPath != "":
		return runExport(ctx, opts.exportPath, lines, settings, logger, stdout, stderr)
	case opts.report, opts.jsonOut:
		return runBatch(ctx, wcfg, location, lines, opts, stdout, stderr)
	default:
		return runTui(ctx, wcfg, location, lines, stderr)
	}
}

func setupLogging(s config.LogSettings) (*log.Logger, error) {
	cfg := log.ConfigFromEnv(log.Config{Level: s.Level, Format: s.Format, OutputPath: s.Output})
	logger, err := log.NewWithConfig("gcodeview", cfg)
	if err != nil {
		return nil, err
	}
	log.SetDefaultLogger(logger)
	return logger, nil
}

// analyze runs one parse and analysis on a fresh worker.
func analyze(ctx context.Context, wcfg worker.Config, lines []model.Line) (*analyzer.Result, error) {
	w := worker.New(wcfg)
	defer w.Close()
	return w.ParseAndAnalyze(ctx, lines, nil, nil)
}

func runBatch(ctx context.Context, wcfg worker.Config, location string, lines []model.Line, opts options, stdout, stderr io.Writer) int {
	res, err := analyze(ctx, wcfg, lines)
	if err != nil {
		fmt.Fprintf(stderr, "Error analyzing %s: %v\n", location, err)
		return 1
	}

	out := stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			fmt.Fprintf(stderr, "Error writing to %s: %v\n", opts.output, err)
			return 1
		}
		defer f.Close()
		out = f
	}

	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fmt.Fprintf(stderr, "Error encoding result: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprint(out, analyzer.GenerateReport(res, location, opts.verbose))
	}

	if opts.output != "" {
		fmt.Fprintf(stdout, "Saved to %s\n", opts.output)
	}
	return 0
}

func runExport(ctx context.Context, path string, lines []model.Line, settings config.Settings, logger *log.Logger, stdout, stderr io.Writer) int {
	popts := parser.OptionsFromSettings(settings.Parser, settings.Tools)
	popts.Logger = logger.WithPrefix("parser")
	m, err := parser.Parse(ctx, lines, popts, parser.SinkFuncs{})
	if err != nil {
		fmt.Fprintf(stderr, "Error parsing: %v\n", err)
		return 1
	}
	rows, err := export.NewWriter(export.Options{}).WriteFile(ctx, path, m)
	if err != nil {
		fmt.Fprintf(stderr, "Error exporting: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Exported %d records in %d layers to %s\n", rows, m.NumLayers(), path)
	return 0
}

func runTui(ctx context.Context, wcfg worker.Config, location string, lines []model.Line, stderr io.Writer) int {
	// Log lines would tear the alternate screen
	wcfg.Logger = log.Nop()
	w := worker.New(wcfg)
	defer w.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := tui.InitialModel(location, tui.Start(ctx, w, lines, nil))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(stderr, "Alas, there's been an error: %v\n", err)
		return 1
	}
	return 0
}

func runServe(ctx context.Context, settings config.Settings, opts options, vm *metrics.ViewerMetrics, logger *log.Logger, stderr io.Writer) int {
	store, err := history.Open(ctx, settings.History)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening history: %v\n", err)
		return 1
	}
	defer store.Close()

	addr := settings.Server.Address
	if opts.addr != "" {
		addr = opts.addr
	}

	srv := server.New(server.Config{
		Addr:        addr,
		ReadTimeout: settings.Server.ReadTimeout,
		Worker:      worker.Config{Parser: settings.Parser, Tools: settings.Tools},
		History:     store,
		Loader:      source.NewLoader(settings.S3),
		Metrics:     vm,
		Logger:      logger.WithPrefix("server"),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("gcodeview %s serving on %s (history: %s)", Version, addr, settings.History.Backend)

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(sctx); err != nil {
		logger.WithError(err).Warn("shutdown incomplete")
	}
	return 0
}
