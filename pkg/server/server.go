// Package server exposes the parser worker to remote hosts over a websocket
// and a small REST API backed by the analysis history.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gcodeview/pkg/errors"
	"gcodeview/pkg/history"
	"gcodeview/pkg/log"
	"gcodeview/pkg/metrics"
	"gcodeview/pkg/source"
	"gcodeview/pkg/worker"
)

// Version is reported by /api/info.
const Version = "0.3.0"

// Config holds server configuration.
type Config struct {
	// HTTP address to listen on (e.g., ":8765")
	Addr        string
	ReadTimeout time.Duration

	// Worker is the template for every worker the server starts. Its
	// Metrics and Logger fields are filled in from the server when empty.
	Worker worker.Config

	// History stores finished analyses. Nil keeps an in-memory history.
	History history.Store

	// Loader resolves s3:// sources for /api/analyze. Nil disables them.
	Loader *source.Loader

	Metrics *metrics.ViewerMetrics
	Logger  *log.Logger
}

// Server serves the websocket protocol and the REST API.
type Server struct {
	cfg     Config
	logger  *log.Logger
	history history.Store

	httpServer *http.Server

	// WebSocket management
	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*wsClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	running   atomic.Bool
	startTime time.Time
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLogger("server")
	}
	if cfg.Worker.Metrics == nil {
		cfg.Worker.Metrics = cfg.Metrics
	}
	if cfg.Worker.Logger == nil {
		cfg.Worker.Logger = logger.WithPrefix("worker")
	}
	store := cfg.History
	if store == nil {
		store = history.NewMemoryStore(0)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		history:   store,
		wsClients: make(map[int64]*wsClient),
		startTime: time.Now(),
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return s
}

// Handler returns the routed handler wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/websocket", s.handleWebSocket)
	mux.HandleFunc("/api/info", s.handleInfo)
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics.Handler())
	}
	s.registerHistoryEndpoints(mux)

	return s.corsMiddleware(mux)
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.Handler(),
		ReadTimeout: s.cfg.ReadTimeout,
	}

	s.running.Store(true)
	s.logger.Info("server starting on %s", s.cfg.Addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	if err != nil {
		return errors.TransportError("listen on "+s.cfg.Addr, err)
	}
	return nil
}

// Stop closes every websocket session and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)

	s.wsClientMu.Lock()
	clients := s.wsClients
	s.wsClients = make(map[int64]*wsClient)
	s.wsClientMu.Unlock()
	for _, client := range clients {
		client.Close()
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// History returns the analysis history store.
func (s *Server) History() history.Store {
	return s.history
}

func (s *Server) clientCount() int {
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"result": map[string]any{
			"version":         Version,
			"websocket_count": s.clientCount(),
			"uptime":          time.Since(s.startTime).Seconds(),
			"commands": []string{
				worker.CmdParseGCode,
				worker.CmdSetOption,
				worker.CmdAnalyzeModel,
				CmdAbort,
			},
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// CORS middleware to allow browser hosts on other origins
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// JSON response helpers

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, err error, status int) {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.ErrTransport
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": err.Error(),
		},
	})
}
