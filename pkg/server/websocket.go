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
	"gcodeview/pkg/worker"
)

// CmdAbort restarts the session's worker. It is handled by the server and
// never reaches the worker.
const CmdAbort = "abort"

// Server-side notification kinds.
const (
	NoteAborted      = "aborted"
	NoteHistorySaved = "historySaved"
)

const (
	maxMessageSize = 64 << 20
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
)

// clientMessage is a worker request plus the name the host gives the file.
type clientMessage struct {
	worker.Request
	Filename string `json:"filename,omitempty"`
}

// wsClient is one websocket session with its own worker.
type wsClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	worker *worker.Worker
	logger *log.Logger
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex

	// Guarded by mu. pending holds runs still expected to report, stale
	// those submitted before an abort, and early those that finished before
	// handleMessage recorded them.
	filename string
	lines    int
	pending  map[string]bool
	stale    map[string]bool
	early    map[string]bool
}

func (s *Server) newWSClient(conn *websocket.Conn) *wsClient {
	id := atomic.AddInt64(&s.nextWSID, 1)
	return &wsClient{
		id:      id,
		conn:    conn,
		server:  s,
		worker:  worker.New(s.cfg.Worker),
		logger:  s.logger.WithPrefix("ws"),
		sendCh:  make(chan any, 64),
		done:    make(chan struct{}),
		pending: make(map[string]bool),
		stale:   make(map[string]bool),
		early:   make(map[string]bool),
	}
}

// Send queues msg for the write pump, blocking until there is room or the
// session ends.
func (c *wsClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	}
}

// Close ends the session and stops its worker.
func (c *wsClient) Close() {
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
		close(c.done)
	}
	c.mu.Unlock()

	c.worker.Close()
	c.conn.Close()
}

// readPump reads requests from the WebSocket connection.
func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("websocket read error")
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		c.handleMessage(message)
	}
}

// writePump sends messages to the WebSocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.WithError(err).Warn("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// forwardPump relays worker notifications until the worker is closed.
func (c *wsClient) forwardPump() {
	for n := range c.worker.Notifications() {
		c.mu.Lock()
		stale := c.stale[n.RunID]
		if n.Final() {
			c.settle(n.RunID)
		}
		filename, lines := c.filename, c.lines
		c.mu.Unlock()
		if stale {
			continue
		}

		c.Send(n)

		if n.Cmd == worker.NoteAnalyzeDone && n.Result != nil {
			c.saveResult(n.RunID, filename, lines, n)
		}
	}
}

// settle forgets a run whose last notification has arrived. mu must be held.
func (c *wsClient) settle(id string) {
	switch {
	case c.stale[id]:
		delete(c.stale, id)
	case c.pending[id]:
		delete(c.pending, id)
	default:
		c.early[id] = true
	}
}

// inFlight returns the number of runs the session is still tracking.
func (c *wsClient) inFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) + len(c.stale) + len(c.early)
}

func (c *wsClient) saveResult(runID, filename string, lines int, n worker.Notification) {
	entry := history.NewEntry(filename, lines, n.Result)
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := c.server.history.Add(ctx, entry); err != nil {
		c.logger.WithError(err).WithField("run", runID).Error("failed to save analysis")
		return
	}
	c.Send(map[string]any{
		"cmd":    NoteHistorySaved,
		"run_id": runID,
		"id":     entry.ID,
	})
}

// handleMessage processes an incoming WebSocket message.
func (c *wsClient) handleMessage(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", errors.TransportError("malformed request", err))
		return
	}

	if msg.Cmd == CmdAbort {
		c.abort()
		return
	}

	id, err := c.worker.Submit(context.Background(), msg.Request)
	if err != nil {
		c.sendError("", err)
		return
	}

	c.mu.Lock()
	switch {
	case msg.Cmd == worker.CmdSetOption:
	case c.early[id]:
		delete(c.early, id)
	default:
		c.pending[id] = true
	}
	if msg.Cmd == worker.CmdParseGCode {
		c.filename = msg.Filename
		if c.filename == "" {
			c.filename = "untitled.gcode"
		}
		c.lines = len(msg.Lines)
	}
	c.mu.Unlock()
}

// abort restarts the worker and discards whatever the aborted runs still
// have buffered.
func (c *wsClient) abort() {
	c.mu.Lock()
	for id := range c.pending {
		c.stale[id] = true
	}
	c.pending = make(map[string]bool)
	c.mu.Unlock()

	if err := c.worker.Restart(); err != nil {
		c.sendError("", err)
		return
	}
	c.logger.WithField("client", c.id).Debug("session aborted")
	c.Send(map[string]any{"cmd": NoteAborted})
}

func (c *wsClient) sendError(runID string, err error) {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.ErrTransport
	}
	c.Send(worker.Notification{
		Cmd:   worker.NoteError,
		RunID: runID,
		Error: &worker.ErrorInfo{Code: string(code), Message: err.Error()},
	})
}

// handleWebSocket handles WebSocket upgrade and connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := s.newWSClient(conn)

	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()
	s.cfg.Metrics.ConnectionOpened()

	s.logger.WithField("client", client.id).Info("websocket client connected")

	go client.writePump()
	go client.forwardPump()

	client.readPump() // Blocks until connection closes
}

func (s *Server) removeClient(client *wsClient) {
	s.wsClientMu.Lock()
	_, ok := s.wsClients[client.id]
	delete(s.wsClients, client.id)
	s.wsClientMu.Unlock()

	s.cfg.Metrics.ConnectionClosed()
	if ok {
		s.logger.WithField("client", client.id).Info("websocket client disconnected")
	}
}
