// Package dashboard serves the live web dashboard for a running test:
// a single-page UI, JSON APIs for the current state and a WebSocket
// stream of metric buckets.
package dashboard

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gustload/gust/internal/loadtest/metrics"
	"github.com/gustload/gust/internal/loadtest/runner"
	"github.com/gustload/gust/internal/logging"
)

// DefaultAddr is where the dashboard listens unless overridden with
// --out dashboard=host:port.
const DefaultAddr = "127.0.0.1:5665"

// event is one WebSocket message.
type event struct {
	Type     string            `json:"type"` // "bucket", "snapshot", "summary"
	Bucket   *metrics.Bucket   `json:"bucket,omitempty"`
	Snapshot *metrics.Snapshot `json:"snapshot,omitempty"`
	Summary  *runner.Result    `json:"summary,omitempty"`
}

// Server is the dashboard HTTP server. It implements the output
// interface: buckets stream to connected browsers as they are emitted
// and the final result is broadcast when the run ends.
type Server struct {
	addr      string
	testName  string
	runID     string
	collector *metrics.Collector
	logger    *zap.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader

	clients   map[*websocket.Conn]chan []byte
	clientsMu sync.Mutex

	result   *runner.Result
	resultMu sync.RWMutex
}

// NewServer creates a dashboard server. An empty addr uses DefaultAddr.
func NewServer(addr, testName string, collector *metrics.Collector, logger *zap.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		addr:      addr,
		testName:  testName,
		runID:     uuid.NewString(),
		collector: collector,
		logger:    logging.OrNop(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Description identifies this output.
func (s *Server) Description() string {
	return "dashboard (http://" + s.addr + ")"
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("dashboard server", zap.Error(err))
		}
	}()

	s.logger.Info("dashboard listening", zap.String("url", "http://"+s.addr))
	return nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleIndex)
	r.Get("/api/snapshot", s.handleSnapshot)
	r.Get("/api/series", s.handleSeries)
	r.Get("/api/result", s.handleResult)
	r.Get("/ws", s.handleWS)

	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, map[string]string{
		"TestName": s.testName,
		"RunID":    s.runID,
	}); err != nil {
		s.logger.Warn("rendering dashboard page", zap.Error(err))
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.collector.Snapshot())
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.collector.Series())
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	s.resultMu.RLock()
	result := s.result
	s.resultMu.RUnlock()

	if result == nil {
		http.Error(w, `{"error":"run still in progress"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Seed the client with the retained series so charts start full.
	send := make(chan []byte, 64)
	s.clientsMu.Lock()
	s.clients[conn] = send
	s.clientsMu.Unlock()

	if data, err := json.Marshal(event{Type: "snapshot", Snapshot: s.collector.Snapshot()}); err == nil {
		select {
		case send <- data:
		default:
		}
	}
	for _, bucket := range s.collector.Series() {
		if data, err := json.Marshal(event{Type: "bucket", Bucket: bucket}); err == nil {
			select {
			case send <- data:
			default:
			}
		}
	}

	go s.writeLoop(conn, send)
	go s.readLoop(conn)
}

func (s *Server) writeLoop(conn *websocket.Conn, send chan []byte) {
	defer s.dropClient(conn)
	for data := range send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readLoop drains control frames and detects disconnects.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.dropClient(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) dropClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if send, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		close(send)
	}
	s.clientsMu.Unlock()
	conn.Close()
}

func (s *Server) broadcast(ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn, send := range s.clients {
		select {
		case send <- data:
		default:
			// Slow client; drop the event rather than block the emitter.
			_ = conn
		}
	}
}

// AddBucket broadcasts one emitted bucket to all connected clients.
func (s *Server) AddBucket(bucket *metrics.Bucket) {
	s.broadcast(event{Type: "bucket", Bucket: bucket})
}

// Finish stores the final result and broadcasts it. The server keeps
// serving until Close so the page stays inspectable after the run.
func (s *Server) Finish(result *runner.Result) error {
	s.resultMu.Lock()
	s.result = result
	s.resultMu.Unlock()

	s.broadcast(event{Type: "summary", Summary: result})
	return nil
}

// Close shuts the server down.
func (s *Server) Close(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
