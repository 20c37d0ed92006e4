package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roach88/framewatch/internal/model"
)

// Server exposes the frame stream over HTTP:
//
//	GET /ws        upgrade; receives every frame as a JSON text message
//	GET /snapshot  the latest frame as JSON (204 before the first frame)
//	GET /healthz   liveness with client count and last cycle
//
// Server is an engine sink: Consume encodes the frame once, keeps it as the
// latest snapshot and broadcasts it to every client.
type Server struct {
	logger   *slog.Logger
	hub      *Hub
	upgrader websocket.Upgrader
	router   *mux.Router

	mu     sync.RWMutex
	latest []byte
	cycle  int64
	frames int64

	srv *http.Server
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	logger *slog.Logger
	buffer int
	origin func(*http.Request) bool
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *serverConfig) {
		c.logger = l
	}
}

// WithClientBuffer sets the per-client queue length.
func WithClientBuffer(n int) Option {
	return func(c *serverConfig) {
		c.buffer = n
	}
}

// WithCheckOrigin replaces the origin check used on upgrade. The default
// accepts any origin; the stream is read-only.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *serverConfig) {
		c.origin = fn
	}
}

// New creates a Server. Call Handler to mount it or ListenAndServe to run it.
func New(opts ...Option) *Server {
	cfg := serverConfig{
		logger: slog.Default(),
		buffer: DefaultClientBuffer,
		origin: func(*http.Request) bool { return true },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		logger: cfg.logger,
		hub:    newHub(cfg.logger, cfg.buffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.origin,
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the client hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Consume encodes f, stores it as the latest snapshot and broadcasts it.
func (s *Server) Consume(_ context.Context, f model.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", f.Cycle, err)
	}

	s.mu.Lock()
	s.latest = data
	s.cycle = f.Cycle
	s.frames++
	s.mu.Unlock()

	s.hub.Broadcast(data)
	return nil
}

func (s *Server) snapshot() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if !s.hub.register(conn, s.snapshot()) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
		conn.Close()
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	data := s.snapshot()
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// Health is the /healthz body.
type Health struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Cycle   int64  `json:"cycle"`
	Frames  int64  `json:"frames"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	h := Health{Status: "ok", Clients: s.hub.Len(), Cycle: s.cycle, Frames: s.frames}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and disconnects every client.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("stream listening", "addr", ln.Addr().String())
		errc <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("stream serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stream shutdown: %w", err)
	}
	return nil
}
