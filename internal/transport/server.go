package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server is the listening side of the reliable channel. It accepts any
// number of peers on one HTTP path.
type Server struct {
	endpoint

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer creates an idle server.
func NewServer(opts Options, logger *slog.Logger) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			// Peers are not authenticated; any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.endpoint.init(opts, logger)
	return s
}

// Handler returns the upgrade handler, for mounting on an existing mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+s.opts.Path, s.handleUpgrade)
	return mux
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.State() == StateClosed {
		http.Error(w, "closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("transport: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.addPeer(conn, hostOf(r.RemoteAddr))
}

// Serve accepts peers on ln until Close. It returns nil after Close.
func (s *Server) Serve(ln net.Listener) error {
	if s.State() == StateClosed {
		return ErrClosed
	}
	s.mu.Lock()
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpSrv
	s.mu.Unlock()

	s.setState(StateListening)
	s.logger.Info("transport: listening", "addr", ln.Addr().String(), "path", s.opts.Path)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("transport: serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Close stops accepting, drops every peer and closes the telemetry socket.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = srv.Shutdown(ctx)
		cancel()
	}
	s.shutdown()
	return err
}
