// Package pprof exposes the runtime profiling endpoints on a debug HTTP
// listener when the daemon is started with profiling enabled.
package pprof

import (
	"context"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"time"

	"devroom/internal/logger"
)

// Server serves the net/http/pprof handlers on a dedicated listener.
type Server struct {
	addr     string
	server   *http.Server
	listener net.Listener
	log      *logger.Logger
}

// NewServer creates a profiling server bound to addr, e.g. "localhost:6060".
func NewServer(addr string) *Server {
	return &Server{addr: addr, log: logger.Global().WithPrefix("pprof")}
}

// Start begins listening. The server runs until Stop.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", netpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.server = &http.Server{Handler: mux}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("profiling server failed: %v", err)
		}
	}()

	s.log.Info("profiling server listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound address, useful when addr requested port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
