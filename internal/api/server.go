// Package api serves the progress of a running signing batch over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"FactorSign/internal/logger"
)

// StatusProvider exposes the state of a batch.
type StatusProvider interface {
	Status() Status
}

// Server is the HTTP progress server.
type Server struct {
	addr     string         // addr is the HTTP listen address
	status   StatusProvider // status provides the batch state
	server   *http.Server   // server is the underlying HTTP server
	listener net.Listener   // listener is set once started
}

// New creates a new HTTP API server.
func New(addr string, status StatusProvider) *Server {
	return &Server{
		addr:   addr,
		status: status,
	}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /progress", s.handleProgress)

	return mux
}

// Start listens on the configured address and serves in a goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s:\n%w", s.addr, err)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.listener = ln
	s.server = srv

	go func() {
		logger.Info("http api started", "addr", ln.Addr().String())

		if err := srv.Serve(ln); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}

	return s.listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server. Later calls do nothing.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := s.server
	s.server = nil

	return srv.Shutdown(ctx)
}

// Linger keeps serving for d so pollers can read the final status, then
// stops. It stops early once ctx is done.
func (s *Server) Linger(ctx context.Context, d time.Duration) error {
	if d > 0 {
		logger.Info("serving final status", "addr", s.Addr(), "for", d)

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	return s.Stop()
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleProgress handles GET /progress requests.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "no batch running")
		return
	}

	writeJSON(w, http.StatusOK, s.status.Status())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
