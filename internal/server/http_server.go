// Package server constructs the optional HTTP service that carries the
// WebSocket listener, with helpers that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"
)

// CreateServer creates and configures an HTTP server with the specified address and handler.
// It sets reasonable timeout values for production use. The timeouts apply to
// the HTTP exchange only; upgraded WebSocket connections are hijacked and
// managed by the relay.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active requests to finish or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}

// ListenAndServeWebSocket binds the configured WebSocket address and serves
// the relay's HTTP routes on it.
func (s *Server) ListenAndServeWebSocket() error {
	if s.config.WebSocketAddr == "" {
		return errors.New("server: websocket listener is disabled")
	}
	ln, err := listenTCP(s.config.WebSocketAddr)
	if err != nil {
		return err
	}
	return s.ServeWebSocket(ln)
}

// ServeWebSocket serves the relay's HTTP routes on ln until Shutdown is
// called, after which it returns ErrServerClosed.
func (s *Server) ServeWebSocket(ln net.Listener) error {
	srv := CreateServer(ln.Addr().String(), s.SetupRoutes())
	if !s.trackHTTPServer(srv, true) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.trackHTTPServer(srv, false)

	log.Printf("WebSocket listener on %s", ln.Addr())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return ErrServerClosed
	}
	return err
}
