// Package server exposes HTTP handlers, including the WebSocket upgrade and
// the health check.
package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
)

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection, and then runs the
// same handshake and receive loop a TCP connection gets, on the request's
// goroutine, until the peer leaves.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	if s.shuttingDown() {
		http.Error(w, "Relay is shutting down.", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	log.Printf("WebSocket connection established with %s", r.RemoteAddr)
	if err := s.ServeTransport(newWSTransport(conn)); errors.Is(err, ErrServerClosed) {
		log.Printf("Dropped WebSocket connection from %s during shutdown", r.RemoteAddr)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message including the number of chatting clients.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat relay is running! Active clients: %d", s.hub.ClientCount())
}
