// Package server constructs and runs the relay: it binds the configured
// listeners, runs the nickname handshake and receive loop for every accepted
// connection, and shuts everything down deterministically.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
	// consecutive failed accepts after which the listener counts as unusable
	maxAcceptRetries = 20
)

// Server is the relay. A single Server may serve any number of TCP and
// WebSocket listeners; all of them feed the same Hub.
type Server struct {
	config   Config
	hub      *Hub
	origins  originPolicy
	upgrader websocket.Upgrader

	mu          sync.Mutex
	inShutdown  bool
	listeners   map[net.Listener]struct{}
	httpServers map[*http.Server]struct{}
	conns       map[*Connection]struct{}
	wg          sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error

	acceptRetries int
}

// NewServer creates a relay for the provided configuration. Passing nil uses
// the defaults.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := sanitizeConfig(*cfg)

	s := &Server{
		config:      sanitized,
		hub:         NewHub(),
		origins:     newOriginPolicy(sanitized.AllowedOrigins),
		listeners:   make(map[net.Listener]struct{}),
		httpServers: make(map[*http.Server]struct{}),
		conns:       make(map[*Connection]struct{}),

		acceptRetries: maxAcceptRetries,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  sanitized.ReadBufferSize,
		WriteBufferSize: sanitized.ReadBufferSize,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Hub returns the relay's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns a copy of the effective configuration.
func (s *Server) Config() Config {
	cfg := s.config
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Listen binds the configured TCP address. A failure is returned as a
// *BindError.
func (s *Server) Listen() (net.Listener, error) {
	return listenTCP(s.config.Addr())
}

func listenTCP(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	return ln, nil
}

// ListenAndServe binds the configured TCP address and serves it until the
// listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve runs the accept loop on ln. Every accepted connection is handed to
// its own goroutine immediately, so a stalled handshake never delays the
// next accept. Network accept errors are logged and retried with backoff.
// The listener counts as unusable once it is closed, once it fails with an
// error that is not a net.Error, or once it keeps failing past the retry
// limit; the whole relay is then shut down and the accept error is
// returned. After Shutdown, Serve returns ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln, true) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	log.Printf("Relay listening on %s", ln.Addr())

	var (
		tempDelay time.Duration
		failures  int
	)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			failures++
			if !isRetryableAcceptError(err) || failures > s.acceptRetries {
				log.Printf("Listener on %s is no longer usable after %d failed accepts: %v", ln.Addr(), failures, err)
				if shutdownErr := s.Shutdown(s.config.ShutdownTimeout); shutdownErr != nil {
					log.Printf("Shutdown after listener failure: %v", shutdownErr)
				}
				return fmt.Errorf("server: accept: %w", err)
			}

			tempDelay = nextAcceptDelay(tempDelay)
			log.Printf("Accept error on %s: %v; retrying in %v", ln.Addr(), err, tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0
		failures = 0

		log.Printf("Connection established with %s", conn.RemoteAddr())
		c := NewConnection(conn, s.config.WriteTimeout)
		if !s.trackConn(c, true) {
			_ = c.Close()
			return ErrServerClosed
		}
		go func() {
			defer s.trackConn(c, false)
			s.serveConnection(c)
		}()
	}
}

// isRetryableAcceptError reports whether an accept error may clear up on
// its own. A closed listener never recovers.
func isRetryableAcceptError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func nextAcceptDelay(current time.Duration) time.Duration {
	if current == 0 {
		return minAcceptDelay
	}
	current *= 2
	if current > maxAcceptDelay {
		current = maxAcceptDelay
	}
	return current
}

// ServeTransport runs the handshake and receive loop for an already accepted
// transport on the calling goroutine and returns when the connection is
// gone. It returns ErrServerClosed, after closing t, once Shutdown has been
// called.
func (s *Server) ServeTransport(t Transport) error {
	c := NewConnection(t, s.config.WriteTimeout)
	if !s.trackConn(c, true) {
		_ = c.Close()
		return ErrServerClosed
	}
	defer s.trackConn(c, false)

	s.serveConnection(c)
	return nil
}

// serveConnection is the whole life of one connection: handshake, then the
// receive loop.
func (s *Server) serveConnection(c *Connection) {
	if err := s.handshake(c); err != nil {
		if errors.Is(err, ErrHandshakeRejected) {
			log.Printf("Rejected empty nickname from %s", c.RemoteAddr())
			return
		}
		if !isExpectedCloseError(err) {
			log.Printf("Handshake with %s failed: %v", c.RemoteAddr(), err)
		}
		return
	}
	s.runSession(c)
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inShutdown
}

// trackListener adds or removes ln from the set closed by Shutdown. Adding
// fails once shutdown has started.
func (s *Server) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.inShutdown {
			return false
		}
		s.listeners[ln] = struct{}{}
	} else {
		delete(s.listeners, ln)
	}
	return true
}

func (s *Server) trackHTTPServer(srv *http.Server, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.inShutdown {
			return false
		}
		s.httpServers[srv] = struct{}{}
	} else {
		delete(s.httpServers, srv)
	}
	return true
}

// trackConn adds or removes c from the set of connections owned by the
// relay. Every tracked connection holds one count on the wait group that
// Shutdown joins. Adding fails once shutdown has started.
func (s *Server) trackConn(c *Connection, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.inShutdown {
			return false
		}
		s.conns[c] = struct{}{}
		s.wg.Add(1)
		return true
	}
	if _, ok := s.conns[c]; ok {
		delete(s.conns, c)
		s.wg.Done()
	}
	return true
}

// ActiveConnections returns the number of connections the relay currently
// owns, including those still in the handshake.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown stops the relay. It closes every listener, closes every pending
// and active connection so each session runs its departure path, and waits
// for all connection goroutines and HTTP servers to finish. Every step
// shares one deadline; if they do not finish within timeout it returns
// context.DeadlineExceeded. Whatever is still registered
// at the end is removed. Calling Shutdown more than once returns the first
// result.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(timeout)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(timeout time.Duration) error {
	log.Println("Initiating relay shutdown...")
	deadline := time.Now().Add(timeout)

	s.mu.Lock()
	s.inShutdown = true
	listeners := make([]net.Listener, 0, len(s.listeners))
	for ln := range s.listeners {
		listeners = append(listeners, ln)
	}
	httpServers := make([]*http.Server, 0, len(s.httpServers))
	for srv := range s.httpServers {
		httpServers = append(httpServers, srv)
	}
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, ln := range listeners {
		if err := ln.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing listener %s: %v", ln.Addr(), err)
		}
	}

	// HTTP servers drain in parallel with the connections below
	var httpWG sync.WaitGroup
	httpWG.Add(len(httpServers))
	for _, srv := range httpServers {
		go func(srv *http.Server) {
			defer httpWG.Done()
			_ = ShutdownServer(srv, time.Until(deadline))
		}(srv)
	}

	for _, c := range conns {
		if err := c.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing client connection from %s: %v", c.RemoteAddr(), err)
		}
	}
	log.Printf("Closed %d client connections", len(conns))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		httpWG.Wait()
		close(done)
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	var err error
	select {
	case <-done:
		log.Println("Relay shutdown completed successfully")
	case <-timer.C:
		log.Println("Relay shutdown timeout reached, some connections may still be running")
		err = context.DeadlineExceeded
	}

	if removed := s.hub.removeAll(); removed > 0 {
		log.Printf("Removed %d connections left in the registry", removed)
	}
	return err
}
