package server

import (
	"errors"
	"fmt"
)

var (
	// ErrServerClosed is returned by Serve and the WebSocket handler once
	// Shutdown has been called.
	ErrServerClosed = errors.New("server: relay closed")

	// ErrHandshakeRejected is returned by the handshake when the peer proposed
	// an empty nickname. It is an expected outcome, not a failure.
	ErrHandshakeRejected = errors.New("server: nickname rejected")

	// ErrAlreadyRegistered is returned when a connection is added to the
	// registry twice.
	ErrAlreadyRegistered = errors.New("server: connection already registered")

	// ErrNotPending is returned when a connection that already left the
	// Pending state is added to the registry.
	ErrNotPending = errors.New("server: connection is not pending")
)

// BindError reports that the relay could not bind its listen address.
// It is fatal at startup.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("server: bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
