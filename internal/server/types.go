// Package server defines the wire protocol payloads and utility helpers that
// are reused across the handshake, session, and hub logic.
package server

import (
	"errors"
	"io"
	"net"
	"strings"
)

// Wire protocol payloads. None of them carries a trailing newline: the relay
// writes exactly these bytes and clients treat every read as one chat line.
const (
	nicknameRequest  = "nickname?"
	nicknameRejected = "Invalid nickname! Disconnecting..."
	connectedAck     = "you are now connected!"
)

// joinNotice returns the broadcast announcing that nickname was admitted.
func joinNotice(nickname string) []byte {
	return []byte(nickname + " has connected to the chat room")
}

// leaveNotice returns the broadcast announcing that nickname has gone.
func leaveNotice(nickname string) []byte {
	return []byte(nickname + " has left the chat room!")
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
