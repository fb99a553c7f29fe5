// Package server adapts the byte streams the relay accepts into a single
// Transport abstraction so that TCP and WebSocket peers share one lifecycle.
package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

// Transport is an accepted byte stream. net.Conn satisfies it directly;
// WebSocket connections are wrapped by wsTransport.
type Transport interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// wsTransport exposes a WebSocket connection as a raw byte stream. Each
// inbound data frame is returned through one or more Read calls, bounded by
// the caller's buffer exactly like a TCP read. Each Write becomes one frame:
// text when the payload is valid UTF-8, binary otherwise, since a raw read
// chunk may end inside a multi-byte character.
type wsTransport struct {
	conn *websocket.Conn

	readMu sync.Mutex
	reader io.Reader
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(p []byte) (int, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	for {
		if t.reader == nil {
			messageType, r, err := t.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
				continue
			}
			t.reader = r
		}

		n, err := t.reader.Read(p)
		if errors.Is(err, io.EOF) {
			t.reader = nil
			if n == 0 {
				// empty frame, wait for the next one
				continue
			}
			return n, nil
		}
		return n, err
	}
}

func (t *wsTransport) Write(p []byte) (int, error) {
	if err := t.conn.WriteMessage(frameType(p), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// frameType returns the WebSocket message type a payload can be sent as.
func frameType(p []byte) int {
	if utf8.Valid(p) {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *wsTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *wsTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}
