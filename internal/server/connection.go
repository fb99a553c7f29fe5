// Package server manages individual relay connections: their transport,
// negotiated nickname, lifecycle state, and serialized writes.
package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Connection.
type State int32

const (
	// StatePending is the state of a freshly accepted connection that has not
	// completed the nickname handshake.
	StatePending State = iota
	// StateActive is the state of a connection admitted to the Registry.
	StateActive
	// StateClosed is the terminal state.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var connectionSeq atomic.Uint64

// Connection represents one accepted transport stream in the relay.
// It owns the transport, the nickname negotiated during the handshake, and
// the lifecycle state. Writes are serialized so that concurrent broadcasts
// never interleave their payloads on the wire.
type Connection struct {
	id           string
	seq          uint64
	transport    Transport
	addr         string
	writeTimeout time.Duration

	nickname atomic.Pointer[string]
	state    atomic.Int32

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConnection creates a Pending Connection around the provided transport.
// A positive writeTimeout bounds every Send when the transport supports
// write deadlines.
func NewConnection(transport Transport, writeTimeout time.Duration) *Connection {
	addr := ""
	if transport != nil && transport.RemoteAddr() != nil {
		addr = transport.RemoteAddr().String()
	}
	return &Connection{
		id:           uuid.NewString(),
		seq:          connectionSeq.Add(1),
		transport:    transport,
		addr:         addr,
		writeTimeout: writeTimeout,
	}
}

// ID returns the unique identifier used to tag the connection in logs.
func (c *Connection) ID() string {
	return c.id
}

// RemoteAddr returns the peer address captured at accept time.
func (c *Connection) RemoteAddr() string {
	return c.addr
}

// Nickname returns the negotiated nickname, or an empty string while the
// connection is still Pending.
func (c *Connection) Nickname() string {
	if p := c.nickname.Load(); p != nil {
		return *p
	}
	return ""
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// activate promotes a Pending connection to Active with the given nickname.
// The nickname is stored before the state flips so readers that observe
// StateActive always see it.
func (c *Connection) activate(nickname string) bool {
	if c.State() != StatePending {
		return false
	}
	c.nickname.Store(&nickname)
	return c.state.CompareAndSwap(int32(StatePending), int32(StateActive))
}

func (c *Connection) markClosed() {
	c.state.Store(int32(StateClosed))
}

// Read reads the next raw payload from the transport.
func (c *Connection) Read(p []byte) (int, error) {
	return c.transport.Read(p)
}

// Send writes payload to the peer in a single write. Sends are serialized per
// connection.
func (c *Connection) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if wd, ok := c.transport.(writeDeadliner); ok && c.writeTimeout > 0 {
		if err := wd.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := c.transport.Write(payload)
	return err
}

// setReadDeadline applies a read deadline when the transport supports one.
// A zero time clears it.
func (c *Connection) setReadDeadline(deadline time.Time) {
	if rd, ok := c.transport.(readDeadliner); ok {
		_ = rd.SetReadDeadline(deadline)
	}
}

// Close closes the transport exactly once. A Pending connection becomes
// Closed immediately; an Active one stays Active until the Registry removes
// it, so every registry entry is Active for as long as it is held.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.state.CompareAndSwap(int32(StatePending), int32(StateClosed))
		c.closeErr = c.transport.Close()
	})
	return c.closeErr
}
