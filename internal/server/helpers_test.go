package server

import (
	"bytes"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const (
	testTimeout    = 2 * time.Second
	testOriginURL  = "http://localhost:8080"
	pollInterval   = 5 * time.Millisecond
	quietPeriod    = 150 * time.Millisecond
	testNickAlice  = "alice"
	testNickBob    = "bob"
	testNickCarol  = "carol"
	msgAliceSaysHi = "alice: hi"
)

// peer is the client side of a relay connection. It drains everything the
// relay writes into a buffer so tests can wait for payloads regardless of how
// the bytes were split or coalesced on the way.
type peer struct {
	t    *testing.T
	conn net.Conn

	mu     sync.Mutex
	buf    bytes.Buffer
	offset int
	// reads holds every read separately. Over net.Pipe one read is one
	// relay write.
	reads []string
	done  chan struct{}
}

// newPeer starts draining conn in the background.
func newPeer(t *testing.T, conn net.Conn) *peer {
	t.Helper()
	p := &peer{t: t, conn: conn, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		chunk := make([]byte, 1024)
		for {
			n, err := conn.Read(chunk)
			if n > 0 {
				p.mu.Lock()
				p.buf.Write(chunk[:n])
				p.reads = append(p.reads, string(chunk[:n]))
				p.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return p
}

// dialPeer opens a TCP connection to addr and starts draining it.
func dialPeer(t *testing.T, addr string) *peer {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, testTimeout)
	if err != nil {
		t.Fatalf("Failed to dial relay at %s: %v", addr, err)
	}
	return newPeer(t, conn)
}

// send writes raw bytes to the relay.
func (p *peer) send(payload string) {
	p.t.Helper()
	if _, err := p.conn.Write([]byte(payload)); err != nil {
		p.t.Fatalf("Failed to write %q: %v", payload, err)
	}
}

// received returns everything read so far.
func (p *peer) received() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String()
}

// waitFor blocks until want shows up after the previous match and moves past it.
func (p *peer) waitFor(want string) {
	p.t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		data := p.buf.String()
		if i := strings.Index(data[p.offset:], want); i >= 0 {
			p.offset += i + len(want)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
		time.Sleep(pollInterval)
	}
	p.t.Fatalf("Timed out waiting for %q; received %q", want, p.received())
}

// hasRead reports whether want arrived as one read of its own.
func (p *peer) hasRead(want string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.reads {
		if r == want {
			return true
		}
	}
	return false
}

// count returns how many times substr was received in total.
func (p *peer) count(substr string) int {
	return strings.Count(p.received(), substr)
}

// waitClosed blocks until the relay closes the connection.
func (p *peer) waitClosed() {
	p.t.Helper()
	select {
	case <-p.done:
	case <-time.After(testTimeout):
		p.t.Fatalf("Connection was not closed by the relay; received %q", p.received())
	}
}

// join answers the nickname handshake and waits for the acknowledgement.
func (p *peer) join(nickname string) {
	p.t.Helper()
	p.waitFor(nicknameRequest)
	p.send(nickname)
	p.waitFor(connectedAck)
}

// pipePeer returns a relay-side Connection backed by net.Pipe and the peer
// draining its other end.
func pipePeer(t *testing.T, writeTimeout time.Duration) (*Connection, *peer) {
	t.Helper()
	clientConn, relayConn := net.Pipe()
	t.Cleanup(func() { _ = relayConn.Close() })
	return NewConnection(relayConn, writeTimeout), newPeer(t, clientConn)
}

// eventually polls cond until it holds or the test timeout elapses.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("Condition never held: %s", what)
}

// startRelay starts a relay on a random loopback port. The relay is shut
// down when the test ends.
func startRelay(t *testing.T, mutate func(cfg *Config)) (*Server, string, <-chan error) {
	t.Helper()
	cfg := NewConfig()
	cfg.Port = 0
	if mutate != nil {
		mutate(cfg)
	}

	relay := NewServer(cfg)
	ln, err := relay.Listen()
	if err != nil {
		t.Fatalf("Failed to bind relay: %v", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- relay.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = relay.Shutdown(testTimeout)
	})
	return relay, ln.Addr().String(), serveErr
}

// dialWebSocket connects to a relay WebSocket endpoint with an allowed origin.
func dialWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{
		HandshakeTimeout: testTimeout,
	}
	headers := http.Header{}
	headers.Set("Origin", testOriginURL)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect WebSocket %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// expectFrame reads frames until one equals want and returns its message
// type.
func expectFrame(t *testing.T, conn *websocket.Conn, want string) int {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var seen []string
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed waiting for frame %q (seen %q): %v", want, seen, err)
		}
		if string(data) == want {
			return messageType
		}
		seen = append(seen, string(data))
	}
}
