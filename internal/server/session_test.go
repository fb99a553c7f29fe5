package server

import (
	"testing"
	"time"
)

// serveOverPipe runs a full connection lifecycle for a net.Pipe transport on
// s and returns the client peer plus a channel closed when it ends.
func serveOverPipe(t *testing.T, s *Server) (*peer, <-chan struct{}) {
	t.Helper()
	c, p := pipePeer(t, time.Second)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		s.serveConnection(c)
	}()
	return p, finished
}

// TestSessionRelaysVerbatim tests that a payload is forwarded byte for byte to
// every active connection, the sender included.
func TestSessionRelaysVerbatim(t *testing.T) {
	s := NewServer(nil)

	alice, _ := serveOverPipe(t, s)
	alice.join(testNickAlice)
	bob, _ := serveOverPipe(t, s)
	bob.join(testNickBob)

	payload := "alice: hi éè\n\tno framing here"
	alice.send(payload)

	alice.waitFor(payload)
	bob.waitFor(payload)
}

// TestSessionEndsOnEOF tests that a closed peer is removed exactly once and its
// departure reaches the others.
func TestSessionEndsOnEOF(t *testing.T) {
	s := NewServer(nil)

	alice, aliceDone := serveOverPipe(t, s)
	alice.join(testNickAlice)
	bob, _ := serveOverPipe(t, s)
	bob.join(testNickBob)

	_ = alice.conn.Close()

	select {
	case <-aliceDone:
	case <-time.After(testTimeout):
		t.Fatal("Session did not end after the peer closed")
	}
	bob.waitFor("alice has left the chat room!")

	time.Sleep(quietPeriod)
	if n := bob.count("alice has left the chat room!"); n != 1 {
		t.Errorf("Expected one departure notice, got %d", n)
	}
	if got := s.Hub().Registry().Nicknames(); len(got) != 1 || got[0] != testNickBob {
		t.Errorf("Expected only bob registered, got %v", got)
	}
}

// TestSessionSmallReadBuffer tests that a payload larger than the read buffer
// is relayed in read-sized pieces.
func TestSessionSmallReadBuffer(t *testing.T) {
	cfg := NewConfig()
	cfg.ReadBufferSize = 8
	s := NewServer(cfg)

	alice, _ := serveOverPipe(t, s)
	alice.join(testNickAlice)

	alice.send("0123456789abcdef")
	alice.waitFor("0123456789abcdef")

	for _, piece := range []string{"01234567", "89abcdef"} {
		if !alice.hasRead(piece) {
			t.Errorf("Expected %q relayed as a separate write", piece)
		}
	}
	if alice.hasRead("0123456789abcdef") {
		t.Error("Payload larger than the read buffer was relayed in one write")
	}
}
