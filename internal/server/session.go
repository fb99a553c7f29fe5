package server

import (
	"log"
)

// runSession is the receive loop of an Active connection. Every successful
// read is forwarded unchanged to the hub; message boundaries are whatever a
// single read returns. The first failed or empty read ends the loop and the
// connection is disconnected, which announces its departure unless a failed
// broadcast already did.
func (s *Server) runSession(c *Connection) {
	defer s.hub.Disconnect(c)

	buf := make([]byte, s.config.ReadBufferSize)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			s.hub.Broadcast(buf[:n])
		}
		if err != nil {
			s.handleReadError(c, err)
			return
		}
		if n == 0 {
			log.Printf("Client %s sent an empty read, closing", c.RemoteAddr())
			return
		}
	}
}

// handleReadError logs the reason a session ended.
func (s *Server) handleReadError(c *Connection, err error) {
	if isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c.RemoteAddr(), err)
		return
	}
	log.Printf("Read error from %s: %v", c.RemoteAddr(), err)
}
