package server

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// negotiateNickname runs the nickname exchange on a Pending connection: it
// asks for a nickname, reads one payload, and trims it. An empty result is
// answered with the rejection notice and ErrHandshakeRejected. The caller
// owns closing c on any error.
//
// A positive timeout bounds the wait for the answer; zero waits forever.
func negotiateNickname(c *Connection, bufSize int, timeout time.Duration) (string, error) {
	if err := c.Send([]byte(nicknameRequest)); err != nil {
		return "", fmt.Errorf("send nickname request: %w", err)
	}

	if timeout > 0 {
		c.setReadDeadline(time.Now().Add(timeout))
		defer c.setReadDeadline(time.Time{})
	}

	buf := make([]byte, bufSize)
	n, err := c.Read(buf)
	if n == 0 && err != nil {
		return "", fmt.Errorf("read nickname: %w", err)
	}

	nickname := strings.TrimSpace(string(buf[:n]))
	if nickname == "" {
		if err := c.Send([]byte(nicknameRejected)); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error sending rejection to %s: %v", c.RemoteAddr(), err)
		}
		return "", ErrHandshakeRejected
	}
	return nickname, nil
}

// handshake negotiates a nickname for c and admits it to the hub. On failure
// the connection is closed without touching the registry.
func (s *Server) handshake(c *Connection) error {
	nickname, err := negotiateNickname(c, s.config.ReadBufferSize, s.config.HandshakeTimeout)
	if err != nil {
		_ = c.Close()
		return err
	}

	if err := s.hub.Admit(c, nickname); err != nil {
		_ = c.Close()
		return fmt.Errorf("admit %q: %w", nickname, err)
	}
	return nil
}
