// Package server coordinates client admission, message broadcast, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"log"
	"sync"
)

// Hub is the relay's broadcaster. It fans payloads out to every connection
// held by its Registry and owns the admission and departure paths, so a
// connection is announced once when it joins and once when it leaves.
type Hub struct {
	registry *Registry
}

// NewHub creates a Hub with an empty Registry.
func NewHub() *Hub {
	return &Hub{
		registry: NewRegistry(),
	}
}

// Registry returns the hub's registry of active connections.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ClientCount returns the number of active connections.
func (h *Hub) ClientCount() int {
	return h.registry.Len()
}

// Broadcast sends payload to every connection registered at call time,
// including the one that originated it. Recipients are written to in
// parallel and Broadcast returns once every write has finished. A recipient
// whose write fails is disconnected; the failed recipients are returned.
func (h *Hub) Broadcast(payload []byte) []*Connection {
	clients := h.registry.Snapshot()
	if len(clients) == 0 {
		return nil
	}

	failed := h.broadcastToClients(clients, payload)
	h.removeFailedClients(failed)
	return failed
}

// broadcastToClients writes payload to each client and returns the ones whose
// write failed.
func (h *Hub) broadcastToClients(clients []*Connection, payload []byte) []*Connection {
	var (
		mu     sync.Mutex
		failed []*Connection
		wg     sync.WaitGroup
	)

	wg.Add(len(clients))
	for _, client := range clients {
		go func(c *Connection) {
			defer wg.Done()
			if err := c.Send(payload); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error sending to %s (%s): %v", c.Nickname(), c.RemoteAddr(), err)
				}
				mu.Lock()
				failed = append(failed, c)
				mu.Unlock()
			}
		}(client)
	}
	wg.Wait()

	return failed
}

// removeFailedClients disconnects clients that failed to receive a broadcast.
func (h *Hub) removeFailedClients(failed []*Connection) {
	for _, client := range failed {
		if h.Disconnect(client) {
			log.Printf("Client %s from %s removed after failed send", client.Nickname(), client.RemoteAddr())
		}
	}
}

// Admit registers a Pending connection under nickname, announces it to every
// registered connection (itself included) and acknowledges it privately.
func (h *Hub) Admit(c *Connection, nickname string) error {
	if err := h.registry.Add(c, nickname); err != nil {
		return err
	}
	log.Printf("Client %s registered from %s as %q. Total clients: %d", c.ID(), c.RemoteAddr(), nickname, h.registry.Len())

	h.Broadcast(joinNotice(nickname))

	if err := c.Send([]byte(connectedAck)); err != nil {
		// the session's first read will fail and run the departure path
		if !isExpectedCloseError(err) {
			log.Printf("Error sending acknowledgement to %s: %v", c.RemoteAddr(), err)
		}
	}
	return nil
}

// Disconnect removes c from the registry, closes its transport, and
// broadcasts its departure to the remaining connections. Only the call that
// actually removes c has any effect; it reports whether that happened.
func (h *Hub) Disconnect(c *Connection) bool {
	if !h.registry.Remove(c) {
		return false
	}
	if err := c.Close(); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error closing connection from %s: %v", c.RemoteAddr(), err)
	}

	nickname := c.Nickname()
	log.Printf("Client %s unregistered from %s. Total clients: %d", nickname, c.RemoteAddr(), h.registry.Len())
	h.Broadcast(leaveNotice(nickname))
	return true
}

// removeAll drops whatever is still registered without announcing it. It is
// the last step of shutdown, after sessions had their chance to leave.
func (h *Hub) removeAll() int {
	removed := 0
	for _, client := range h.registry.Snapshot() {
		if h.registry.Remove(client) {
			_ = client.Close()
			removed++
		}
	}
	return removed
}
