package server

import (
	"sort"
	"sync"
)

// Registry is the shared collection of Active connections. Every mutation
// and every snapshot is taken under the same lock, so a broadcast pass never
// observes a half-applied add or remove.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Connection]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[*Connection]string),
	}
}

// Add admits a Pending connection under nickname and promotes it to Active.
// Adding the same connection twice returns ErrAlreadyRegistered; adding a
// connection that is no longer Pending returns ErrNotPending.
func (r *Registry) Add(c *Connection, nickname string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; ok {
		return ErrAlreadyRegistered
	}
	if !c.activate(nickname) {
		return ErrNotPending
	}
	r.clients[c] = nickname
	return nil
}

// Remove drops c from the registry and marks it Closed. It reports whether
// this call removed the entry; removing an absent connection is a no-op.
func (r *Registry) Remove(c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false
	}
	delete(r.clients, c)
	c.markClosed()
	return true
}

// Contains reports whether c is currently registered.
func (r *Registry) Contains(c *Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[c]
	return ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Snapshot returns a copy of the registered connections in admission order.
// The slice is owned by the caller and is unaffected by later mutations.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Connection, 0, len(r.clients))
	for client := range r.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].seq < clients[j].seq
	})
	return clients
}

// Nicknames returns the nicknames of the registered connections in
// admission order.
func (r *Registry) Nicknames() []string {
	snapshot := r.Snapshot()
	names := make([]string, 0, len(snapshot))
	for _, c := range snapshot {
		names = append(names, c.Nickname())
	}
	return names
}
