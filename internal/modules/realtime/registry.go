// README: Registry of live socket connections, one per user.
package realtime

import (
	"context"
	"sync"

	"rxflow/internal/types"
)

// Client is one live connection.
type Client interface {
	UserID() types.ID
	Role() string
	Send(ctx context.Context, msg Message) error
	Close() error
}

const roleAdmin = "admin"

type Registry struct {
	mu      sync.RWMutex
	clients map[types.ID]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[types.ID]Client)}
}

// Register tracks c for its user, closing any connection it replaces.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	prev, ok := r.clients[c.UserID()]
	r.clients[c.UserID()] = c
	r.mu.Unlock()
	if ok && prev != c {
		_ = prev.Close()
	}
}

// Unregister drops c only if it is still the tracked connection for userID.
func (r *Registry) Unregister(userID types.ID, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.clients[userID]; ok && cur == c {
		delete(r.clients, userID)
	}
}

func (r *Registry) Lookup(userID types.ID) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

func (r *Registry) Admins() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Client
	for _, c := range r.clients {
		if c.Role() == roleAdmin {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
