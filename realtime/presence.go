package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/techagentng/collera/models"
)

// Peer is one live connection as the registry sees it.
type Peer interface {
	ID() string
	Push(env models.Envelope) bool
}

// Registry maps each online user to the set of their live connections.
// An entry exists only while its set is non-empty.
type Registry struct {
	mu    sync.RWMutex
	users map[uuid.UUID]map[string]Peer
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[uuid.UUID]map[string]Peer)}
}

// Register adds peer under userID and reports whether the user was offline before.
// Registering the same connection twice is a no-op.
func (r *Registry) Register(userID uuid.UUID, peer Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]Peer)
		r.users[userID] = conns
	}
	conns[peer.ID()] = peer
	return !ok
}

// Deregister removes a connection and reports whether it was the user's last one.
func (r *Registry) Deregister(userID uuid.UUID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connectionID]; !ok {
		return false
	}
	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsFor(userID uuid.UUID) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userID]
	peers := make([]Peer, 0, len(conns))
	for _, p := range conns {
		peers = append(peers, p)
	}
	return peers
}

func (r *Registry) Online(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// OnlineCount returns the number of users with at least one connection.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Broadcast pushes env to every live connection of userID and returns how
// many accepted it.
func (r *Registry) Broadcast(userID uuid.UUID, env models.Envelope) int {
	delivered := 0
	for _, p := range r.ConnectionsFor(userID) {
		if p.Push(env) {
			delivered++
		}
	}
	return delivered
}
