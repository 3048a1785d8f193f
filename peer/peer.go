// Package peer holds the table of nodes currently visible on the LAN.
package peer

import (
	"sync"

	"github.com/google/uuid"
)

// Peer is a remote node. Identity is the ID; Addr is the host:port the node
// accepts frames on.
type Peer struct {
	ID   uuid.UUID
	Name string
	Addr string
}

// Registry is the shared peer table. Discovery writes to it, senders read
// from it; all access goes through the mutex and callers only ever receive
// copies.
type Registry struct {
	mu    sync.RWMutex
	peers map[uuid.UUID]Peer
}

func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[uuid.UUID]Peer),
	}
}

// Add inserts or refreshes p, keyed by its ID.
func (r *Registry) Add(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[p.ID] = p
}

func (r *Registry) Get(id uuid.UUID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]
	return p, ok
}

// RemoveByName drops every entry advertised under name. Discovery removal
// events carry only the instance name, not the id.
func (r *Registry) RemoveByName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.peers {
		if p.Name == name {
			delete(r.peers, id)
		}
	}
}

// List returns a snapshot of the known peers in no particular order.
func (r *Registry) List() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}

	return peers
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.peers)
}
