package peer

import (
	"sync"
	"time"

	"github.com/postalsys/tmconn/internal/identity"
)

// Registry tracks the live authenticated sessions of a node, keyed by
// the peer's proven identity. It backs the node's /peers endpoint and
// shutdown. The connected-peers gauge is kept by the sessions
// themselves, not by the registry.
type Registry struct {
	mu    sync.RWMutex
	peers map[identity.PeerID]*Peer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[identity.PeerID]*Peer),
	}
}

// Add registers a session under its authenticated identity. If a session
// with the same identity is already registered, it is returned so the
// caller can decide which to keep; the new session wins the slot.
func (r *Registry) Add(p *Peer) (previous *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous = r.peers[p.RemoteID()]
	r.peers[p.RemoteID()] = p
	return previous
}

// Remove unregisters a session. A session that lost its slot to a newer
// one is left alone.
func (r *Registry) Remove(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.peers[p.RemoteID()] == p {
		delete(r.peers, p.RemoteID())
	}
}

// Get returns the live session for the given identity, if any.
func (r *Registry) Get(id identity.PeerID) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]
	return p, ok
}

// List returns all live sessions.
func (r *Registry) List() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// CloseAll closes every registered session. Used at shutdown.
func (r *Registry) CloseAll() {
	for _, p := range r.List() {
		p.Close()
	}
}

// Status is a point-in-time description of one session, shaped for the
// node's JSON status endpoint.
type Status struct {
	PeerID        string        `json:"peer_id"`
	Transport     string        `json:"transport"`
	RemoteAddr    string        `json:"remote_addr"`
	Dialer        bool          `json:"dialer"`
	BytesSent     uint64        `json:"bytes_sent"`
	BytesReceived uint64        `json:"bytes_received"`
	Uptime        time.Duration `json:"uptime_ns"`
}

// Snapshot returns the status of every live session.
func (r *Registry) Snapshot() []Status {
	peers := r.List()

	out := make([]Status, 0, len(peers))
	for _, p := range peers {
		out = append(out, Status{
			PeerID:        p.RemoteID().String(),
			Transport:     string(p.TransportType()),
			RemoteAddr:    p.RemoteAddr().String(),
			Dialer:        p.IsDialer(),
			BytesSent:     p.BytesSent(),
			BytesReceived: p.BytesReceived(),
			Uptime:        p.Uptime(),
		})
	}
	return out
}
