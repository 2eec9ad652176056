// Package broker is the rendezvous point of the peer network: peers bind an
// identity over a websocket and exchange SDP offers, answers and ICE
// candidates addressed by identity. The broker never sees room state; it
// only brokers connections, the way a PeerJS signaling server would.
package broker

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sryo/nombre-pendiente/internal/transport"
)

// Registry maps bound identities to their live signaling connections.
// An identity is exclusive: binding a taken one fails.
type Registry struct {
	mu    sync.RWMutex
	peers map[transport.Identity]*peerConn
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[transport.Identity]*peerConn)}
}

func (r *Registry) Bind(id transport.Identity, pc *peerConn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[id]; ok {
		return transport.ErrIdentityTaken
	}
	r.peers[id] = pc
	log.Info().Str("module", "broker.registry").Str("id", string(id)).Msg("identity bound")
	return nil
}

// Unbind releases the identity, but only if pc still owns it; a stale
// connection that lost its identity to a rebind must not evict the newer
// owner.
func (r *Registry) Unbind(id transport.Identity, pc *peerConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.peers[id]; ok && cur == pc {
		delete(r.peers, id)
		log.Info().Str("module", "broker.registry").Str("id", string(id)).Msg("identity released")
	}
}

func (r *Registry) Get(id transport.Identity) (*peerConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pc, ok := r.peers[id]
	return pc, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
