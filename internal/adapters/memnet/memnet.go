// Package memnet is an in-process implementation of the transport contract.
// It backs the protocol tests and local single-process demos: identities
// live in one registry, and each connection delivers messages in FIFO order
// through its own pump goroutine.
package memnet

import (
	"sync"

	"github.com/sryo/nombre-pendiente/internal/transport"
)

type Network struct {
	mu        sync.Mutex
	listeners map[transport.Identity]*listener
}

func NewNetwork() *Network {
	return &Network{listeners: make(map[transport.Identity]*listener)}
}

func (n *Network) Listen(id transport.Identity) (transport.Listener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[id]; ok {
		return nil, transport.ErrIdentityTaken
	}
	l := &listener{net: n, id: id, conns: make(chan transport.Conn, 8)}
	n.listeners[id] = l
	return l, nil
}

func (n *Network) Dial(id transport.Identity) (transport.Conn, error) {
	n.mu.Lock()
	l, ok := n.listeners[id]
	n.mu.Unlock()
	if !ok {
		return nil, transport.ErrPeerUnreachable
	}

	local, remote := newPair()
	if !l.deliver(remote) {
		local.Close()
		return nil, transport.ErrPeerUnreachable
	}
	return local, nil
}

type listener struct {
	net    *Network
	id     transport.Identity
	mu     sync.Mutex
	closed bool
	conns  chan transport.Conn
}

func (l *listener) Conns() <-chan transport.Conn { return l.conns }

func (l *listener) deliver(c transport.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conns <- c
	return true
}

func (l *listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.conns)
	l.mu.Unlock()

	l.net.mu.Lock()
	delete(l.net.listeners, l.id)
	l.net.mu.Unlock()
}
