// Package transport defines the peer-to-peer connection contract the room
// protocol runs over. Adapters own the underlying resources and must Close
// them; the host and guest layers only see Conn and Listener.
package transport

import (
	"errors"
	"fmt"

	"github.com/sryo/nombre-pendiente/internal/domain"
)

// IdentityPrefix namespaces room identities so they cannot collide with
// unrelated uses of the same signaling network.
const IdentityPrefix = "plbattle-"

var (
	ErrPeerUnreachable = errors.New("peer unreachable")
	ErrIdentityTaken   = errors.New("identity already taken")
	ErrConnNotReady    = errors.New("connection not ready")
)

// Identity is a listening/dialing address on the peer network.
type Identity string

// RoomIdentity derives the host identity for a room name. Sanitization
// failures surface before any connection attempt is made.
func RoomIdentity(name string) (Identity, error) {
	sanitized, err := domain.SanitizeRoomName(name)
	if err != nil {
		return "", fmt.Errorf("room %q: %w", name, err)
	}
	return Identity(IdentityPrefix + string(sanitized)), nil
}

// Conn is a single reliable, ordered data channel to one peer. Handlers
// must be registered before the first inbound message is expected; data
// arrives in per-connection send order, with no cross-connection ordering.
type Conn interface {
	// Send fails with ErrConnNotReady when the channel is not open.
	// Delivery is not acknowledged.
	Send(data []byte) error
	// OnData registers the inbound message handler, one message per call.
	OnData(fn func(data []byte))
	// OnClose fires at most once; the connection is terminal afterwards.
	OnClose(fn func())
	// OnError reports non-terminal transport faults.
	OnError(fn func(err error))
	Open() bool
	Close()
}

// Listener yields inbound connections, already open.
type Listener interface {
	Conns() <-chan Conn
	Close()
}

// Transport binds and dials identities on the peer network.
type Transport interface {
	// Listen fails with ErrIdentityTaken when the identity is bound.
	Listen(id Identity) (Listener, error)
	// Dial blocks until the channel is open or fails with
	// ErrPeerUnreachable when nothing listens on id.
	Dial(id Identity) (Conn, error)
}
