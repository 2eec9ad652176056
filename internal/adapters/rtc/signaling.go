// Package rtc implements the transport contract over WebRTC data channels.
// Peers find each other through the signaling broker; once the channel is
// up, the broker is out of the path and room traffic flows peer to peer.
package rtc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sryo/nombre-pendiente/internal/broker"
	"github.com/sryo/nombre-pendiente/internal/transport"
)

// signalClient is one websocket session with the broker. The caller
// registers its envelope handler before starting the read loop, so no
// frame can slip past during setup.
type signalClient struct {
	ws *websocket.Conn
	id transport.Identity

	writeMu sync.Mutex
	mu      sync.Mutex
	handler func(broker.Envelope)
	closed  bool
}

// dialSignal connects to the broker and binds id; an empty id asks the
// broker for an ephemeral one. Blocks until the broker confirms the bind
// or rejects it with identity_taken.
func dialSignal(brokerURL string, id transport.Identity) (*signalClient, error) {
	u := brokerURL
	if id != "" {
		u = fmt.Sprintf("%s?id=%s", brokerURL, id)
	}
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		return nil, fmt.Errorf("broker dial: %w", err)
	}

	var env broker.Envelope
	if err := ws.ReadJSON(&env); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("broker handshake: %w", err)
	}
	switch {
	case env.Type == broker.TypeOpen:
		return &signalClient{ws: ws, id: transport.Identity(env.From)}, nil
	case env.Type == broker.TypeError && env.Error == broker.ErrorIdentityTaken:
		_ = ws.Close()
		return nil, transport.ErrIdentityTaken
	default:
		_ = ws.Close()
		return nil, fmt.Errorf("broker handshake: unexpected %q", env.Type)
	}
}

func (s *signalClient) start(handler func(broker.Envelope)) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
	go s.readLoop()
}

func (s *signalClient) readLoop() {
	for {
		var env broker.Envelope
		if err := s.ws.ReadJSON(&env); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				log.Debug().Err(err).Str("module", "rtc.signal").Msg("signal read loop ended")
			}
			return
		}
		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h != nil {
			h(env)
		}
	}
}

func (s *signalClient) send(env broker.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

func (s *signalClient) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	_ = s.ws.Close()
}
