package broker

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sryo/nombre-pendiente/internal/transport"
)

var ErrBackpressure = errors.New("backpressure")

// Envelope is a signaling frame. From is stamped by the broker on relay;
// Payload is opaque (SDP or ICE JSON) and passed through untouched.
type Envelope struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	TypeOpen      = "open"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
	TypeError     = "error"

	ErrorIdentityTaken   = "identity_taken"
	ErrorPeerUnreachable = "peer_unreachable"
)

type peerConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *peerConn) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *peerConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

type Controller struct {
	Registry *Registry
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the websocket, binds the requested identity (or an
// ephemeral one) and pumps signaling frames until the peer goes away.
func (ctl *Controller) HandleSignal(c *gin.Context) {
	requested := c.Query("id")
	if requested == "" {
		requested = uuid.NewString()
	}
	id := transport.Identity(requested)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "broker").Msg("ws upgrade")
		return
	}

	pc := &peerConn{conn: ws, send: make(chan []byte, 32)}
	go ctl.writePump(pc)

	if err := ctl.Registry.Bind(id, pc); err != nil {
		ctl.sendEnvelope(pc, Envelope{Type: TypeError, Error: ErrorIdentityTaken})
		// Give the write pump a beat to flush before tearing down.
		time.Sleep(100 * time.Millisecond)
		pc.close()
		return
	}
	log.Info().Str("module", "broker").Str("id", string(id)).Msg("peer connected")

	ctl.sendEnvelope(pc, Envelope{Type: TypeOpen, From: string(id)})
	ctl.readPump(id, pc)
}

func (ctl *Controller) writePump(c *peerConn) {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Str("module", "broker").Msg("writePump write error")
			return
		}
	}
}

func (ctl *Controller) readPump(id transport.Identity, c *peerConn) {
	defer func() {
		ctl.Registry.Unbind(id, c)
		c.close()
		log.Info().Str("module", "broker").Str("id", string(id)).Msg("peer disconnected")
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		ctl.handleFrame(id, c, data)
	}
}

func (ctl *Controller) handleFrame(id transport.Identity, c *peerConn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "broker").Msg("bad frame")
		return
	}

	switch env.Type {
	case TypeOffer, TypeAnswer, TypeCandidate:
		ctl.relay(id, c, env)
	default:
		log.Warn().Str("module", "broker").Str("type", env.Type).Msg("unknown frame type")
	}
}

func (ctl *Controller) relay(from transport.Identity, c *peerConn, env Envelope) {
	target, ok := ctl.Registry.Get(transport.Identity(env.To))
	if !ok {
		ctl.sendEnvelope(c, Envelope{Type: TypeError, Error: ErrorPeerUnreachable, To: env.To})
		return
	}
	env.From = string(from)
	ctl.sendEnvelope(target, env)
}

func (ctl *Controller) sendEnvelope(c *peerConn, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "broker").Msg("envelope marshal")
		return
	}
	if err := c.trySend(data); err != nil {
		log.Debug().Err(err).Str("module", "broker").Msg("envelope send")
	}
}
