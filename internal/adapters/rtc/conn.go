package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/sryo/nombre-pendiente/internal/transport"
)

// dcConn adapts a pion data channel to transport.Conn. Messages that
// arrive before the application registers OnData queue up and replay in
// order once the handler lands.
type dcConn struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	mu      sync.Mutex
	backlog [][]byte
	onData  func([]byte)
	onClose func()
	onError func(error)
	closed  bool
}

func newDCConn(pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *dcConn {
	c := &dcConn{pc: pc, dc: dc}

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.Lock()
		if c.onData == nil {
			c.backlog = append(c.backlog, msg.Data)
			c.mu.Unlock()
			return
		}
		fn := c.onData
		c.mu.Unlock()
		fn(msg.Data)
	})
	dc.OnClose(func() { c.fireClose() })
	dc.OnError(func(err error) {
		c.mu.Lock()
		fn := c.onError
		c.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.fireClose()
		}
	})
	return c
}

func (c *dcConn) Send(data []byte) error {
	if c.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return transport.ErrConnNotReady
	}
	return c.dc.Send(data)
}

func (c *dcConn) OnData(fn func([]byte)) {
	c.mu.Lock()
	c.onData = fn
	backlog := c.backlog
	c.backlog = nil
	c.mu.Unlock()
	for _, data := range backlog {
		fn(data)
	}
}

func (c *dcConn) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *dcConn) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

func (c *dcConn) Open() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return !closed && c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (c *dcConn) Close() {
	if err := c.pc.Close(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Msg("peer connection close")
	}
	c.fireClose()
}

func (c *dcConn) fireClose() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
