package memnet

import (
	"sync"

	"github.com/sryo/nombre-pendiente/internal/transport"
)

// conn is one endpoint of an in-process pair. Inbound messages queue under
// the endpoint's own lock and are handed to the OnData handler by a single
// pump goroutine, preserving per-connection arrival order. The pump stays
// parked until a handler is registered, so nothing is dropped while the
// accepting side is still wiring itself up.
type conn struct {
	peer *conn

	mu      sync.Mutex
	cond    *sync.Cond
	open    bool
	queue   [][]byte
	onData  func([]byte)
	onClose func()
	onError func(error)
}

func newPair() (*conn, *conn) {
	a := newConn()
	b := newConn()
	a.peer, b.peer = b, a
	go a.pump()
	go b.pump()
	return a, b
}

func newConn() *conn {
	c := &conn{open: true}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *conn) pump() {
	for {
		c.mu.Lock()
		for c.open && (len(c.queue) == 0 || c.onData == nil) {
			c.cond.Wait()
		}
		if !c.open && len(c.queue) == 0 {
			fn := c.onClose
			c.mu.Unlock()
			if fn != nil {
				fn()
			}
			return
		}
		if c.onData == nil {
			// Closed with a backlog but no handler; drop the backlog.
			c.queue = nil
			c.mu.Unlock()
			continue
		}
		data := c.queue[0]
		c.queue = c.queue[1:]
		fn := c.onData
		c.mu.Unlock()
		fn(data)
	}
}

func (c *conn) Send(data []byte) error {
	if !c.isOpen() {
		return transport.ErrConnNotReady
	}
	// Copy so the caller can reuse its buffer.
	buf := append([]byte(nil), data...)
	return c.peer.enqueue(buf)
}

func (c *conn) enqueue(buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return transport.ErrConnNotReady
	}
	c.queue = append(c.queue, buf)
	c.cond.Signal()
	return nil
}

func (c *conn) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *conn) OnData(fn func([]byte)) {
	c.mu.Lock()
	c.onData = fn
	c.cond.Signal()
	c.mu.Unlock()
}

func (c *conn) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *conn) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

func (c *conn) Open() bool { return c.isOpen() }

// Close tears down both endpoints; each side fires its close handler once
// any queued messages have been delivered.
func (c *conn) Close() {
	c.closeLocal()
	c.peer.closeLocal()
}

func (c *conn) closeLocal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	c.open = false
	c.cond.Signal()
}
