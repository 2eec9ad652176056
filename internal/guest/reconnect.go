package guest

import (
	"github.com/rs/zerolog/log"

	"github.com/sryo/nombre-pendiente/internal/transport"
)

// handleClose runs when the host connection drops. Unless the guest left on
// purpose, it kicks off the bounded reconnect loop.
func (c *Client) handleClose(conn transport.Conn) {
	c.mu.Lock()
	if c.conn != conn || c.target == "" || c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.reconnecting = true
	target := c.target
	c.mu.Unlock()

	log.Warn().Str("module", "guest").Str("room", string(target)).Msg("host connection lost")
	go c.supervise(target)
}

// supervise retries the dial with a fixed backoff, up to the attempt bound.
// The loop captures the room identity it was started for; if the desired
// room changes underneath it (leave, different room), the loop dies quietly
// at its next tick. A successful reopen re-sends join, which is what
// cancels the host's departure timer.
func (c *Client) supervise(target transport.Identity) {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	for attempt := 1; ; attempt++ {
		<-c.clock.After(c.backoff)

		c.mu.Lock()
		stale := c.target != target
		c.mu.Unlock()
		if stale {
			return
		}

		conn, err := c.tr.Dial(target)
		if err == nil {
			c.mu.Lock()
			c.reconnecting = false
			c.mu.Unlock()
			c.bind(conn)
			log.Info().Str("module", "guest").Int("attempt", attempt).Msg("reconnected")
			return
		}

		log.Warn().Err(err).Str("module", "guest").Int("attempt", attempt).
			Int("max", c.maxTry).Msg("reconnect attempt failed")
		if attempt >= c.maxTry {
			c.giveUp()
			return
		}
	}
}

// giveUp is terminal for the session: the replica resets and the caller is
// told to fall back to an idle state.
func (c *Client) giveUp() {
	c.Leave()
	log.Error().Str("module", "guest").Msg("reconnect bound exceeded, abandoning room")
	if c.onGone != nil {
		c.onGone()
	}
}
