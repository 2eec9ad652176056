// Package guest implements the replica side of the room protocol: it sends
// join/add-video/vote intents to the host and replaces its local room
// wholesale on every snapshot. The replica is never mutated locally, so a
// guest's view is always some state the host actually observed.
package guest

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sryo/nombre-pendiente/internal/domain"
	"github.com/sryo/nombre-pendiente/internal/protocol"
	"github.com/sryo/nombre-pendiente/internal/sched"
	"github.com/sryo/nombre-pendiente/internal/transport"
)

const (
	DefaultMaxReconnects    = 5
	DefaultReconnectBackoff = 3 * time.Second
)

// Options configures a Client.
type Options struct {
	Transport transport.Transport
	User      domain.User
	Clock     sched.Clock
	// MaxReconnects bounds the attempts after an established connection
	// drops; a first connection that fails is never auto-retried.
	MaxReconnects int
	Backoff       time.Duration
	// OnState receives the replacement replica after each snapshot.
	OnState func(room *domain.Room)
	// OnError surfaces a targeted host rejection; state is unchanged.
	OnError func(msg string)
	// OnGone fires when the session is over for good: the reconnect
	// bound was exhausted, or Leave was called.
	OnGone func()
}

type Client struct {
	tr      transport.Transport
	user    domain.User
	clock   sched.Clock
	maxTry  int
	backoff time.Duration
	onState func(*domain.Room)
	onError func(msg string)
	onGone  func()

	mu           sync.Mutex
	target       transport.Identity // empty once the room is left
	conn         transport.Conn
	replica      *domain.Room
	reconnecting bool
}

func New(opts Options) *Client {
	if opts.Clock == nil {
		opts.Clock = sched.RealClock()
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = DefaultMaxReconnects
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultReconnectBackoff
	}
	return &Client{
		tr:      opts.Transport,
		user:    opts.User,
		clock:   opts.Clock,
		maxTry:  opts.MaxReconnects,
		backoff: opts.Backoff,
		onState: opts.OnState,
		onError: opts.OnError,
		onGone:  opts.OnGone,
		replica: domain.NewRoom(),
	}
}

// Connect dials the room's host identity and sends the join intent. A
// failure here is surfaced to the caller and not retried; the bounded
// reconnect loop only covers an established connection that drops.
func (c *Client) Connect(roomName string) error {
	id, err := transport.RoomIdentity(roomName)
	if err != nil {
		return err
	}
	conn, err := c.tr.Dial(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.target = id
	c.mu.Unlock()

	c.bind(conn)
	log.Info().Str("module", "guest").Str("room", string(id)).Msg("connected to host")
	return nil
}

// Leave abandons the room: the connection is closed and no reconnection
// attempt will be scheduled for it.
func (c *Client) Leave() {
	c.mu.Lock()
	c.target = ""
	conn := c.conn
	c.conn = nil
	c.replica = domain.NewRoom()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	log.Info().Str("module", "guest").Msg("left room")
}

// Replica returns a deep copy of the last snapshot.
func (c *Client) Replica() *domain.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replica.Clone()
}

// AddVideo submits a video intent; acceptance arrives as the next snapshot.
func (c *Client) AddVideo(v domain.Video) error {
	v.AddedBy = c.user.Name
	return c.send(&protocol.AddVideo{Video: v})
}

// Vote sends a vote intent for videoID. Whether this is an unvote is an
// optimistic query over the current replica; the authoritative outcome
// still arrives via the snapshot.
func (c *Client) Vote(videoID string) error {
	return c.send(&protocol.Vote{
		UserID:  c.user.ID,
		VideoID: videoID,
		Unvote:  c.IsUnvote(videoID),
	})
}

// IsUnvote reports whether voting videoID would clear the user's current
// vote. Pure query; it never touches the replica.
func (c *Client) IsUnvote(videoID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := domain.CurrentVote(c.replica.Videos, c.user.ID)
	return current != nil && current.ID == videoID
}

func (c *Client) send(m protocol.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return transport.ErrConnNotReady
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return conn.Send(data)
}

// bind wires a fresh host connection and announces the user. Re-sending
// join on a reconnect is what makes the host treat it as reassociation and
// cancel the pending departure.
func (c *Client) bind(conn transport.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	conn.OnData(func(data []byte) { c.handleData(data) })
	conn.OnClose(func() { c.handleClose(conn) })
	conn.OnError(func(err error) {
		log.Warn().Err(err).Str("module", "guest").Msg("host connection error")
	})

	if err := c.send(&protocol.Join{UserID: c.user.ID, Username: c.user.Name}); err != nil {
		log.Warn().Err(err).Str("module", "guest").Msg("join send")
	}
}

func (c *Client) handleData(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "guest").Msg("bad host message")
		return
	}

	switch m := msg.(type) {
	case *protocol.State:
		room := m.Room
		if room == nil {
			room = domain.NewRoom()
		}
		c.mu.Lock()
		c.replica = room
		c.mu.Unlock()
		if c.onState != nil {
			c.onState(room.Clone())
		}
	case *protocol.Error:
		log.Info().Str("module", "guest").Str("message", m.Message).Msg("host rejection")
		if c.onError != nil {
			c.onError(m.Message)
		}
	case *protocol.Join, *protocol.AddVideo, *protocol.Vote:
		// Guest-to-host shapes; ignore.
		log.Warn().Str("module", "guest").Msg("ignoring guest-bound message from host")
	}
}
