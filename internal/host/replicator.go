// Package host implements the authoritative side of the room protocol: it
// validates inbound guest intents, mutates the canonical room document and
// broadcasts a full snapshot to every open guest connection.
package host

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sryo/nombre-pendiente/internal/domain"
	"github.com/sryo/nombre-pendiente/internal/protocol"
	"github.com/sryo/nombre-pendiente/internal/sched"
	"github.com/sryo/nombre-pendiente/internal/transport"
)

const DefaultGracePeriod = 30 * time.Second

// Policy selects the add-video validation variant. The default accepts any
// video with a fresh id; OneVideoPerUser additionally rejects a submitter
// who already has a video credited this round.
type Policy struct {
	OneVideoPerUser bool
}

// Options configures a Replicator. The zero value of optional fields falls
// back to a real timer scheduler and the default grace period.
type Options struct {
	Host       domain.User
	Policy     Policy
	Grace      time.Duration
	Departures sched.Scheduler
	// OnChange receives a deep copy of the room after every accepted
	// mutation; it is the host's own local view, fed through the same
	// path as guest snapshots.
	OnChange func(room *domain.Room)
	// OnNotice receives human-readable room events (joins, departures)
	// for the host UI.
	OnNotice func(msg string)
}

// Replicator owns the canonical room, the set of guest connections and the
// pending-departure timers. Every mutation entry point serializes on one
// mutex, so there is never more than one mutation in flight and a rejected
// intent can never leave the document partially changed.
type Replicator struct {
	mu         sync.Mutex
	room       *domain.Room
	conns      map[transport.Conn]domain.UserID
	hostUser   domain.User
	policy     Policy
	grace      time.Duration
	departures sched.Scheduler
	onChange   func(*domain.Room)
	onNotice   func(string)
}

func New(opts Options) *Replicator {
	if opts.Departures == nil {
		opts.Departures = sched.NewScheduler()
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGracePeriod
	}
	room := domain.NewRoom()
	room.UpsertUser(opts.Host.ID, opts.Host.Name)
	return &Replicator{
		room:       room,
		conns:      make(map[transport.Conn]domain.UserID),
		hostUser:   opts.Host,
		policy:     opts.Policy,
		grace:      opts.Grace,
		departures: opts.Departures,
		onChange:   opts.OnChange,
		onNotice:   opts.OnNotice,
	}
}

// Serve accepts guest connections until the listener closes.
func (r *Replicator) Serve(lis transport.Listener) {
	for conn := range lis.Conns() {
		r.Attach(conn)
	}
}

// Attach registers a fresh guest connection and sends it an immediate
// snapshot, before any join arrives. The connection stays unauthenticated
// (no user id) until its join intent is accepted.
func (r *Replicator) Attach(conn transport.Conn) {
	r.mu.Lock()
	r.conns[conn] = ""
	snapshot, err := protocol.Encode(&protocol.State{Room: r.room})
	r.mu.Unlock()

	conn.OnData(func(data []byte) { r.handleData(conn, data) })
	conn.OnClose(func() { r.handleClose(conn) })
	conn.OnError(func(err error) {
		log.Warn().Err(err).Str("module", "host").Msg("guest connection error")
	})

	if err == nil {
		if err := conn.Send(snapshot); err != nil {
			log.Warn().Err(err).Str("module", "host").Msg("initial snapshot send")
		}
	}
	log.Info().Str("module", "host").Msg("guest connection attached")
}

// Room returns a deep copy of the canonical document.
func (r *Replicator) Room() *domain.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.room.Clone()
}

// Stop cancels all pending departure timers.
func (r *Replicator) Stop() {
	r.departures.Stop()
}

func (r *Replicator) handleData(conn transport.Conn, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "host").Msg("bad guest message")
		r.reply(conn, "bad payload")
		return
	}

	switch m := msg.(type) {
	case *protocol.Join:
		r.handleJoin(conn, m)
	case *protocol.AddVideo:
		r.handleAddVideo(conn, m)
	case *protocol.Vote:
		r.handleVote(m)
	case *protocol.State, *protocol.Error:
		// Host-to-guest shapes; a guest has no business sending them.
		log.Warn().Str("module", "host").Msg("ignoring host-bound message from guest")
	}
}

func (r *Replicator) handleJoin(conn transport.Conn, m *protocol.Join) {
	r.mu.Lock()
	added := r.room.UpsertUser(m.UserID, m.Username)
	r.conns[conn] = m.UserID
	r.departures.Cancel(string(m.UserID))
	r.mu.Unlock()

	log.Info().Str("module", "host").Str("user", string(m.UserID)).
		Str("name", m.Username).Bool("new", added).Msg("join")
	if added {
		r.notice(m.Username + " joined the room")
	}
	r.broadcast()
}

func (r *Replicator) handleAddVideo(conn transport.Conn, m *protocol.AddVideo) {
	r.mu.Lock()
	err := r.validateAdd(m.Video)
	if err == nil {
		err = r.room.AddVideo(m.Video)
	}
	r.mu.Unlock()

	if err != nil {
		log.Info().Err(err).Str("module", "host").Str("video", m.Video.ID).Msg("add-video rejected")
		r.reply(conn, err.Error())
		return
	}
	r.broadcast()
}

func (r *Replicator) validateAdd(v domain.Video) error {
	if r.room.Phase != domain.PhaseAdding {
		return domain.ErrWrongPhase
	}
	if r.room.FindVideo(v.ID) != nil {
		return domain.ErrDuplicateID
	}
	if r.policy.OneVideoPerUser && domain.HasVideoBy(r.room.Videos, v.AddedBy) {
		return domain.ErrAlreadyAdded
	}
	return nil
}

func (r *Replicator) handleVote(m *protocol.Vote) {
	r.mu.Lock()
	err := r.room.CastVote(m.UserID, m.VideoID, m.Unvote)
	r.mu.Unlock()

	if err != nil {
		// Wrong-phase votes are dropped silently: no mutation happened
		// and the next snapshot will straighten the guest out.
		log.Debug().Err(err).Str("module", "host").Str("user", string(m.UserID)).Msg("vote dropped")
		return
	}
	r.broadcast()
}

func (r *Replicator) handleClose(conn transport.Conn) {
	r.mu.Lock()
	uid, ok := r.conns[conn]
	delete(r.conns, conn)
	stillConnected := uid != "" && r.userConnected(uid)
	r.mu.Unlock()
	if !ok {
		return
	}

	log.Info().Str("module", "host").Str("user", string(uid)).Msg("guest connection closed")
	if uid == "" || stillConnected {
		return
	}
	// Membership survives the grace period so a blip or reload does not
	// visibly drop the participant or erase their votes.
	r.departures.Schedule(string(uid), r.grace, func() { r.expireDeparture(uid) })
}

func (r *Replicator) userConnected(uid domain.UserID) bool {
	for conn, id := range r.conns {
		if id == uid && conn.Open() {
			return true
		}
	}
	return false
}

func (r *Replicator) expireDeparture(uid domain.UserID) {
	r.mu.Lock()
	if r.userConnected(uid) {
		r.mu.Unlock()
		return
	}
	var name string
	for _, u := range r.room.Users {
		if u.ID == uid {
			name = u.Name
		}
	}
	removed := r.room.RemoveUser(uid)
	r.mu.Unlock()

	if !removed {
		return
	}
	log.Info().Str("module", "host").Str("user", string(uid)).Msg("departure grace expired")
	r.notice(name + " left the room")
	r.broadcast()
}

// broadcast sends the full room document to every open guest connection
// and refreshes the host's own view. Connections that are not open are
// skipped silently; the next snapshot is self-healing since every one
// carries complete state.
func (r *Replicator) broadcast() {
	r.mu.Lock()
	snapshot := r.room.Clone()
	data, err := protocol.Encode(&protocol.State{Room: r.room})
	conns := make([]transport.Conn, 0, len(r.conns))
	for conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("module", "host").Msg("snapshot encode")
		return
	}
	sent := 0
	for _, conn := range conns {
		if !conn.Open() {
			continue
		}
		if err := conn.Send(data); err != nil {
			continue
		}
		sent++
	}
	log.Debug().Str("module", "host").Int("sent_to", sent).Msg("snapshot broadcast")

	if r.onChange != nil {
		r.onChange(snapshot)
	}
}

func (r *Replicator) reply(conn transport.Conn, msg string) {
	data, err := protocol.Encode(&protocol.Error{Message: msg})
	if err != nil {
		return
	}
	if err := conn.Send(data); err != nil {
		log.Debug().Err(err).Str("module", "host").Msg("error reply send")
	}
}

func (r *Replicator) notice(msg string) {
	if r.onNotice != nil {
		r.onNotice(msg)
	}
}
