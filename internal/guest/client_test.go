package guest

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sryo/nombre-pendiente/internal/adapters/memnet"
	"github.com/sryo/nombre-pendiente/internal/domain"
	"github.com/sryo/nombre-pendiente/internal/host"
	"github.com/sryo/nombre-pendiente/internal/sched"
	"github.com/sryo/nombre-pendiente/internal/transport"
)

const roomName = "test room"

func startHost(t *testing.T, n *memnet.Network) *host.Replicator {
	t.Helper()
	id, err := transport.RoomIdentity(roomName)
	require.NoError(t, err)
	lis, err := n.Listen(id)
	require.NoError(t, err)
	t.Cleanup(lis.Close)

	rep := host.New(host.Options{Host: domain.User{ID: "host", Name: "host"}})
	go rep.Serve(lis)
	return rep
}

// countingTransport counts dial attempts so reconnect tests can assert the
// bound and the cancellation behavior.
type countingTransport struct {
	inner transport.Transport
	dials atomic.Int32
}

func (c *countingTransport) Listen(id transport.Identity) (transport.Listener, error) {
	return c.inner.Listen(id)
}

func (c *countingTransport) Dial(id transport.Identity) (transport.Conn, error) {
	c.dials.Add(1)
	return c.inner.Dial(id)
}

type recorder struct {
	mu     sync.Mutex
	states []*domain.Room
	errs   []string
	gone   atomic.Bool
}

func (r *recorder) onState(room *domain.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, room)
}

func (r *recorder) onError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, msg)
}

func (r *recorder) last() *domain.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return nil
	}
	return r.states[len(r.states)-1]
}

func (r *recorder) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func newClient(tr transport.Transport, clock sched.Clock, rec *recorder) *Client {
	return New(Options{
		Transport:     tr,
		User:          domain.User{ID: "u1", Name: "ana"},
		Clock:         clock,
		MaxReconnects: 3,
		Backoff:       time.Second,
		OnState:       rec.onState,
		OnError:       rec.onError,
		OnGone:        func() { rec.gone.Store(true) },
	})
}

func TestConnectJoinsAndMirrorsSnapshots(t *testing.T) {
	n := memnet.NewNetwork()
	rep := startHost(t, n)
	rec := &recorder{}
	c := newClient(n, sched.NewFakeClock(), rec)

	require.NoError(t, c.Connect(roomName))
	defer c.Leave()

	require.Eventually(t, func() bool { return c.Replica().HasUser("u1") },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, rep.Room(), c.Replica(), "replica mirrors the canonical room")
}

func TestReplicaReplacedWholesale(t *testing.T) {
	n := memnet.NewNetwork()
	rep := startHost(t, n)
	rec := &recorder{}
	c := newClient(n, sched.NewFakeClock(), rec)
	require.NoError(t, c.Connect(roomName))
	defer c.Leave()

	require.NoError(t, rep.AddVideo(domain.Video{ID: "v1", AddedBy: "host"}))
	require.Eventually(t, func() bool { return c.Replica().FindVideo("v1") != nil },
		2*time.Second, 5*time.Millisecond)

	// A removal must not linger in the replica: no merging with the
	// previous state, each snapshot replaces it whole.
	rep.RemoveVideo("v1")
	require.Eventually(t, func() bool { return c.Replica().FindVideo("v1") == nil },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, rep.Room(), c.Replica())
}

func TestVoteTogglesViaIsUnvote(t *testing.T) {
	n := memnet.NewNetwork()
	rep := startHost(t, n)
	rec := &recorder{}
	c := newClient(n, sched.NewFakeClock(), rec)
	require.NoError(t, c.Connect(roomName))
	defer c.Leave()

	require.Eventually(t, func() bool { return c.Replica().HasUser("u1") },
		2*time.Second, 5*time.Millisecond)
	require.NoError(t, rep.AddVideo(domain.Video{ID: "A", AddedBy: "host"}))
	require.NoError(t, rep.AdvancePhase())
	require.Eventually(t, func() bool { return c.Replica().Phase == domain.PhaseVoting },
		2*time.Second, 5*time.Millisecond)

	assert.False(t, c.IsUnvote("A"))
	require.NoError(t, c.Vote("A"))
	require.Eventually(t, func() bool { return len(rep.Room().FindVideo("A").Votes) == 1 },
		2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return c.IsUnvote("A") },
		2*time.Second, 5*time.Millisecond)

	// Same video again: the optimistic query flags it as an unvote.
	require.NoError(t, c.Vote("A"))
	require.Eventually(t, func() bool { return len(rep.Room().FindVideo("A").Votes) == 0 },
		2*time.Second, 5*time.Millisecond)
}

func TestHostRejectionSurfacedWithoutStateChange(t *testing.T) {
	n := memnet.NewNetwork()
	rep := startHost(t, n)
	rec := &recorder{}
	c := newClient(n, sched.NewFakeClock(), rec)
	require.NoError(t, c.Connect(roomName))
	defer c.Leave()

	require.NoError(t, rep.AddVideo(domain.Video{ID: "v1", AddedBy: "host"}))
	require.Eventually(t, func() bool { return c.Replica().FindVideo("v1") != nil },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.AddVideo(domain.Video{ID: "v1", Title: "dup"}))
	require.Eventually(t, func() bool { return rec.errCount() == 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, rep.Room(), c.Replica(), "error reply changes nothing")
}

func TestFirstConnectFailureIsNotRetried(t *testing.T) {
	n := memnet.NewNetwork()
	tr := &countingTransport{inner: n}
	rec := &recorder{}
	clock := sched.NewFakeClock()
	c := newClient(tr, clock, rec)

	assert.ErrorIs(t, c.Connect(roomName), transport.ErrPeerUnreachable)
	clock.Advance(time.Minute)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), tr.dials.Load(), "no reconnect loop for a failed first dial")
	assert.False(t, rec.gone.Load())
}

func TestReconnectReassociates(t *testing.T) {
	n := memnet.NewNetwork()
	rep := startHost(t, n)
	tr := &countingTransport{inner: n}
	rec := &recorder{}
	clock := sched.NewFakeClock()
	c := newClient(tr, clock, rec)
	require.NoError(t, c.Connect(roomName))
	defer c.Leave()

	require.Eventually(t, func() bool { return c.Replica().HasUser("u1") },
		2*time.Second, 5*time.Millisecond)

	// Simulate a network blip by tearing the connection down under the
	// client.
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	conn.Close()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.reconnecting
	}, 2*time.Second, 5*time.Millisecond)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return tr.dials.Load() == 2 },
		2*time.Second, 5*time.Millisecond)
	// The re-sent join reassociates the user: still present on the host.
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.conn != nil && !c.reconnecting
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, rep.Room().HasUser("u1"))
}

func TestReconnectBoundIsTerminal(t *testing.T) {
	n := memnet.NewNetwork()
	id, err := transport.RoomIdentity(roomName)
	require.NoError(t, err)
	lis, err := n.Listen(id)
	require.NoError(t, err)

	rep := host.New(host.Options{Host: domain.User{ID: "host", Name: "host"}})
	go rep.Serve(lis)

	tr := &countingTransport{inner: n}
	rec := &recorder{}
	clock := sched.NewFakeClock()
	c := newClient(tr, clock, rec)
	require.NoError(t, c.Connect(roomName))
	require.Eventually(t, func() bool { return c.Replica().HasUser("u1") },
		2*time.Second, 5*time.Millisecond)

	// Host vanishes for good: every retry hits ErrPeerUnreachable.
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	lis.Close()
	conn.Close()

	for i := 0; i < 3; i++ {
		require.Eventually(t, func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.reconnecting
		}, 2*time.Second, 5*time.Millisecond)
		want := int32(2 + i)
		clock.Advance(time.Second)
		require.Eventually(t, func() bool { return tr.dials.Load() == want },
			2*time.Second, 5*time.Millisecond)
	}

	require.Eventually(t, func() bool { return rec.gone.Load() },
		2*time.Second, 5*time.Millisecond)
	assert.Empty(t, c.Replica().Users, "replica resets to idle")

	// Terminal means terminal: the clock moving on schedules nothing.
	clock.Advance(time.Minute)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(4), tr.dials.Load())
}

func TestLeaveCancelsReconnectLoop(t *testing.T) {
	n := memnet.NewNetwork()
	startHost(t, n)
	tr := &countingTransport{inner: n}
	rec := &recorder{}
	clock := sched.NewFakeClock()
	c := newClient(tr, clock, rec)
	require.NoError(t, c.Connect(roomName))

	require.Eventually(t, func() bool { return c.Replica().HasUser("u1") },
		2*time.Second, 5*time.Millisecond)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	conn.Close()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.reconnecting
	}, 2*time.Second, 5*time.Millisecond)

	c.Leave()
	clock.Advance(time.Minute)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), tr.dials.Load(), "left room, loop died at its tick")
	assert.False(t, rec.gone.Load())
}
