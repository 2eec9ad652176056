package sched

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerFires(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	fired := make(chan struct{})
	s.Schedule("k", 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	assert.False(t, s.Cancel("k"), "fired entry is gone")
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var fired atomic.Bool
	s.Schedule("k", 50*time.Millisecond, func() { fired.Store(true) })
	require.True(t, s.Cancel("k"))

	time.Sleep(150 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestSchedulerRestartReplacesPending(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var first, second atomic.Bool
	s.Schedule("k", time.Hour, func() { first.Store(true) })
	s.Schedule("k", 10*time.Millisecond, func() { second.Store(true) })

	assert.Eventually(t, second.Load, 2*time.Second, 5*time.Millisecond)
	assert.False(t, first.Load(), "rescheduling replaced the old callback")
}

func TestFakeScheduler(t *testing.T) {
	s := NewFakeScheduler()

	var fired atomic.Int32
	s.Schedule("a", time.Minute, func() { fired.Add(1) })
	s.Schedule("b", time.Minute, func() { fired.Add(1) })

	assert.True(t, s.Pending("a"))
	require.True(t, s.Cancel("a"))
	assert.False(t, s.Fire("a"), "cancelled key no longer fires")

	require.True(t, s.Fire("b"))
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, s.Pending("b"))
}

func TestFakeClockAdvance(t *testing.T) {
	c := NewFakeClock()
	ch := c.After(10 * time.Second)

	select {
	case <-ch:
		t.Fatal("fired before advance")
	default:
	}

	c.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("did not fire at deadline")
	}
}
