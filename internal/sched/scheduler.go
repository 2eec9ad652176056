package sched

import (
	"sync"
	"time"
)

// Scheduler runs at most one pending callback per key. Scheduling a key
// that is already pending restarts its timer; Cancel reports whether a
// pending entry was dropped before firing.
type Scheduler interface {
	Schedule(key string, d time.Duration, fn func())
	Cancel(key string) bool
	Stop()
}

type timerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewScheduler() Scheduler {
	return &timerScheduler{timers: make(map[string]*time.Timer)}
}

func (s *timerScheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

func (s *timerScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[key]
	if !ok {
		return false
	}
	delete(s.timers, key)
	return t.Stop()
}

func (s *timerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

// FakeScheduler records pending callbacks and fires them only on request.
type FakeScheduler struct {
	mu      sync.Mutex
	pending map[string]func()
}

func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{pending: make(map[string]func())}
}

func (s *FakeScheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = fn
}

func (s *FakeScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	delete(s.pending, key)
	return ok
}

func (s *FakeScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]func())
}

// Fire runs and removes the pending callback for key, if any.
func (s *FakeScheduler) Fire(key string) bool {
	s.mu.Lock()
	fn, ok := s.pending[key]
	delete(s.pending, key)
	s.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

// Pending reports whether a callback is scheduled for key.
func (s *FakeScheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}
