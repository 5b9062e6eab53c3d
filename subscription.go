package daoware

import (
	"sync"
	"sync/atomic"
)

// Subscription is the cancellation handle for one in-flight async
// operation. Cancelling suppresses delivery of the completion callback;
// background work that already started still runs to completion.
type Subscription struct {
	canceled atomic.Bool
	group    *subscriptionGroup
}

// Cancel marks the subscription so its callback will not be delivered.
// Safe to call from any goroutine, any number of times.
func (s *Subscription) Cancel() { s.canceled.Store(true) }

// Canceled reports whether delivery has been suppressed.
func (s *Subscription) Canceled() bool { return s.canceled.Load() }

// settle drops the handle from its group once delivery happened (or the
// operation was dropped), keeping long-lived groups bounded.
func (s *Subscription) settle() {
	if s.group != nil {
		s.group.remove(s)
	}
}

// subscriptionGroup is the owned collection of handles for in-flight async
// work, scoped between Subscribe and Unsubscribe.
type subscriptionGroup struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newSubscriptionGroup() *subscriptionGroup {
	return &subscriptionGroup{subs: make(map[*Subscription]struct{})}
}

func (g *subscriptionGroup) add(s *Subscription) {
	g.mu.Lock()
	g.subs[s] = struct{}{}
	g.mu.Unlock()
}

func (g *subscriptionGroup) remove(s *Subscription) {
	g.mu.Lock()
	delete(g.subs, s)
	g.mu.Unlock()
}

// cancelAll cancels every registered handle and empties the group.
func (g *subscriptionGroup) cancelAll() {
	g.mu.Lock()
	for s := range g.subs {
		s.canceled.Store(true)
	}
	g.subs = make(map[*Subscription]struct{})
	g.mu.Unlock()
}
