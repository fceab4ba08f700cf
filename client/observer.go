package client

import (
	"sync"
	"sync/atomic"

	"github.com/sardine-ai/go-remote-flags/model"
)

// Subscription is the handle of a registered snapshot callback.
type Subscription struct {
	registry *registry
	callback func(*model.Snapshot)
	active   atomic.Bool

	mu        sync.Mutex // serializes deliveries to this subscriber
	delivered uint64     // seq of the newest snapshot delivered
}

// Unsubscribe stops further deliveries. It is idempotent and may be called
// from any callback, including the subscription's own.
func (s *Subscription) Unsubscribe() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.registry.remove(s)
}

func (s *Subscription) deliver(entry *published) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active.Load() || (s.delivered != 0 && entry.seq <= s.delivered) {
		return
	}
	s.delivered = entry.seq
	s.callback(entry.snapshot)
}

// registry holds subscriptions in subscription order.
type registry struct {
	mu   sync.Mutex
	subs []*Subscription
}

func (r *registry) add(s *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, s)
}

func (r *registry) remove(s *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sub := range r.subs {
		if sub == s {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

// notify delivers entry to every live subscriber in subscription order. It
// iterates over a copy so callbacks may subscribe or unsubscribe freely.
func (r *registry) notify(entry *published) {
	r.mu.Lock()
	subs := make([]*Subscription, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	for _, s := range subs {
		s.deliver(entry)
	}
}

// Subscribe registers callback and immediately invokes it, on the calling
// goroutine, with the current snapshot. Afterwards callback runs on the
// refresh goroutine once for every changed snapshot, in subscription order.
// A subscriber never receives a snapshot older than one it already received.
func (c *Client) Subscribe(callback func(*model.Snapshot)) *Subscription {
	s := &Subscription{registry: &c.observers, callback: callback}
	s.active.Store(true)
	c.observers.add(s)
	s.deliver(c.current.Load())
	return s
}
