// Package dispatch orders asynchronous fetches so that only the newest
// request may update shared state.
package dispatch

import (
	"context"
	"errors"
	"sync"
)

// ErrStale is returned by Commit when a newer request has started since the
// ticket was issued. The result must be dropped.
var ErrStale = errors.New("dispatch: superseded by a newer request")

// Ticket identifies one request issued by a Guard.
type Ticket uint64

// Guard issues tickets and serialises state updates. The zero value is ready
// to use.
type Guard struct {
	mu     sync.Mutex
	latest Ticket
	cancel context.CancelFunc
}

// Begin issues a new ticket and cancels the context of the previous one. The
// returned context should be used for the request.
func (g *Guard) Begin(ctx context.Context) (Ticket, context.Context) {
	reqCtx, cancel := context.WithCancel(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	g.latest++
	g.cancel = cancel
	return g.latest, reqCtx
}

// Commit runs fn while holding the guard, but only if t is still the latest
// ticket. Commit also releases the request context of t.
func (g *Guard) Commit(t Ticket, fn func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t != g.latest {
		return ErrStale
	}
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	fn()
	return nil
}

// Do runs fn under the guard without a ticket check. It is for synchronous
// state changes that must not interleave with a Commit.
func (g *Guard) Do(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}

// Invalidate makes every outstanding ticket stale and cancels its request.
func (g *Guard) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.latest++
}

// Latest reports whether t is the newest ticket.
func (g *Guard) Latest(t Ticket) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return t == g.latest
}

// Notifier fans state snapshots out to subscribers. The zero value is ready
// to use.
type Notifier[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(T))
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Notify calls every subscriber with v. Subscribers run synchronously on the
// caller's goroutine, in no particular order.
func (n *Notifier[T]) Notify(v T) {
	n.mu.Lock()
	fns := make([]func(T), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
