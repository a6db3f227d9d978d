package auth

import "sync"

// Broadcast is a minimal observer hub used for cross-cutting session
// signals (session-expired). The core emits through it and interested
// parties subscribe with plain callbacks, so nothing here depends on a
// UI framework.
type Broadcast struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

// NewBroadcast creates an empty broadcast hub.
func NewBroadcast() *Broadcast {
	return &Broadcast{subs: make(map[int]func())}
}

// Subscribe registers a callback and returns a cancel function.
// Cancelling twice is harmless.
func (b *Broadcast) Subscribe(fn func()) (cancel func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Emit invokes every subscribed callback. Callbacks run outside the
// hub's lock so they may subscribe or cancel freely.
func (b *Broadcast) Emit() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
