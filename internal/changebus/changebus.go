// Package changebus implements the overlay's in-process change
// notification registry: a mutex-guarded {sessionId -> listener} map with
// synchronous, snapshot-based publication.
//
// Publication happens inside the spatial store's writer critical section
// (per spec.md §5) but must not hold that lock across listener callbacks,
// and a failing listener must not prevent the others from being notified.
// Grounded on the teacher's internal/seen.Cache: a sync.Mutex over a plain
// map, no locks held across the "slow" part of an operation.
package changebus

import (
	"sync"

	"github.com/deuszex/iop-location-based-network/internal/protocol"
)

// Listener is the capability set a change-notification sink implements.
type Listener interface {
	OnRegistered()
	AddedNode(entry protocol.NodeDbEntry)
	UpdatedNode(entry protocol.NodeDbEntry)
	RemovedNode(entry protocol.NodeDbEntry)
}

// Bus is the in-process pub/sub registry of neighbour add/update/remove
// events, keyed by session ID.
type Bus struct {
	mu        sync.Mutex
	listeners map[string]Listener
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{listeners: make(map[string]Listener)}
}

// Register adds listener under sessionID and immediately calls its
// OnRegistered hook.
func (b *Bus) Register(sessionID string, listener Listener) {
	b.mu.Lock()
	b.listeners[sessionID] = listener
	b.mu.Unlock()
	listener.OnRegistered()
}

// Deregister removes the listener registered under sessionID, if any.
func (b *Bus) Deregister(sessionID string) {
	b.mu.Lock()
	delete(b.listeners, sessionID)
	b.mu.Unlock()
}

// Len reports the number of currently registered listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Bus) snapshot() []Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		out = append(out, l)
	}
	return out
}

// PublishAdded notifies every registered listener of a newly stored entry.
func (b *Bus) PublishAdded(entry protocol.NodeDbEntry) {
	for _, l := range b.snapshot() {
		notify(func() { l.AddedNode(entry) })
	}
}

// PublishUpdated notifies every registered listener of a refreshed entry.
func (b *Bus) PublishUpdated(entry protocol.NodeDbEntry) {
	for _, l := range b.snapshot() {
		notify(func() { l.UpdatedNode(entry) })
	}
}

// PublishRemoved notifies every registered listener of a removed entry.
func (b *Bus) PublishRemoved(entry protocol.NodeDbEntry) {
	for _, l := range b.snapshot() {
		notify(func() { l.RemovedNode(entry) })
	}
}

// notify isolates one listener callback: a panicking listener must not
// prevent its siblings from being notified.
func notify(call func()) {
	defer func() { recover() }() //nolint:errcheck
	call()
}
