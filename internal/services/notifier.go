// Package services holds the reactive stores the UI observes: list and
// detail read models over the sync engine, optimistic favorite and ticket
// mutation, organizer CRUD, and the session boundary. Stores publish change
// notifications; snapshot accessors always return copies.
package services

import "sync"

// notifier is the change-notification half embedded in every store.
// Subscribers run outside store locks, after the change is committed, and
// must be quick.
type notifier struct {
	mu     sync.Mutex
	subs   map[int]func()
	nextID int
}

// Subscribe registers fn and returns its unsubscribe func.
func (n *notifier) Subscribe(fn func()) func() {
	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[int]func())
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

func (n *notifier) notify() {
	n.mu.Lock()
	subs := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}
