// Package realtime turns store changes into per-user snapshot streams.
//
// Writers signal a Hub after every committed change. Listeners subscribe to
// the hub for one user and re-read the store on each signal, so every
// delivery is a complete snapshot rather than a diff.
package realtime

import (
	"context"
	"sync"

	"spendwise/internal/core"
)

// Hub fans change signals out to the subscribers of a user. Signals carry no
// payload and coalesce: a subscriber that is behind sees one pending signal.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe returns a signal channel for userID and a function that releases it.
// The release function is safe to call more than once.
func (h *Hub) Subscribe(userID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
		})
	}
}

// Publish marks userID as changed. It never blocks.
func (h *Hub) Publish(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Notify lets the hub stand in wherever an event sink is expected.
func (h *Hub) Notify(_ context.Context, ev core.ExpenseEvent) error {
	h.Publish(ev.UserID)
	return nil
}

// Subscribers reports how many listeners are attached for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}
