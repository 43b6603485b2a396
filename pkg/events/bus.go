package events

import (
	"fmt"
	"sync"

	"github.com/crystal-mush/palsave/pkg/gvas"
)

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// SubscriberFunc adapts a function to a Subscriber that never closes.
type SubscriberFunc func(ev Event)

func (f SubscriberFunc) Receive(ev Event) { f(ev) }
func (f SubscriberFunc) Closed() bool     { return false }

// Bus is a pub/sub event bus with per-owner and global subscribers. The save
// document emits progress and mutation events; the CLI progress printer,
// metrics and the journal consume them.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[gvas.GUID][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[gvas.GUID][]Subscriber),
	}
}

// Subscribe registers a subscriber for events whose Owner is owner.
func (b *Bus) Subscribe(owner gvas.GUID, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[owner] = append(b.subscribers[owner], sub)
}

// Unsubscribe removes a subscriber for a specific owner.
func (b *Bus) Unsubscribe(owner gvas.GUID, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[owner]
	for i, s := range subs {
		if s == sub {
			b.subscribers[owner] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[owner]) == 0 {
		delete(b.subscribers, owner)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the subscribers of ev.Owner and all global subscribers.
// A nil bus discards the event.
func (b *Bus) Emit(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	var subs []Subscriber
	if !ev.Owner.IsZero() {
		subs = b.subscribers[ev.Owner]
	}
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// Progress emits an EvProgress event with formatted text.
func (b *Bus) Progress(format string, args ...any) {
	b.Emit(Event{Type: EvProgress, Text: fmt.Sprintf(format, args...)})
}

// OwnerSubscribers returns the number of subscribers for an owner.
func (b *Bus) OwnerSubscribers(owner gvas.GUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[owner])
}

// Cleanup removes closed subscribers from all lists.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for owner, subs := range b.subscribers {
		var active []Subscriber
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.subscribers, owner)
		} else {
			b.subscribers[owner] = active
		}
	}

	var activeGlobal []Subscriber
	for _, s := range b.global {
		if !s.Closed() {
			activeGlobal = append(activeGlobal, s)
		}
	}
	b.global = activeGlobal
}
