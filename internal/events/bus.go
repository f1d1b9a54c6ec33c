package events

import (
	"sync"
	"time"
)

// Signal names an authentication event that any part of the client may raise.
type Signal string

const (
	// Unauthorized is raised by API callers that received an auth failure from the backend.
	Unauthorized Signal = "unauthorized"
	// SessionExpired is raised when the session is known to be dead (idle timeout, remote logout).
	SessionExpired Signal = "sessionExpired"
	// LoggedOut is emitted by the auth provider after every transition to unauthenticated.
	LoggedOut Signal = "loggedOut"
)

// Event carries a signal and where it came from.
type Event struct {
	Signal Signal    `json:"signal"`
	Reason string    `json:"reason,omitempty"`
	Source string    `json:"source,omitempty"`
	At     time.Time `json:"at"`
}

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an explicit publish/subscribe hub for auth signals.
// Handlers run synchronously on the publisher's goroutine, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Signal][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Signal][]subscription)}
}

// Subscribe registers h for sig and returns a function that removes it.
func (b *Bus) Subscribe(sig Signal, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[sig] = append(b.subs[sig], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[sig]
			for i, s := range list {
				if s.id == id {
					b.subs[sig] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers e to every current subscriber of e.Signal.
// Handlers are snapshotted first, so a handler may publish or unsubscribe.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.Signal]))
	for _, s := range b.subs[e.Signal] {
		handlers = append(handlers, s.handler)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Emit is shorthand for publishing a signal with a reason.
func (b *Bus) Emit(sig Signal, source, reason string) {
	b.Publish(Event{Signal: sig, Source: source, Reason: reason})
}
