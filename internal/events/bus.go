// Package events fans pty session events out to any number of consumers.
package events

import (
	"sync"

	"github.com/peterje/microterm/internal/pty"
)

const subscriberBuffer = 256

// Event is the wire shape of a session event as seen by websocket clients
// and the shepherd's event stream.
type Event struct {
	Name      string `json:"event"`
	SessionID string `json:"sessionId"`
	Data      string `json:"data,omitempty"`
	ExitCode  *int   `json:"exitCode,omitempty"`
}

// IsExit reports whether e is the final event for its session.
func (e Event) IsExit() bool {
	return e.Name == pty.EventExit
}

// Source is anything events can be subscribed to.
type Source interface {
	Subscribe() (<-chan Event, func())
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

// Bus delivers every published event to every current subscriber.
// Publishing blocks while a subscriber's buffer is full, so a slow consumer
// slows the session readers instead of losing output.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a new consumer. The returned function unsubscribes;
// it is safe to call more than once. The channel is never closed.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish delivers ev to every subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// EmitOutput implements pty.Emitter.
func (b *Bus) EmitOutput(ev pty.OutputEvent) {
	b.Publish(Event{Name: pty.EventOutput, SessionID: ev.SessionID, Data: ev.Data})
}

// EmitExit implements pty.Emitter.
func (b *Bus) EmitExit(ev pty.ExitEvent) {
	b.Publish(Event{Name: pty.EventExit, SessionID: ev.SessionID, ExitCode: ev.ExitCode})
}

var (
	_ pty.Emitter = (*Bus)(nil)
	_ Source      = (*Bus)(nil)
)
