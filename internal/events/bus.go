// Package events provides the typed publish/subscribe channel the
// coordinator uses for cross-component signaling. It replaces ambient
// broadcast events with explicit subscriptions: dispatch is synchronous on
// the publishing goroutine, so ordering matches emission order.
package events

import (
	"sync"
	"time"

	"github.com/marketloop/videofeed/internal/scroll"
)

// Type identifies an event on the bus.
type Type string

const (
	TypeVideoPlay   Type = "video_play"
	TypeVideoPause  Type = "video_pause"
	TypeVideoView   Type = "video_view"
	TypeVideoError  Type = "video_error"
	TypeScrollState Type = "scroll_state"
	TypeSettings    Type = "settings_updated"
)

// Event is a single coordinator notification.
type Event struct {
	Type      Type
	SurfaceID string

	// ViewTime is set for TypeVideoView.
	ViewTime time.Duration

	// Err is set for TypeVideoError.
	Err error

	// Scroll is set for TypeScrollState.
	Scroll scroll.State

	At time.Time
}

// Handler consumes events of a subscribed type. Handlers run on the
// coordinator goroutine; anything slow belongs on the handler's own
// goroutine.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus is an in-process typed pub/sub channel.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Type][]subscription
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[Type][]subscription)}
}

// Subscribe registers a handler for one event type and returns an
// idempotent cancel.
func (b *Bus) Subscribe(t Type, fn Handler) (cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[t]
			for i, sub := range list {
				if sub.id == id {
					b.subs[t] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers the event to all subscribers of its type, in
// subscription order.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	list := b.subs[ev.Type]
	handlers := make([]Handler, len(list))
	for i, sub := range list {
		handlers[i] = sub.fn
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
