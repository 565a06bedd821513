package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EventHandler handles a published session event.
type EventHandler func(context.Context, Event) error

// Dispatcher fans session lifecycle events out to subscribers.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe registers handler for the given types, or for every session
	// event type when none are given. It returns the unsubscribe func.
	Subscribe(handler EventHandler, types ...EventType) func()
}

type subscriber struct {
	id      uint64
	handler EventHandler
}

// inMemoryDispatcher delivers synchronously on the publisher's goroutine.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[EventType][]subscriber
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]subscriber),
	}
}

// Publish runs every handler subscribed to the event's type, in subscription
// order. A failing or panicking handler does not stop the others; their errors
// are joined.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	subs := append([]subscriber(nil), d.listeners[event.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := deliver(ctx, sub.handler, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers handler for types, defaulting to AllSessionEvents.
func (d *inMemoryDispatcher) Subscribe(handler EventHandler, types ...EventType) func() {
	if len(types) == 0 {
		types = AllSessionEvents
	}

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	for _, t := range types {
		d.listeners[t] = append(d.listeners[t], subscriber{id: id, handler: handler})
	}
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(id, types) })
	}
}

func (d *inMemoryDispatcher) remove(id uint64, types []EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range types {
		subs := d.listeners[t]
		for i, sub := range subs {
			if sub.id == id {
				d.listeners[t] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

func deliver(ctx context.Context, handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s handler panicked: %v", event.Type, r)
		}
	}()
	return handler(ctx, event)
}
