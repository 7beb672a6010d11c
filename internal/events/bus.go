package events

import (
	"sync"

	"github.com/followbot/gofollow/pkg/logger"
)

// Handler receives every published event. Handlers run inline on the
// publishing goroutine; anything that does I/O should hand the event to its
// own goroutine so the dispatch path never blocks.
type Handler func(Event)

// Bus is a synchronous in-process fan-out. Subscription order is not a
// delivery guarantee and there is no queueing: a published event is handed
// to the handlers registered at that instant.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it. The returned
// function is idempotent.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers e to every current handler. A panicking handler is
// recovered and logged; the remaining handlers still run.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		invoke(h, e)
	}
}

// HandlerCount reports the number of live subscriptions.
func (b *Bus) HandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func invoke(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("event bus: handler panic on %s: %v", e.EventType(), r)
		}
	}()
	h(e)
}
