package service

import (
	"sync"

	"github.com/eduadmin/portal/internal/ports"
)

var _ ports.ActivitySource = (*ActivityBus)(nil)

// ActivityBus is the in-process ActivitySource. Front ends publish user interaction to it.
type ActivityBus struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(ports.ActivitySignal)
}

// NewActivityBus creates an empty bus.
func NewActivityBus() *ActivityBus {
	return &ActivityBus{subs: make(map[uint64]func(ports.ActivitySignal))}
}

// Subscribe registers fn. The returned func removes it and may be called more than once.
func (b *ActivityBus) Subscribe(fn func(ports.ActivitySignal)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers sig to every subscriber. Handlers run without the bus lock held.
func (b *ActivityBus) Publish(sig ports.ActivitySignal) {
	b.mu.RLock()
	handlers := make([]func(ports.ActivitySignal), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(sig)
	}
}

// Subscribers returns the number of registered handlers.
func (b *ActivityBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
