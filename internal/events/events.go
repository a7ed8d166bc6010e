package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Bus is a payload-free change signal. Subscribers re-query queue state
// when called instead of receiving it.
type Bus struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers []subscriber
	logger      *zerolog.Logger
}

type subscriber struct {
	id       uint64
	callback func()
}

// NewBus constructs an empty bus.
func NewBus(logger *zerolog.Logger) *Bus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bus{logger: logger}
}

// Subscribe registers callback and returns a function that removes it.
// The returned function may be called more than once.
func (b *Bus) Subscribe(callback func()) func() {
	if callback == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers = append(b.subscribers, subscriber{id: id, callback: callback})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Notify calls every subscriber synchronously in registration order.
func (b *Bus) Notify() {
	b.mu.RLock()
	subs := append([]subscriber(nil), b.subscribers...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.call(s)
	}
}

func (b *Bus) call(s subscriber) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Uint64("subscriber", s.id).Msg("queue subscriber panicked")
		}
	}()
	s.callback()
}

// Len returns the number of registered subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
