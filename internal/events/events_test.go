package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus(t *testing.T) {
	bus := NewBus(nil)

	var callCount int
	unsubscribe := bus.Subscribe(func() { callCount++ })

	bus.Notify()
	bus.Notify()
	if callCount != 2 {
		t.Errorf("expected 2 calls, got %d", callCount)
	}

	unsubscribe()
	bus.Notify()
	if callCount != 2 {
		t.Errorf("expected no calls after unsubscribe, got %d", callCount)
	}
}

func TestBusRegistrationOrder(t *testing.T) {
	bus := NewBus(nil)
	var order []int

	bus.Subscribe(func() { order = append(order, 1) })
	bus.Subscribe(func() { order = append(order, 2) })
	bus.Subscribe(func() { order = append(order, 3) })

	bus.Notify()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestBusPanickingSubscriber(t *testing.T) {
	bus := NewBus(nil)
	var first, last int

	bus.Subscribe(func() { first++ })
	bus.Subscribe(func() { panic("boom") })
	bus.Subscribe(func() { last++ })

	assert.NotPanics(t, bus.Notify)
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, last)
}

func TestBusUnsubscribeTwice(t *testing.T) {
	bus := NewBus(nil)
	var a, b int

	unsubA := bus.Subscribe(func() { a++ })
	bus.Subscribe(func() { b++ })

	unsubA()
	unsubA()
	assert.Equal(t, 1, bus.Len())

	bus.Notify()
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
}

func TestBusNoSubscribers(t *testing.T) {
	bus := NewBus(nil)
	// Should not panic
	bus.Notify()
	bus.Subscribe(nil)()
	assert.Equal(t, 0, bus.Len())
}

func TestBusUnsubscribeDuringNotify(t *testing.T) {
	bus := NewBus(nil)
	var calls int
	var unsub func()
	unsub = bus.Subscribe(func() {
		calls++
		unsub()
	})

	bus.Notify()
	bus.Notify()
	assert.Equal(t, 1, calls)
}

func TestBusConcurrentSubscribe(t *testing.T) {
	bus := NewBus(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(func() {})
			bus.Notify()
			unsub()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.Len())
}
