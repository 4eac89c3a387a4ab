// Package observe provides a small state holder with change subscriptions.
package observe

import (
	"sync"
)

// Value holds one value of type T and notifies subscribers on Set
type Value[T any] struct {
	mu     sync.RWMutex
	v      T
	nextID int
	subs   map[int]func(T)
}

// NewValue creates a Value holding initial
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial, subs: make(map[int]func(T))}
}

// Get returns the current value
func (o *Value[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.v
}

// Set stores v and calls every subscriber with it.
// Subscribers run on the caller's goroutine, outside the lock.
func (o *Value[T]) Set(v T) {
	o.mu.Lock()
	o.v = v
	fns := make([]func(T), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Subscribe registers fn and returns a function that removes it
func (o *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

// Watch returns a channel receiving every new value. Slow readers miss
// intermediate values rather than blocking Set; the latest value always
// wins. Call cancel to stop delivery.
func (o *Value[T]) Watch() (ch <-chan T, cancel func()) {
	out := make(chan T, 1)
	unsub := o.Subscribe(func(v T) {
		for {
			select {
			case out <- v:
				return
			default:
			}
			// drop the stale value and retry with the newer one
			select {
			case <-out:
			default:
			}
		}
	})
	return out, unsub
}
