// Package feed provides a minimal multi-consumer broadcast stream with
// replay-latest-on-subscribe semantics. Publishing never blocks: a slow
// consumer drops intermediate values and always observes the latest one.
package feed

import "sync"

type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	latest T
	has    bool
}

func New[T any]() *Feed[T] {
	return &Feed[T]{subs: map[int]chan T{}}
}

// Publish broadcasts v to all subscribers and records it for replay.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = v
	f.has = true
	for _, ch := range f.subs {
		send(ch, v)
	}
}

// Subscribe registers a consumer. The latest published value, if any, is
// delivered immediately. The returned cancel func is idempotent.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	ch := make(chan T, 1)
	f.subs[id] = ch
	if f.has {
		send(ch, f.latest)
	}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
	return ch, cancel
}

// Latest returns the most recently published value.
func (f *Feed[T]) Latest() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.has
}

// Subscribers returns the number of active consumers.
func (f *Feed[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// send delivers latest-wins without blocking: if the consumer has not
// drained the previous value it is replaced.
func send[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
