package common

import "sync"

// SubscriptionID identifies a listener registered on an Event.
type SubscriptionID int

type listener[T any] struct {
	id SubscriptionID
	fn func(T)
}

// Event is a synchronous broadcast point. Listeners run on the broadcasting goroutine,
// in registration order. The zero value is ready to use.
type Event[T any] struct {
	mu        sync.Mutex
	nextID    SubscriptionID
	listeners []listener[T]
}

// Subscribe registers a listener.
//
// Parameters:
//   - fn: the function called with every broadcast value
//
// Returns:
//   - SubscriptionID: the id to pass to Unsubscribe
func (e *Event[T]) Subscribe(fn func(T)) SubscriptionID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.listeners = append(e.listeners, listener[T]{id: e.nextID, fn: fn})
	return e.nextID
}

// Unsubscribe removes a listener. Unknown ids are ignored.
func (e *Event[T]) Unsubscribe(id SubscriptionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, l := range e.listeners {
		if l.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Broadcast calls every listener with v. The listener list is snapshotted first, so a
// listener may subscribe or unsubscribe without deadlocking.
func (e *Event[T]) Broadcast(v T) {
	e.mu.Lock()
	snapshot := make([]listener[T], len(e.listeners))
	copy(snapshot, e.listeners)
	e.mu.Unlock()

	for _, l := range snapshot {
		l.fn(v)
	}
}

// Len returns the number of registered listeners.
func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
