// Package event fans notifications out to subscribers without a global bus.
// Each component that owns a source of events owns its Emitter.
package event

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler receives one published value.
type Handler[T any] func(T)

// Emitter delivers every published value to all current subscribers,
// synchronously and in subscription order.
type Emitter[T any] struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]Handler[T]
	order       []int
	logger      logrus.FieldLogger
}

// NewEmitter creates an Emitter. Panics raised by handlers are recovered
// and logged on logger.
func NewEmitter[T any](logger logrus.FieldLogger) *Emitter[T] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Emitter[T]{
		subscribers: make(map[int]Handler[T]),
		logger:      logger,
	}
}

// Subscribe registers handler and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (em *Emitter[T]) Subscribe(handler Handler[T]) (unsubscribe func()) {
	em.mu.Lock()
	defer em.mu.Unlock()
	id := em.nextID
	em.nextID++
	em.subscribers[id] = handler
	em.order = append(em.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { em.remove(id) })
	}
}

func (em *Emitter[T]) remove(id int) {
	em.mu.Lock()
	defer em.mu.Unlock()
	delete(em.subscribers, id)
	for i, v := range em.order {
		if v == id {
			em.order = append(em.order[:i], em.order[i+1:]...)
			break
		}
	}
}

// Publish calls every subscriber with value. Handlers may subscribe or
// unsubscribe while being called; such changes apply to the next Publish.
func (em *Emitter[T]) Publish(value T) {
	em.mu.RLock()
	handlers := make([]Handler[T], 0, len(em.order))
	for _, id := range em.order {
		handlers = append(handlers, em.subscribers[id])
	}
	em.mu.RUnlock()

	for _, h := range handlers {
		em.call(h, value)
	}
}

func (em *Emitter[T]) call(h Handler[T], value T) {
	defer func() {
		if r := recover(); r != nil { // Avoid listener panics
			em.logger.WithField("action", "event_publish").Errorf("panic in event handler: %v", r)
		}
	}()
	h(value)
}

// Len returns the number of current subscribers.
func (em *Emitter[T]) Len() int {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return len(em.subscribers)
}

// Clear removes all subscribers.
func (em *Emitter[T]) Clear() {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.subscribers = make(map[int]Handler[T])
	em.order = nil
}
