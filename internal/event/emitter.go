// Package event delivers change notifications to in-process subscribers.
package event

import (
	"context"
	"sync"

	"github.com/boddenberg/finance-core/internal/domain"
	"go.uber.org/zap"
)

// Handler receives an emitted event. It runs on the emitting goroutine.
type Handler func(ctx context.Context, e domain.Event)

// Counter records emitted events; *observability.Metrics satisfies it.
type Counter interface {
	IncrEvent(event string)
}

// Emitter is a typed, synchronous event bus. Each component owns its own
// emitter so subscribers only see the events of the component they asked for.
type Emitter struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[domain.EventName]map[int]Handler
	metrics  Counter
	logger   *zap.Logger
}

// NewEmitter creates an emitter. metrics may be nil.
func NewEmitter(metrics Counter, logger *zap.Logger) *Emitter {
	return &Emitter{
		handlers: make(map[domain.EventName]map[int]Handler),
		metrics:  metrics,
		logger:   logger,
	}
}

// Subscribe registers h for name and returns a func that removes it.
func (e *Emitter) Subscribe(name domain.EventName, h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	if e.handlers[name] == nil {
		e.handlers[name] = make(map[int]Handler)
	}
	e.handlers[name][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.handlers[name], id)
			if len(e.handlers[name]) == 0 {
				delete(e.handlers, name)
			}
		})
	}
}

// SubscribeAll registers h for every known event name.
func (e *Emitter) SubscribeAll(h Handler) func() {
	names := []domain.EventName{
		domain.EventMerchantsChanged,
		domain.EventTransactionAdded,
		domain.EventTransactionUpdated,
		domain.EventTransactionDeleted,
		domain.EventCategoriesChanged,
	}
	unsubs := make([]func(), 0, len(names))
	for _, n := range names {
		unsubs = append(unsubs, e.Subscribe(n, h))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Emit delivers ev to every subscriber of ev.Name. A panicking handler is
// logged and does not stop delivery to the others.
func (e *Emitter) Emit(ctx context.Context, ev domain.Event) {
	e.mu.RLock()
	subs := make([]Handler, 0, len(e.handlers[ev.Name]))
	for _, h := range e.handlers[ev.Name] {
		subs = append(subs, h)
	}
	e.mu.RUnlock()

	if e.metrics != nil {
		e.metrics.IncrEvent(string(ev.Name))
	}

	for _, h := range subs {
		e.deliver(ctx, h, ev)
	}
}

func (e *Emitter) deliver(ctx context.Context, h Handler, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				zap.String("event", string(ev.Name)),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, ev)
}

// Subscribers returns the number of handlers registered for name.
func (e *Emitter) Subscribers(name domain.EventName) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[name])
}
