package ws

import (
	"sync"

	"dispatch-realtime/internal/models"

	"go.uber.org/zap"
)

// Handler receives a parsed event. Handlers run on the connection's read
// goroutine and must not block.
type Handler func(ev models.NotificationEvent)

// Subscription identifies one On registration.
type Subscription struct {
	event string
	id    uint64
}

func (s Subscription) Event() string { return s.event }

type entry struct {
	id      uint64
	handler Handler
}

// registry keeps handlers by event name. It outlives any single socket, which
// is what lets subscriptions made before the first connect, or during a
// reconnect, keep receiving events.
type registry struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[string][]entry
	logger   *zap.Logger
}

func newRegistry(logger *zap.Logger) *registry {
	return &registry{
		handlers: make(map[string][]entry),
		logger:   logger,
	}
}

func (r *registry) add(event string, h Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.handlers[event] = append(r.handlers[event], entry{id: r.next, handler: h})
	r.logger.Debug("[HUB] Handler registered", zap.String("event", event), zap.Int("handlers", len(r.handlers[event])))
	return Subscription{event: event, id: r.next}
}

func (r *registry) remove(sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.handlers[sub.event]
	for i, e := range entries {
		if e.id != sub.id {
			continue
		}
		entries = append(entries[:i:i], entries[i+1:]...)
		if len(entries) == 0 {
			delete(r.handlers, sub.event)
		} else {
			r.handlers[sub.event] = entries
		}
		r.logger.Debug("[HUB] Handler removed", zap.String("event", sub.event))
		return true
	}
	return false
}

func (r *registry) count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}

func (r *registry) dispatch(ev models.NotificationEvent) {
	r.mu.RLock()
	entries := r.handlers[ev.EventName()]
	handlers := make([]Handler, len(entries))
	for i, e := range entries {
		handlers[i] = e.handler
	}
	r.mu.RUnlock()

	if len(handlers) == 0 {
		r.logger.Debug("[HUB] No handlers for event", zap.String("event", ev.EventName()))
		return
	}
	for _, h := range handlers {
		r.call(ev, h)
	}
}

func (r *registry) call(ev models.NotificationEvent, h Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("[HUB] Handler panicked", zap.String("event", ev.EventName()), zap.Any("panic", rec))
		}
	}()
	h(ev)
}
