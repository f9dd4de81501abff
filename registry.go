package parley

import (
	"encoding/json"
	"sync"
)

// Handler consumes decoded frame bodies delivered on a topic.
//
// Handler values are used as set members, so implementations must be
// comparable — register pointer receivers, not func values.
type Handler interface {
	HandleFrame(topic string, body json.RawMessage)
}

// Registry maps topics to sets of handlers. Registration is independent of
// connection state: handlers stay latent until matching frames arrive and
// survive reconnects untouched.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]map[Handler]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]map[Handler]struct{})}
}

// Register adds h to the handler set for topic. Adding the same handler
// twice is a no-op.
func (r *Registry) Register(topic string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.handlers[topic]
	if set == nil {
		set = make(map[Handler]struct{})
		r.handlers[topic] = set
	}
	set[h] = struct{}{}
}

// Unregister removes h from the handler set for topic. Idempotent.
func (r *Registry) Unregister(topic string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.handlers[topic]
	if set == nil {
		return
	}
	delete(set, h)
	if len(set) == 0 {
		delete(r.handlers, topic)
	}
}

// Dispatch calls every handler registered for exactly topic. No wildcard
// matching; a frame with no handlers is silently dropped.
func (r *Registry) Dispatch(topic string, body json.RawMessage) {
	r.mu.RLock()
	set := r.handlers[topic]
	handlers := make([]Handler, 0, len(set))
	for h := range set {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		h.HandleFrame(topic, body)
	}
}

// HandlerCount reports how many handlers are registered for topic.
func (r *Registry) HandlerCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[topic])
}
