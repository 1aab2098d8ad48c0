package events

import (
	"context"
	"sync"
	"time"
)

// Event is one domain occurrence published by an upstream HR module. Data is
// a free-form payload; handlers pull the fields they need and tolerate
// missing ones. CorrelationID groups every notification fanned out from the
// same occurrence.
type Event struct {
	Type          string         `json:"type"`
	CorrelationID string         `json:"correlation_id"`
	Source        string         `json:"source"`
	Data          map[string]any `json:"data,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Str extracts a string field from the event payload, "" when absent.
func (e Event) Str(key string) string {
	if e.Data == nil {
		return ""
	}
	if s, ok := e.Data[key].(string); ok {
		return s
	}
	return ""
}

// HandlerFunc reacts to one event, typically by submitting notifications.
type HandlerFunc func(ctx context.Context, evt Event) error

// Registry maps event types to their handlers. Multiple handlers per type
// are supported; registration order is preserved.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
}

// NewRegistry creates an empty event registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]HandlerFunc)}
}

// Register appends a handler for an event type.
func (r *Registry) Register(eventType string, h HandlerFunc) {
	if eventType == "" || h == nil {
		return
	}
	r.mu.Lock()
	r.handlers[eventType] = append(r.handlers[eventType], h)
	r.mu.Unlock()
}

// HandlersFor returns the handlers registered for an event type.
func (r *Registry) HandlersFor(eventType string) []HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hs := r.handlers[eventType]
	out := make([]HandlerFunc, len(hs))
	copy(out, hs)
	return out
}

// Types lists the event types with registered handlers.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
