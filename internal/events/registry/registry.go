// Package registry provides a lightweight handler registry for storefront events.
// Each handler registers itself via init(), so delivery channels (stream, push,
// event bus) never change when a new event type is added.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"vn.io.arda/storefront-notifier/internal/domain"
)

var (
	// ErrUnknownEvent means no handler is registered for the event name.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMalformed means the handler could not build a record from the payload.
	ErrMalformed = errors.New("malformed event payload")
)

// EventHandler maps an event payload to a notification record.
// Returning nil means the payload is unusable.
type EventHandler func(event string, payload json.RawMessage) *domain.Record

var (
	mu       sync.RWMutex
	handlers = map[string]EventHandler{}
)

// Register binds a handler to an event name.
// Should be called from each handler file's init() function.
// Panics on duplicate registration to catch wiring mistakes early.
func Register(event string, h EventHandler) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := handlers[event]; exists {
		panic("registry: duplicate handler registered for event: " + event)
	}
	handlers[event] = h
}

// Known reports whether a handler exists for event.
func Known(event string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := handlers[event]
	return ok
}

// Dispatch looks up and calls the handler for event.
func Dispatch(event string, payload json.RawMessage) (*domain.Record, error) {
	mu.RLock()
	h, ok := handlers[event]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	rec := h(event, payload)
	if rec == nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, event)
	}
	return rec, nil
}

// Envelope is the wire shape of a pushed message: {"event": "...", "payload": {...}}.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses a message body. When the body carries no event field,
// fallbackEvent (e.g. the SSE event name) is used and the whole body is the payload.
func Decode(body []byte, fallbackEvent string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		env.Event = fallbackEvent
		env.Payload = json.RawMessage(body)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformed)
	}
	return env, nil
}
