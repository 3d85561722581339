package client

import (
	"encoding/json"
	"sync"

	"studychat/internal/pkg/chat/application/dispatch"
)

// Handler receives the raw data payload of one server frame.
type Handler func(data json.RawMessage)

// events fans incoming frames out to subscribers by event name. Handlers
// run on the read-loop goroutine, so they must not block.
type events struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newEvents() *events {
	return &events{handlers: make(map[string][]Handler)}
}

func (e *events) on(eventType string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[eventType] = append(e.handlers[eventType], h)
}

func (e *events) emit(frame dispatch.Frame) {
	e.mu.RLock()
	hs := e.handlers[frame.Type]
	e.mu.RUnlock()
	for _, h := range hs {
		h(frame.Data)
	}
}
