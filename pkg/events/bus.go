package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dialwise/dialwise/pkg/logger"
)

// Lifecycle and analytics event types published by the call registry.
const (
	CallStarted       = "call.started"
	CallUpdated       = "call.updated"
	CallEnded         = "call.ended"
	CallInterrupted   = "call.interrupted"
	CallTerminated    = "call.terminated"
	TranscriptUpdated = "transcript.updated"
	SystemHealth      = "system.health"
)

// Event is a single lifecycle or analytics notification.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	SessionID string                 `json:"sessionId,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Handler consumes an event. Errors are logged, never propagated to the
// publisher: a failing subscriber must not fail the triggering write.
type Handler func(event Event) error

// Bus is an in-process publish/subscribe fanout. Dispatch to handlers is
// asynchronous and at-most-once.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

var (
	globalBus *Bus
	busOnce   sync.Once
)

// GetBus returns the process-wide event bus.
func GetBus() *Bus {
	busOnce.Do(func() {
		globalBus = &Bus{handlers: make(map[string][]Handler)}
	})
	return globalBus
}

// Subscribe registers a handler for an event type. "*" matches every type.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish delivers the event to all matching handlers, each on its own
// goroutine. Publish never blocks on a handler and never returns an error.
func (b *Bus) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := append([]Handler{}, b.handlers[event.Type]...)
	handlers = append(handlers, b.handlers["*"]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	for _, h := range handlers {
		go func(h Handler) {
			if err := h(event); err != nil {
				logger.Warn("event handler failed",
					zap.String("eventType", event.Type),
					zap.String("sessionId", event.SessionID),
					zap.Error(err))
			}
		}(h)
	}
}

// Publish sends an event on the global bus.
func Publish(eventType, sessionID string, data map[string]interface{}) {
	GetBus().Publish(Event{Type: eventType, SessionID: sessionID, Data: data})
}
