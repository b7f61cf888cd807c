package documents

import (
	"context"
	"log/slog"
	"sync"
)

// NoopEventHub is a no-operation implementation of EventHub
// Useful for production when you don't need event handling or for testing
type NoopEventHub struct{}

// NewNoopEventHub creates a new no-operation event hub
func NewNoopEventHub() EventHub {
	return &NoopEventHub{}
}

// Emit does nothing and returns nil
func (n *NoopEventHub) Emit(ctx context.Context, event string, payload any) error {
	return nil
}

// LoggingEventHub is an event hub that logs events but takes no other
// action. Useful for development and debugging.
type LoggingEventHub struct {
	logger *slog.Logger
}

// NewLoggingEventHub creates a new logging event hub
func NewLoggingEventHub(logger *slog.Logger) EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventHub{logger: logger}
}

// Emit logs the lifecycle event
func (l *LoggingEventHub) Emit(ctx context.Context, event string, payload any) error {
	if lifecycle, ok := payload.(LifecycleEvent); ok {
		l.logger.Info("lifecycle event",
			"event", event,
			"model", lifecycle.Model,
			"id", lifecycle.Entry.ID())
		return nil
	}
	l.logger.Info("lifecycle event", "event", event)
	return nil
}

// MemoryEventHub records emitted events in memory. Useful for tests and
// for local subscribers that drain events in-process.
type MemoryEventHub struct {
	mu     sync.Mutex
	events []EmittedEvent
}

// EmittedEvent is one recorded emission.
type EmittedEvent struct {
	Event   string
	Payload any
}

// NewMemoryEventHub creates a new recording event hub
func NewMemoryEventHub() *MemoryEventHub {
	return &MemoryEventHub{}
}

// Emit records the event
func (m *MemoryEventHub) Emit(ctx context.Context, event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, EmittedEvent{Event: event, Payload: payload})
	return nil
}

// Events returns a copy of everything recorded so far
func (m *MemoryEventHub) Events() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmittedEvent, len(m.events))
	copy(out, m.events)
	return out
}

// EventsNamed returns the recorded events with the given name
func (m *MemoryEventHub) EventsNamed(event string) []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EmittedEvent
	for _, e := range m.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards everything recorded so far
func (m *MemoryEventHub) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
