package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(SwitchEvent{...})
func (b *Bus) Publish(ev Event) {
	// Use type switch to call the generic Publish with the correct type
	switch e := ev.(type) {
	case SwitchEvent:
		event.Publish(b.dispatcher, e)
	case BrightnessSampleEvent:
		event.Publish(b.dispatcher, e)
	case FrameDropEvent:
		event.Publish(b.dispatcher, e)
	case HandoffTimeoutEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives (type inference)
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e SwitchEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(SwitchEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BrightnessSampleEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameDropEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(HandoffTimeoutEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
