package events

// Event type constants for kelindar/event.
const (
	TypeSwitch uint32 = iota + 1
	TypeBrightnessSample
	TypeFrameDrop
	TypeHandoffTimeout
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SwitchEvent is published after the hardware switches to a new camera.
type SwitchEvent struct {
	From      string `json:"from" example:"day" doc:"Camera that was active"`
	To        string `json:"to" example:"night" doc:"Camera that is now active"`
	Reason    string `json:"reason" example:"auto-night" doc:"Why the switch happened"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Switch timestamp"`
}

// Type returns the event type identifier for SwitchEvent.
func (e SwitchEvent) Type() uint32 { return TypeSwitch }

// BrightnessSampleEvent carries one recorded brightness measurement.
type BrightnessSampleEvent struct {
	Camera    string  `json:"camera" example:"day" doc:"Camera the sample came from"`
	Avg       float64 `json:"avg" example:"42.5" doc:"Mean luma on the 0-255 scale"`
	Lux       uint32  `json:"lux" example:"120" doc:"Ambient illuminance estimate"`
	Zone      string  `json:"zone" example:"dim" doc:"Classified brightness zone"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Sample timestamp"`
}

// Type returns the event type identifier for BrightnessSampleEvent.
func (e BrightnessSampleEvent) Type() uint32 { return TypeBrightnessSample }

// FrameDropEvent is published when a frame is discarded before reaching its
// channel: encoder queue full, payload too large, or warmup discard.
type FrameDropEvent struct {
	Channel   string `json:"channel" example:"camnode.stream" doc:"Destination channel"`
	Cause     string `json:"cause" example:"queue_full" doc:"Drop cause"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Drop timestamp"`
}

// Type returns the event type identifier for FrameDropEvent.
func (e FrameDropEvent) Type() uint32 { return TypeFrameDrop }

// HandoffTimeoutEvent is published when the zero-copy consumer failed to
// acknowledge a frame in time and the producer dropped the next one.
type HandoffTimeoutEvent struct {
	Channel   string `json:"channel" example:"camnode.zerocopy-day" doc:"Handoff channel"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Timeout timestamp"`
}

// Type returns the event type identifier for HandoffTimeoutEvent.
func (e HandoffTimeoutEvent) Type() uint32 { return TypeHandoffTimeout }

// LogEntryEvent carries one log line to SSE subscribers.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-27T10:30:00.123456789Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"switcher" doc:"Module that emitted the entry"`
	Message    string         `json:"message" example:"active camera changed" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
