package agent

import "github.com/tidegui/tide-core/prompt"

// EventKind discriminates StreamEvent variants.
type EventKind string

const (
	// EventStructured is a decoded JSON event from the agent CLI's
	// stream output, passed through opaquely.
	EventStructured EventKind = "structured"
	// EventRaw is output text that failed JSON decode and was not
	// recognized as an interactive prompt.
	EventRaw EventKind = "raw"
	// EventPrompt is a detected interactive prompt awaiting a response.
	EventPrompt EventKind = "prompt"
	// EventError is a spawn or transport failure.
	EventError EventKind = "error"
	// EventDone is the terminal event for a send; exactly one is emitted.
	EventDone EventKind = "done"
)

// StreamEvent is the unit emitted upward from a Session. Within one
// session, events preserve the order of the underlying output lines; a
// done event is always last.
type StreamEvent struct {
	ConversationID string    `json:"conversationId"`
	Kind           EventKind `json:"kind"`

	// Payload is set for structured events.
	Payload map[string]any `json:"payload,omitempty"`
	// Text is set for raw events.
	Text string `json:"text,omitempty"`
	// Prompt is set for prompt events.
	Prompt *prompt.Prompt `json:"prompt,omitempty"`
	// Err is set for error events.
	Err string `json:"error,omitempty"`

	// ExitCode and ExternalSessionID are set for done events.
	ExitCode          int    `json:"exitCode,omitempty"`
	ExternalSessionID string `json:"externalSessionId,omitempty"`
}

// EventSink receives a session's events in emission order.
// Sinks are invoked from the session's internal goroutines and must not
// block for long; a blocking sink delays that session's output handling.
type EventSink func(ev StreamEvent)
