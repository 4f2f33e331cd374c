package stream

import (
	"encoding/json"
	"strings"
)

// Classified is the result of routing one output line.
// Exactly one of Payload (structured) or Text (unstructured) is meaningful.
type Classified struct {
	Structured bool
	Payload    map[string]any // decoded JSON object, opaque to the engine
	Text       string         // the original line when not structured
}

// Classify attempts a JSON object decode of the trimmed line.
//
// The agent CLI's output schema is not contractually fixed, so structured
// payloads are decoded loosely into a map and passed through opaquely; the
// engine only pulls out the continuation identifier (see SessionID). Any
// line that fails to decode is unstructured text; there is no error path
// for unexpected output shape.
func Classify(line string) Classified {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Classified{Text: line}
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return Classified{Text: line}
	}

	return Classified{Structured: true, Payload: payload}
}

// SessionID extracts the session continuation identifier from a structured
// payload. Returns empty when the field is absent or not a string.
func SessionID(payload map[string]any) string {
	id, _ := payload["session_id"].(string)
	return id
}

// EventType extracts the "type" field from a structured payload for logging.
func EventType(payload map[string]any) string {
	t, _ := payload["type"].(string)
	return t
}
