// Package prompt recognizes interactive prompts embedded in the agent CLI's
// unstructured terminal output.
//
// Detection is heuristic and best-effort against a moving target: the
// wrapped CLI's text formatting changes between versions. The matcher set
// is therefore data, not code: an ordered rule list that can be replaced
// from a YAML file and hot-reloaded (see Rules and Watcher). Missed prompts
// degrade gracefully to raw text; phantom prompts actively block the UI, so
// every matcher is tuned to prefer false negatives.
package prompt

// Type classifies a detected prompt.
type Type string

const (
	// TypePermission is a tool-permission request ("Allow Bash(...)? (y/n/a)").
	TypePermission Type = "permission"
	// TypeYesNo is a generic yes/no confirmation.
	TypeYesNo Type = "yesno"
	// TypeChoice is a numbered menu of options.
	TypeChoice Type = "choice"
	// TypeInput is a free-text question with no fixed options.
	TypeInput Type = "input"
)

// Option is one selectable answer for a detected prompt.
type Option struct {
	Label string `json:"label"`
	// Value is the literal token the agent CLI expects written back
	// (e.g. "y", "n", "1", "2").
	Value string `json:"value"`
	// Key is the single keystroke shortcut, when one exists.
	Key string `json:"key,omitempty"`
}

// Prompt is the classification of an interactive prompt found in raw text.
// Options is empty only for TypeInput.
type Prompt struct {
	Type    Type     `json:"type"`
	Message string   `json:"message"`
	Options []Option `json:"options,omitempty"`

	// ToolName and ToolInput are populated only for TypePermission when a
	// tool(args) shape was present in the request text.
	ToolName  string `json:"toolName,omitempty"`
	ToolInput string `json:"toolInput,omitempty"`
}
