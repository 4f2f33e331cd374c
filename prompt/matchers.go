package prompt

import (
	"regexp"
	"strings"
)

// matcher inspects cleaned prompt text and returns a Prompt on recognition.
// Matchers are tried in priority order and short-circuit on first match;
// earlier matchers are strictly more specific than later ones.
type matcher func(text string) (*Prompt, bool)

var (
	// Trailing single-letter option group like "(y/n)" or "(y/n/a)".
	trailingLettersRe = regexp.MustCompile(`\(\s*([a-zA-Z](?:\s*/\s*[a-zA-Z])+)\s*\)\s*$`)

	// Request/approve verb that marks a permission prompt.
	permissionVerbRe = regexp.MustCompile(`(?i)\b(allow|approve|permit|grant)\b`)

	// tool(args) shape inside a permission description.
	toolShapeRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\((.*)\)`)

	// One numbered menu line: "1) label" or "1. label".
	choiceLineRe = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.+)$`)

	// Generic trailing yes/no pair, bracketed or parenthesized.
	yesNoSuffixRe = regexp.MustCompile(`(?i)[\[(]\s*y(?:es)?\s*/\s*n(?:o)?\s*[\])]\??\s*$`)

	// Free-text question: "? <question>:".
	inputRe = regexp.MustCompile(`^\?\s+(.+?):\s*$`)
)

// optionLabels maps permission option letters to display labels.
var optionLabels = map[string]string{
	"y": "Yes",
	"n": "No",
	"a": "Always",
}

// matchPermission recognizes tool-permission requests: a request/approve
// verb followed by a description and a trailing single-letter option group,
// e.g. "Allow Bash(rm -rf /tmp/x)? (y/n/a)".
func matchPermission(text string) (*Prompt, bool) {
	suffix := trailingLettersRe.FindStringSubmatchIndex(text)
	if suffix == nil {
		return nil, false
	}

	body := strings.TrimSpace(text[:suffix[0]])
	verb := permissionVerbRe.FindStringIndex(body)
	if verb == nil {
		return nil, false
	}

	letters := text[suffix[2]:suffix[3]]
	options := parseOptionLetters(letters)
	if len(options) == 0 {
		return nil, false
	}

	p := &Prompt{
		Type:    TypePermission,
		Message: strings.TrimRight(body, "? \t"),
		Options: options,
	}

	// Extract tool(args) from the description after the verb, if present.
	desc := body[verb[1]:]
	if m := toolShapeRe.FindStringSubmatch(desc); m != nil {
		p.ToolName = m[1]
		p.ToolInput = m[2]
	}

	return p, true
}

// parseOptionLetters turns "y/n/a" into ordered options. Letters without a
// known label are kept with the letter itself as label, uppercased.
func parseOptionLetters(letters string) []Option {
	var options []Option
	for _, part := range strings.Split(letters, "/") {
		letter := strings.ToLower(strings.TrimSpace(part))
		if letter == "" {
			continue
		}
		label, ok := optionLabels[letter]
		if !ok {
			label = strings.ToUpper(letter)
		}
		options = append(options, Option{Label: label, Value: letter, Key: letter})
	}
	return options
}

// maxTrailingProse is how much text may follow the last numbered line
// before the block stops looking like a menu. Long prose after the list
// suggests the numbers were citations or steps, not choices.
const maxTrailingProse = 60

// matchChoice recognizes numbered menus: two or more "<n>) label" or
// "<n>. label" lines. The text preceding the first numbered line becomes
// the prompt message.
func matchChoice(text string) (*Prompt, bool) {
	lines := strings.Split(text, "\n")

	var options []Option
	firstIdx, lastIdx := -1, -1
	for i, line := range lines {
		m := choiceLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if firstIdx == -1 {
			firstIdx = i
		}
		lastIdx = i
		options = append(options, Option{
			Label: strings.TrimSpace(m[2]),
			Value: m[1],
			Key:   m[1],
		})
	}

	if len(options) < 2 {
		return nil, false
	}

	trailing := strings.TrimSpace(strings.Join(lines[lastIdx+1:], "\n"))
	if len(trailing) > maxTrailingProse {
		return nil, false
	}

	message := strings.TrimSpace(strings.Join(lines[:firstIdx], "\n"))
	if message == "" {
		message = "Choose an option"
	}

	return &Prompt{Type: TypeChoice, Message: message, Options: options}, true
}

// matchYesNo recognizes generic confirmations ending in a bracketed or
// parenthesized y/n pair with no richer structure.
func matchYesNo(text string) (*Prompt, bool) {
	loc := yesNoSuffixRe.FindStringIndex(text)
	if loc == nil {
		return nil, false
	}

	message := strings.TrimSpace(text[:loc[0]])
	if message == "" {
		message = "Confirm?"
	}

	return &Prompt{
		Type:    TypeYesNo,
		Message: message,
		Options: []Option{
			{Label: "Yes", Value: "y", Key: "y"},
			{Label: "No", Value: "n", Key: "n"},
		},
	}, true
}

// matchInput recognizes free-text questions of the shape "? <question>:".
// Multi-line text is rejected: a trailing colon at the end of a paragraph
// is far more often prose than a question.
func matchInput(text string) (*Prompt, bool) {
	if strings.ContainsRune(strings.TrimSpace(text), '\n') {
		return nil, false
	}
	m := inputRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, false
	}

	return &Prompt{Type: TypeInput, Message: strings.TrimSpace(m[1])}, true
}
