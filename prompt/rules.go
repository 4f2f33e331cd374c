package prompt

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleSet is the on-disk shape of a prompt detection rule file. The exact
// pattern set is overfit to observed output of specific agent CLI versions,
// so it ships as replaceable data rather than a frozen contract.
//
// Example:
//
//	version: 1
//	min_length: 4
//	rules:
//	  - use: permission
//	  - use: choice
//	  - use: yesno
//	  - use: input
//	  - match: '(?i)press enter to continue'
//	    type: yesno
//	    message: Continue?
type RuleSet struct {
	Version   int    `yaml:"version"`
	MinLength int    `yaml:"min_length,omitempty"`
	Rules     []Rule `yaml:"rules"`
}

// Rule is one entry in the cascade. Either Use names a built-in matcher,
// or Match supplies a custom regex with the prompt it should produce.
type Rule struct {
	// Use references a built-in matcher: permission, choice, yesno, input.
	Use string `yaml:"use,omitempty"`

	// Match is a custom trigger regex, tried against the cleaned text.
	// The first capture group, when present, becomes the message.
	Match   string       `yaml:"match,omitempty"`
	Type    Type         `yaml:"type,omitempty"`
	Message string       `yaml:"message,omitempty"`
	Options []RuleOption `yaml:"options,omitempty"`
}

// RuleOption is a configured answer for a custom rule.
type RuleOption struct {
	Label string `yaml:"label"`
	Value string `yaml:"value"`
	Key   string `yaml:"key,omitempty"`
}

// builtinMatchers maps rule names to the built-in cascade entries.
var builtinMatchers = map[string]matcher{
	"permission": matchPermission,
	"choice":     matchChoice,
	"yesno":      matchYesNo,
	"input":      matchInput,
}

// DefaultRuleSet returns the built-in cascade in rule-file form, suitable
// for writing out as a starting point for customization.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Version:   1,
		MinLength: MinTextLength,
		Rules: []Rule{
			{Use: "permission"},
			{Use: "choice"},
			{Use: "yesno"},
			{Use: "input"},
		},
	}
}

// LoadRules parses a YAML rule file.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	if len(rs.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s contains no rules", path)
	}

	// Validate eagerly so a broken file is rejected before installation.
	if _, err := rs.compile(); err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
	}

	return &rs, nil
}

// compile turns the rule set into an ordered matcher cascade.
func (rs *RuleSet) compile() (*compiledRules, error) {
	minLength := rs.MinLength
	if minLength <= 0 {
		minLength = MinTextLength
	}

	var matchers []matcher
	for i, rule := range rs.Rules {
		switch {
		case rule.Use != "":
			m, ok := builtinMatchers[strings.ToLower(rule.Use)]
			if !ok {
				return nil, fmt.Errorf("rule %d: unknown built-in matcher %q", i, rule.Use)
			}
			matchers = append(matchers, m)

		case rule.Match != "":
			m, err := compileCustomRule(rule)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			matchers = append(matchers, m)

		default:
			return nil, fmt.Errorf("rule %d: needs either 'use' or 'match'", i)
		}
	}

	if len(matchers) == 0 {
		return nil, fmt.Errorf("no matchers compiled")
	}

	return &compiledRules{minLength: minLength, matchers: matchers}, nil
}

// compileCustomRule builds a matcher from a custom regex rule.
func compileCustomRule(rule Rule) (matcher, error) {
	re, err := regexp.Compile(rule.Match)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", rule.Match, err)
	}

	promptType := rule.Type
	if promptType == "" {
		promptType = TypeYesNo
	}
	switch promptType {
	case TypePermission, TypeYesNo, TypeChoice, TypeInput:
	default:
		return nil, fmt.Errorf("unknown prompt type %q", promptType)
	}

	options := make([]Option, 0, len(rule.Options))
	for _, o := range rule.Options {
		if o.Value == "" {
			return nil, fmt.Errorf("option %q has no value", o.Label)
		}
		options = append(options, Option{Label: o.Label, Value: o.Value, Key: o.Key})
	}
	// Options must be non-empty for everything except free-text input.
	if len(options) == 0 && promptType != TypeInput {
		options = []Option{
			{Label: "Yes", Value: "y", Key: "y"},
			{Label: "No", Value: "n", Key: "n"},
		}
	}

	return func(text string) (*Prompt, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return nil, false
		}

		message := rule.Message
		if message == "" && len(m) > 1 && m[1] != "" {
			message = m[1]
		}
		if message == "" {
			message = strings.TrimSpace(text)
		}

		return &Prompt{Type: promptType, Message: message, Options: options}, true
	}, nil
}

// SaveDefaultRules writes the built-in cascade to path in rule-file form,
// creating a template users can edit. Existing files are left untouched.
func SaveDefaultRules(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	data, err := yaml.Marshal(DefaultRuleSet())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
