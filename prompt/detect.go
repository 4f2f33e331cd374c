package prompt

import (
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
)

// MinTextLength rejects inputs too short to be a real prompt; stray bytes
// and spinner frames otherwise trigger false positives.
const MinTextLength = 4

var (
	csiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	oscRe = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)
	escRe = regexp.MustCompile(`\x1b.`)
)

// StripANSI removes terminal escape sequences and control characters,
// keeping newlines and tabs.
func StripANSI(text string) string {
	text = oscRe.ReplaceAllString(text, "")
	text = csiRe.ReplaceAllString(text, "")
	text = escRe.ReplaceAllString(text, "")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)
}

// nearMissRe flags text that looks prompt-shaped but matched no rule.
// These are logged (not silently dropped) to ease future rule tuning.
var nearMissRe = regexp.MustCompile(`(?i)(\(y/|\[y/|\?\s*$|press enter)`)

// compiledRules is an immutable rule-set snapshot. Detector swaps the whole
// snapshot atomically so Detect stays effectively pure per rule version.
type compiledRules struct {
	minLength int
	matchers  []matcher
}

// defaultCompiled returns the built-in cascade, most specific first.
func defaultCompiled() *compiledRules {
	return &compiledRules{
		minLength: MinTextLength,
		matchers:  []matcher{matchPermission, matchChoice, matchYesNo, matchInput},
	}
}

// Detector recognizes interactive prompts in raw terminal text.
// The zero value is not usable; create one with NewDetector.
type Detector struct {
	rules atomic.Pointer[compiledRules]
	log   *slog.Logger
}

// NewDetector creates a detector with the built-in rule cascade.
func NewDetector(log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	d := &Detector{log: log}
	d.rules.Store(defaultCompiled())
	return d
}

// Detect inspects accumulated raw text and classifies any interactive
// prompt found in it. Returns false when the text is ordinary output.
// Deterministic: the same text against the same rule set always yields the
// same result.
func (d *Detector) Detect(text string) (*Prompt, bool) {
	cleaned := strings.TrimSpace(StripANSI(text))
	rs := d.rules.Load()

	if len(cleaned) < rs.minLength {
		return nil, false
	}

	for _, m := range rs.matchers {
		if p, ok := m(cleaned); ok {
			return p, true
		}
	}

	if nearMissRe.MatchString(cleaned) {
		d.log.Debug("prompt-shaped text did not match any rule", "text", truncate(cleaned, 200))
	}
	return nil, false
}

// LoadRulesFile replaces the detector's rule set with one parsed from a
// YAML rules file. The previous rules stay active on error.
func (d *Detector) LoadRulesFile(path string) error {
	rs, err := LoadRules(path)
	if err != nil {
		return err
	}
	return d.SetRules(rs)
}

// SetRules compiles and atomically installs a new rule set.
func (d *Detector) SetRules(rs *RuleSet) error {
	compiled, err := rs.compile()
	if err != nil {
		return err
	}
	d.rules.Store(compiled)
	d.log.Info("prompt rules installed", "version", rs.Version, "rules", len(rs.Rules))
	return nil
}

// ResetRules restores the built-in default cascade.
func (d *Detector) ResetRules() {
	d.rules.Store(defaultCompiled())
}

// Detect runs the built-in rule cascade as a pure function, without a
// Detector instance. Useful for one-off classification and tests.
func Detect(text string) (*Prompt, bool) {
	cleaned := strings.TrimSpace(StripANSI(text))
	rs := defaultCompiled()

	if len(cleaned) < rs.minLength {
		return nil, false
	}
	for _, m := range rs.matchers {
		if p, ok := m(cleaned); ok {
			return p, true
		}
	}
	return nil, false
}

// truncate shortens long strings for log messages.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
