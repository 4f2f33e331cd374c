package prompt

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompt-rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRules_BuiltinsOnly(t *testing.T) {
	path := writeRules(t, `
version: 1
rules:
  - use: permission
  - use: yesno
`)

	rs, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rs.Version != 1 || len(rs.Rules) != 2 {
		t.Errorf("unexpected rule set: %+v", rs)
	}
}

func TestLoadRules_CustomRule(t *testing.T) {
	path := writeRules(t, `
version: 2
rules:
  - match: '(?i)press enter to continue'
    type: yesno
    message: Continue?
    options:
      - label: Continue
        value: ""
        key: enter
`)

	rs, err := LoadRules(path)
	if err == nil {
		t.Fatal("empty option value should be rejected")
	}
	_ = rs
}

func TestLoadRules_InvalidPattern(t *testing.T) {
	path := writeRules(t, `
version: 1
rules:
  - match: '([unclosed'
`)

	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

func TestLoadRules_UnknownBuiltin(t *testing.T) {
	path := writeRules(t, `
version: 1
rules:
  - use: telepathy
`)

	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected error for unknown builtin")
	}
}

func TestLoadRules_Empty(t *testing.T) {
	path := writeRules(t, "version: 1\nrules: []\n")
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected error for empty rule list")
	}
}

func TestSetRules_CustomMatcherFires(t *testing.T) {
	path := writeRules(t, `
version: 1
rules:
  - use: permission
  - match: 'Trust the files in this folder\?'
    type: yesno
    message: Trust this folder?
  - use: yesno
`)

	d := testDetector(t)
	if err := d.LoadRulesFile(path); err != nil {
		t.Fatalf("LoadRulesFile: %v", err)
	}

	p, ok := d.Detect("Trust the files in this folder?")
	if !ok {
		t.Fatal("custom rule should have matched")
	}
	if p.Type != TypeYesNo || p.Message != "Trust this folder?" {
		t.Errorf("unexpected prompt: %+v", p)
	}
	if len(p.Options) != 2 {
		t.Errorf("custom yesno rule should default to Yes/No options, got %+v", p.Options)
	}
}

func TestSetRules_OrderRespected(t *testing.T) {
	path := writeRules(t, `
version: 1
rules:
  - match: 'Continue'
    type: input
    message: custom wins
  - use: yesno
`)

	d := testDetector(t)
	if err := d.LoadRulesFile(path); err != nil {
		t.Fatalf("LoadRulesFile: %v", err)
	}

	p, ok := d.Detect("Continue? (y/n)")
	if !ok {
		t.Fatal("expected a prompt")
	}
	if p.Message != "custom wins" {
		t.Errorf("earlier rule should win, got %+v", p)
	}
}

func TestResetRules(t *testing.T) {
	path := writeRules(t, `
version: 1
rules:
  - match: 'never matches anything real'
    type: input
`)

	d := testDetector(t)
	if err := d.LoadRulesFile(path); err != nil {
		t.Fatalf("LoadRulesFile: %v", err)
	}
	if _, ok := d.Detect("Continue? (y/n)"); ok {
		t.Fatal("custom-only rules should not match yes/no")
	}

	d.ResetRules()
	if _, ok := d.Detect("Continue? (y/n)"); !ok {
		t.Error("default rules should match after reset")
	}
}

func TestSaveDefaultRules_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt-rules.yaml")
	if err := SaveDefaultRules(path); err != nil {
		t.Fatalf("SaveDefaultRules: %v", err)
	}

	rs, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules on saved defaults: %v", err)
	}
	if len(rs.Rules) != 4 {
		t.Errorf("expected 4 default rules, got %d", len(rs.Rules))
	}

	// Existing file must be left untouched.
	if err := os.WriteFile(path, []byte("version: 1\nrules:\n  - use: yesno\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := SaveDefaultRules(path); err != nil {
		t.Fatalf("SaveDefaultRules on existing file: %v", err)
	}
	rs, err = LoadRules(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs.Rules) != 1 {
		t.Error("SaveDefaultRules must not overwrite an existing file")
	}
}

func TestWatchRules_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt-rules.yaml")

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	d := NewDetector(log)

	w, err := WatchRules(d, path)
	if err != nil {
		t.Fatalf("WatchRules: %v", err)
	}
	defer w.Close()

	// Write a rule file that only matches a custom phrase.
	content := "version: 1\nrules:\n  - match: 'deploy to production now'\n    type: yesno\n    message: Deploy?\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	// Wait for the debounce + reload to land.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := d.Detect("deploy to production now"); ok && p.Message == "Deploy?" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("detector never picked up the new rules file")
}
