package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/tidegui/tide-core/exec"
)

func TestDefaultPrerequisites_AgentIsRequired(t *testing.T) {
	prereqs := DefaultPrerequisites("agent")
	if len(prereqs) != 1 {
		t.Fatalf("got %d prerequisites, want 1", len(prereqs))
	}
	if prereqs[0].Name != "agent" || !prereqs[0].Required {
		t.Errorf("agent prerequisite = %+v, want required entry", prereqs[0])
	}
}

func TestValidateRequiredWith_AllMet(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.SetLookPath("agent", "/usr/local/bin/agent")

	if err := ValidateRequiredWith(DefaultPrerequisites("agent"), mock); err != nil {
		t.Errorf("ValidateRequiredWith() = %v, want nil", err)
	}
}

func TestValidateRequiredWith_Missing(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.SetLookPathError(errors.New("not found"))

	err := ValidateRequiredWith(DefaultPrerequisites("agent"), mock)
	if err == nil {
		t.Fatal("expected an error for a missing required tool")
	}
	if !strings.Contains(err.Error(), "agent") {
		t.Errorf("error %q does not name the missing tool", err)
	}
	if !strings.Contains(err.Error(), "Install:") {
		t.Errorf("error %q does not point at install instructions", err)
	}
}

func TestCheckAllWith_FormatsReport(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.SetLookPath("agent", "/usr/bin/agent")
	mock.AddExactMatch("agent", []string{"--version"}, exec.MockResponse{
		Stdout: []byte("agent 1.2.3\n"),
	})

	report := FormatCheckResults(CheckAllWith(DefaultPrerequisites("agent"), mock))
	if !strings.Contains(report, "✓ agent") {
		t.Errorf("report missing found marker:\n%s", report)
	}
	if !strings.Contains(report, "agent 1.2.3") {
		t.Errorf("report missing version:\n%s", report)
	}
}

func TestCheckAllWith_MissingRequiredMarked(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.SetLookPathError(errors.New("not found"))

	report := FormatCheckResults(CheckAllWith(DefaultPrerequisites("agent"), mock))
	if !strings.Contains(report, "✗ agent") {
		t.Errorf("report missing not-found marker:\n%s", report)
	}
	if !strings.Contains(report, "[REQUIRED]") {
		t.Errorf("report missing required tag:\n%s", report)
	}
}
