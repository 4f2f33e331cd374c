package cli

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tidegui/tide-core/exec"
	"github.com/tidegui/tide-core/logger"
)

// resolveTimeout bounds the login-shell lookup; a misconfigured shell rc
// that blocks must not hang session startup.
const resolveTimeout = 5 * time.Second

// Resolver locates the external agent CLI executable and caches the result.
//
// Lookup order:
//  1. Login-shell `which <name>`, which picks up PATH entries added by the user's
//     shell profile (nvm, homebrew, etc.) that GUI-launched processes miss.
//  2. exec.LookPath on the inherited PATH.
//  3. The bare command name, letting the OS resolve at spawn time.
//
// The resolved path is cached until Reset is called (e.g. after the agent
// CLI was updated or reinstalled).
type Resolver struct {
	command  string
	executor exec.CommandExecutor

	mu       sync.Mutex
	resolved string
	done     bool
}

// NewResolver creates a resolver for the given command name.
// A nil executor falls back to the process-wide default.
func NewResolver(command string, executor exec.CommandExecutor) *Resolver {
	if executor == nil {
		executor = exec.GetDefaultExecutor()
	}
	return &Resolver{command: command, executor: executor}
}

// Path returns the resolved executable path, computing it on first call.
// It always returns a usable value; when every lookup fails the bare
// command name is returned so the spawn error surfaces downstream.
func (r *Resolver) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return r.resolved
	}

	r.resolved = r.lookupLocked()
	r.done = true
	return r.resolved
}

// Reset invalidates the cached path so the next Path call resolves again.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = ""
	r.done = false
}

// lookupLocked performs the actual resolution. Caller must hold mu.
func (r *Resolver) lookupLocked() string {
	log := logger.WithComponent("cli")

	if path := r.loginShellWhich(); path != "" {
		log.Debug("resolved via login shell", "command", r.command, "path", path)
		return path
	}

	if path, err := r.executor.LookPath(r.command); err == nil && path != "" {
		log.Debug("resolved via PATH", "command", r.command, "path", path)
		return path
	}

	log.Warn("could not resolve executable, using bare command name", "command", r.command)
	return r.command
}

// loginShellWhich runs `$SHELL -l -c "which <command>"` and returns the
// first line of output, or empty on any failure.
func (r *Resolver) loginShellWhich() string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	out, err := r.executor.Output(ctx, "", shell, "-l", "-c", "which "+r.command)
	if err != nil {
		return ""
	}

	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "/") {
		return ""
	}
	return line
}
