// Package config handles loading and saving the engine configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/tidegui/tide-core/paths"
)

// Defaults applied when the config file is missing or leaves a field empty.
const (
	DefaultAgentCommand  = "claude"
	DefaultDebounceMs    = 200
	DefaultTerminalCols  = 120
	DefaultTerminalRows  = 32
	DefaultShutdownGrace = 5 // seconds
)

// Config holds the engine configuration.
type Config struct {
	AgentCommand    string `json:"agent_command,omitempty"`     // Executable name of the wrapped agent CLI
	DefaultModel    string `json:"default_model,omitempty"`     // Model override passed to every send unless the caller supplies one
	DebounceMs      int    `json:"debounce_ms,omitempty"`       // Quiet period before prompt detection runs over accumulated text
	PromptRulesPath string `json:"prompt_rules_path,omitempty"` // Overrides the default prompt-rules.yaml location
	TerminalShell   string `json:"terminal_shell,omitempty"`    // Shell for new terminals; empty means $SHELL
	TerminalCols    int    `json:"terminal_cols,omitempty"`     // Initial terminal width
	TerminalRows    int    `json:"terminal_rows,omitempty"`     // Initial terminal height
	ShutdownGraceS  int    `json:"shutdown_grace_s,omitempty"`  // Seconds to wait for children on shutdown before killing
	CaptureStreams  bool   `json:"capture_streams,omitempty"`   // Mirror each conversation's raw child output to a per-conversation log
	Debug           bool   `json:"debug,omitempty"`             // Enables debug logging

	mu       sync.RWMutex
	filePath string
}

// Load reads the config from disk, or creates one with defaults if it
// doesn't exist.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}

	cfg := &Config{filePath: path}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Fill any fields the file left zero before validating.
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields. Not thread-safe; only called
// during Load before the config is shared.
func (c *Config) applyDefaults() {
	if c.AgentCommand == "" {
		c.AgentCommand = DefaultAgentCommand
	}
	if c.DebounceMs == 0 {
		c.DebounceMs = DefaultDebounceMs
	}
	if c.TerminalCols == 0 {
		c.TerminalCols = DefaultTerminalCols
	}
	if c.TerminalRows == 0 {
		c.TerminalRows = DefaultTerminalRows
	}
	if c.ShutdownGraceS == 0 {
		c.ShutdownGraceS = DefaultShutdownGrace
	}
}

// Validate checks the loaded values for nonsense that would break the
// engine at runtime.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.DebounceMs < 0 || c.DebounceMs > 5000 {
		return fmt.Errorf("debounce_ms %d out of range (0-5000)", c.DebounceMs)
	}
	if c.TerminalCols < 1 || c.TerminalCols > 1000 {
		return fmt.Errorf("terminal_cols %d out of range", c.TerminalCols)
	}
	if c.TerminalRows < 1 || c.TerminalRows > 1000 {
		return fmt.Errorf("terminal_rows %d out of range", c.TerminalRows)
	}
	if c.ShutdownGraceS < 1 || c.ShutdownGraceS > 120 {
		return fmt.Errorf("shutdown_grace_s %d out of range (1-120)", c.ShutdownGraceS)
	}
	return nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir, err := paths.ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.filePath, data, 0644)
}

// SetFilePath sets the config file path (for testing).
func (c *Config) SetFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filePath = path
}

// GetAgentCommand returns the agent CLI executable name.
func (c *Config) GetAgentCommand() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AgentCommand
}

// SetAgentCommand sets the agent CLI executable name.
func (c *Config) SetAgentCommand(command string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if command == "" {
		command = DefaultAgentCommand
	}
	c.AgentCommand = command
}

// GetDefaultModel returns the model used when a send supplies none.
func (c *Config) GetDefaultModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DefaultModel
}

// SetDefaultModel sets the fallback model.
func (c *Config) SetDefaultModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DefaultModel = model
}

// GetDebounceMs returns the prompt-detection debounce in milliseconds.
func (c *Config) GetDebounceMs() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DebounceMs
}

// GetPromptRulesPath returns the prompt rules file location; empty means
// the default under the config directory.
func (c *Config) GetPromptRulesPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.PromptRulesPath
}

// GetTerminalShell returns the configured shell, or "" for the user's.
func (c *Config) GetTerminalShell() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TerminalShell
}

// SetTerminalShell sets the shell used for new terminals.
func (c *Config) SetTerminalShell(shell string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TerminalShell = shell
}

// GetTerminalSize returns the initial terminal dimensions.
func (c *Config) GetTerminalSize() (cols, rows int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TerminalCols, c.TerminalRows
}

// GetShutdownGraceS returns the shutdown grace period in seconds.
func (c *Config) GetShutdownGraceS() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ShutdownGraceS
}

// GetCaptureStreams returns whether raw stream capture is enabled.
func (c *Config) GetCaptureStreams() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.CaptureStreams
}

// SetCaptureStreams toggles raw stream capture for new sends.
func (c *Config) SetCaptureStreams(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CaptureStreams = enabled
}

// GetDebug returns whether debug logging is enabled.
func (c *Config) GetDebug() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Debug
}

// SetDebug toggles debug logging.
func (c *Config) SetDebug(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Debug = enabled
}
