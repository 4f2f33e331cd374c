// Package manager wires the session engine together and exposes the
// narrow interface the UI layer calls. All engine operations are
// fire-and-forget: results surface asynchronously through the sinks.
package manager

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tidegui/tide-core/agent"
	"github.com/tidegui/tide-core/cli"
	"github.com/tidegui/tide-core/config"
	"github.com/tidegui/tide-core/logger"
	"github.com/tidegui/tide-core/paths"
	"github.com/tidegui/tide-core/process"
	"github.com/tidegui/tide-core/prompt"
	"github.com/tidegui/tide-core/terminal"
)

// Compile-time interface satisfaction check.
var _ EngineConfig = (*config.Config)(nil)

// EngineConfig defines the configuration the engine reads. This decouples
// the engine from the concrete config.Config struct; *config.Config
// satisfies it implicitly.
type EngineConfig interface {
	GetAgentCommand() string
	GetDefaultModel() string
	GetDebounceMs() int
	GetPromptRulesPath() string
	GetTerminalShell() string
	GetTerminalSize() (cols, rows int)
	GetShutdownGraceS() int
	GetCaptureStreams() bool
}

// Sinks carry engine output upward to the UI layer. They are invoked from
// the engine's internal goroutines and must not block for long.
type Sinks struct {
	// OnEvent receives a session's StreamEvents, keyed by conversation id.
	OnEvent agent.EventSink
	// OnTerminalData receives raw terminal bytes.
	OnTerminalData func(id int, data string)
	// OnTerminalExit fires when a terminal's shell exits.
	OnTerminalExit func(id int, exitCode int)
}

// TerminalInfo is returned from CreateTerminal.
type TerminalInfo struct {
	ID  int    `json:"id"`
	Dir string `json:"cwd"`
}

// Engine is the session engine facade. One Engine serves the whole app;
// Shutdown must run before process exit so no child survives it.
type Engine struct {
	cfg   EngineConfig
	sinks Sinks
	log   *slog.Logger

	supervisor *agent.Supervisor
	registry   *agent.Registry
	terminals  *terminal.Manager
	resolver   *cli.Resolver
	detector   *prompt.Detector
	watcher    *prompt.Watcher
}

// NewEngine builds the engine: executable resolution, prompt rules (with
// hot reload when the rules file changes), the child supervisor, and the
// terminal manager.
func NewEngine(cfg EngineConfig, sinks Sinks) *Engine {
	log := logger.WithComponent("engine")

	e := &Engine{
		cfg:        cfg,
		sinks:      sinks,
		log:        log,
		supervisor: agent.NewSupervisor(),
		registry:   agent.NewRegistry(),
		resolver:   cli.NewResolver(cfg.GetAgentCommand(), nil),
		detector:   prompt.NewDetector(logger.WithComponent("prompt")),
	}
	e.terminals = terminal.NewManager(e.supervisor, terminal.Callbacks{
		OnData: sinks.OnTerminalData,
		OnExit: sinks.OnTerminalExit,
	})

	e.loadPromptRules()
	return e
}

// loadPromptRules seeds the rules file on first run, loads it, and starts
// watching it for edits. Every failure here is survivable: the detector
// falls back to its built-in rule set.
func (e *Engine) loadPromptRules() {
	path := e.cfg.GetPromptRulesPath()
	if path == "" {
		p, err := paths.RulesFilePath()
		if err != nil {
			e.log.Warn("prompt rules location unavailable, using built-ins", "error", err)
			return
		}
		path = p
	}

	if err := prompt.SaveDefaultRules(path); err != nil {
		e.log.Debug("did not seed prompt rules file", "path", path, "error", err)
	}
	if err := e.detector.LoadRulesFile(path); err != nil {
		e.log.Warn("failed to load prompt rules, using built-ins", "path", path, "error", err)
	}

	watcher, err := prompt.WatchRules(e.detector, path)
	if err != nil {
		e.log.Warn("prompt rules hot reload unavailable", "path", path, "error", err)
		return
	}
	e.watcher = watcher
}

// NewConversationID mints a fresh conversation identifier. Callers may
// supply their own ids instead; the engine only requires uniqueness.
func NewConversationID() string {
	return uuid.New().String()
}

// session returns the live session for convID, creating it on first use.
func (e *Engine) session(convID string) *agent.Session {
	return e.registry.GetOrCreate(convID, func() *agent.Session {
		return agent.NewSession(convID, agent.SessionConfig{
			Supervisor:    e.supervisor,
			Resolver:      e.resolver,
			Detector:      e.detector,
			Sink:          e.sinks.OnEvent,
			Mode:          agent.ModePiped,
			Debounce:      time.Duration(e.cfg.GetDebounceMs()) * time.Millisecond,
			CaptureStream: e.cfg.GetCaptureStreams(),
		})
	})
}

// SendSession starts a new turn for the conversation. An empty model
// falls back to the configured default; an empty resumeID reuses the
// session's captured continuation id.
func (e *Engine) SendSession(convID, promptText, cwd, model, resumeID string) bool {
	if model == "" {
		model = e.cfg.GetDefaultModel()
	}
	return e.session(convID).Send(promptText, cwd, model, resumeID)
}

// RespondSession answers a detected prompt. Returns false when the child
// already exited.
func (e *Engine) RespondSession(convID, text string) bool {
	s := e.registry.Get(convID)
	if s == nil {
		return false
	}
	return s.Respond(text)
}

// AbortSession interrupts the conversation's live child.
func (e *Engine) AbortSession(convID string) bool {
	s := e.registry.Get(convID)
	if s == nil {
		return false
	}
	return s.Abort()
}

// CloseSession tears the conversation down; no further events arrive for
// this id. Always returns true, closing an unknown id is a no-op.
func (e *Engine) CloseSession(convID string) bool {
	if s := e.registry.Remove(convID); s != nil {
		s.Close()
	}
	return true
}

// SessionState reports the conversation's lifecycle phase for UI display.
func (e *Engine) SessionState(convID string) agent.State {
	s := e.registry.Get(convID)
	if s == nil {
		return agent.StateIdle
	}
	return s.State()
}

// CreateTerminal opens a new shell terminal. An empty cwd defaults to the
// user's home directory.
func (e *Engine) CreateTerminal(cwd string) (TerminalInfo, error) {
	if cwd == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cwd = home
		}
	}
	cols, rows := e.cfg.GetTerminalSize()
	term, err := e.terminals.Create(cwd, e.cfg.GetTerminalShell(), uint16(cols), uint16(rows))
	if err != nil {
		return TerminalInfo{}, err
	}
	return TerminalInfo{ID: term.ID, Dir: cwd}, nil
}

// WriteTerminal forwards raw input, control bytes included.
func (e *Engine) WriteTerminal(id int, text string) bool {
	return e.terminals.Write(id, text)
}

// ResizeTerminal updates a terminal's window size.
func (e *Engine) ResizeTerminal(id, cols, rows int) bool {
	return e.terminals.Resize(id, uint16(cols), uint16(rows))
}

// KillTerminal terminates a terminal's shell.
func (e *Engine) KillTerminal(id int) bool {
	return e.terminals.Kill(id)
}

// CheckPrerequisites verifies the external tools the engine depends on.
// Returns nil when everything required is installed, otherwise an error
// listing what is missing and where to get it.
func (e *Engine) CheckPrerequisites() error {
	return cli.ValidateRequired(cli.DefaultPrerequisites(e.cfg.GetAgentCommand()))
}

// PrerequisiteReport returns a human-readable status of the external
// tools, for a diagnostics or first-run view.
func (e *Engine) PrerequisiteReport() string {
	return cli.FormatCheckResults(cli.CheckAll(cli.DefaultPrerequisites(e.cfg.GetAgentCommand())))
}

// ResetResolvedPath invalidates the cached agent executable path, for use
// after the tool was updated or reinstalled.
func (e *Engine) ResetResolvedPath() {
	e.resolver.Reset()
}

// CleanupOrphans kills agent processes left over from a previous crashed
// run, sparing any conversation this engine currently knows about.
func (e *Engine) CleanupOrphans() (int, error) {
	known := make(map[string]bool)
	for _, s := range e.registry.All() {
		if id := s.ExternalSessionID(); id != "" {
			known[id] = true
		}
	}
	return process.CleanupOrphaned(e.cfg.GetAgentCommand(), known)
}

// Shutdown kills every live session and terminal. Children get the
// configured grace period to exit before they are force-killed.
func (e *Engine) Shutdown() {
	e.log.Info("engine shutting down")

	if e.watcher != nil {
		e.watcher.Close()
	}
	e.registry.CloseAll()
	e.terminals.CloseAll()
	e.supervisor.Shutdown(time.Duration(e.cfg.GetShutdownGraceS()) * time.Second)
}
