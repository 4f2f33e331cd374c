// Package terminal manages general-purpose interactive shell sessions.
// A terminal is a pty-backed child with no JSON parsing and no prompt
// detection: all output is forwarded verbatim as raw text and all input,
// including control bytes like interrupt or EOF, is written through
// directly.
package terminal

import (
	"log/slog"
	"os"
	"sync"

	"github.com/tidegui/tide-core/agent"
	"github.com/tidegui/tide-core/logger"
)

// Callbacks receive terminal output and exit notifications. They are
// invoked from the terminal's internal goroutines.
type Callbacks struct {
	OnData func(id int, data string)
	OnExit func(id int, exitCode int)
}

// Terminal is one live shell session.
type Terminal struct {
	ID  int
	Dir string

	child *agent.Child
}

// Manager creates and tracks terminals. Ids are monotonically increasing
// and never reused while the process is alive.
type Manager struct {
	sup *agent.Supervisor
	cb  Callbacks
	log *slog.Logger

	mu     sync.Mutex
	nextID int
	terms  map[int]*Terminal
}

// NewManager creates a terminal manager spawning through sup, so the
// supervisor's shutdown hook covers terminals too.
func NewManager(sup *agent.Supervisor, cb Callbacks) *Manager {
	return &Manager{
		sup:    sup,
		cb:     cb,
		log:    logger.WithComponent("terminal"),
		nextID: 1,
		terms:  make(map[int]*Terminal),
	}
}

// DefaultShell returns the user's shell, falling back to /bin/sh.
func DefaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}

// Create opens a new terminal running shell in dir. An empty shell means
// the user's default; an empty dir means the process working directory.
func (m *Manager) Create(dir, shell string, cols, rows uint16) (*Terminal, error) {
	if shell == "" {
		shell = DefaultShell()
	}

	// The entry must exist before the spawn: a shell that exits
	// instantly fires the exit callback, which removes the id, while
	// Create is still running.
	term := &Terminal{Dir: dir}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	term.ID = id
	m.terms[id] = term
	m.mu.Unlock()

	tlog := logger.WithTerminal(id)

	child, err := m.sup.Spawn(agent.SpawnOptions{
		Mode:    agent.ModePTY,
		Command: shell,
		Dir:     dir,
		Cols:    cols,
		Rows:    rows,
	}, func(chunk string) {
		if m.cb.OnData != nil {
			m.cb.OnData(id, chunk)
		}
	}, func(exitCode int) {
		m.remove(id)
		tlog.Info("terminal exited", "exitCode", exitCode)
		if m.cb.OnExit != nil {
			m.cb.OnExit(id, exitCode)
		}
	})
	if err != nil {
		m.remove(id)
		return nil, err
	}

	m.mu.Lock()
	term.child = child
	m.mu.Unlock()

	tlog.Info("terminal created", "shell", shell, "dir", dir)
	return term, nil
}

// Get returns the live terminal with the given id, or nil.
func (m *Manager) Get(id int) *Terminal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terms[id]
}

// Count returns the number of live terminals.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.terms)
}

// child returns the terminal's child handle, or nil while the spawn is
// still in flight or after the terminal is gone.
func (m *Manager) child(id int) *agent.Child {
	m.mu.Lock()
	defer m.mu.Unlock()
	term := m.terms[id]
	if term == nil {
		return nil
	}
	return term.child
}

// Write sends raw bytes to the terminal's pty. Control bytes pass through
// unmodified. Returns false when the terminal is gone.
func (m *Manager) Write(id int, data string) bool {
	child := m.child(id)
	if child == nil {
		return false
	}
	return child.Write([]byte(data))
}

// Resize updates the pty's window size. Resizing a dead or unknown
// terminal is a no-op, not an error.
func (m *Manager) Resize(id int, cols, rows uint16) bool {
	child := m.child(id)
	if child == nil {
		return false
	}
	return child.Resize(cols, rows)
}

// Kill terminates the terminal's child. The exit callback fires as usual
// once the process is gone.
func (m *Manager) Kill(id int) bool {
	child := m.child(id)
	if child == nil {
		return false
	}
	m.log.Info("killing terminal", "terminalID", id)
	child.Kill()
	return true
}

// CloseAll kills every live terminal.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	children := make([]*agent.Child, 0, len(m.terms))
	for _, t := range m.terms {
		if t.child != nil {
			children = append(children, t.child)
		}
	}
	m.mu.Unlock()

	for _, c := range children {
		c.Kill()
	}
}

func (m *Manager) remove(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.terms, id)
}
