package agent

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/tidegui/tide-core/logger"
)

// Mode selects how a child's standard streams are wired.
type Mode string

const (
	// ModePTY runs the child inside a pseudo-terminal: it reports a tty
	// and receives window-size changes.
	ModePTY Mode = "pty"
	// ModePiped connects plain stdin/stdout/stderr pipes.
	ModePiped Mode = "piped"
)

// readBufSize is the chunk size for child output reads.
const readBufSize = 4096

// SpawnOptions describes one child process.
type SpawnOptions struct {
	Mode    Mode
	Command string
	Args    []string
	Dir     string
	Env     []string // appended to the inherited environment

	// CloseStdin closes the child's stdin immediately after spawn, for
	// single-shot piped invocations that take no further input. Without
	// this the child can block forever waiting for piped input that
	// will never arrive.
	CloseStdin bool

	// Initial pty size; ignored in piped mode. Zero values get defaults.
	Cols uint16
	Rows uint16
}

// Child is a handle to one spawned process. All methods are safe to call
// on an already-dead child: Write and Resize report false, Kill and
// Interrupt are no-ops.
type Child struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	ptmx     *os.File
	dead     bool
	exitCode int
	waitDone chan struct{}
	log      *slog.Logger
}

// Pid returns the OS process id, or 0 when unknown.
func (c *Child) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Alive reports whether the process has not yet exited.
func (c *Child) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.dead
}

// WaitDone returns a channel closed once the process has exited and all
// of its output has been delivered.
func (c *Child) WaitDone() <-chan struct{} {
	return c.waitDone
}

// ExitCode returns the exit code. Valid only after WaitDone is closed;
// -1 when the process was killed by a signal.
func (c *Child) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

// Write sends bytes to the child's stdin. A write to a dead child is a
// normal race, not an error: it is logged and reported as false.
func (c *Child) Write(data []byte) bool {
	c.mu.Lock()
	stdin := c.stdin
	dead := c.dead
	c.mu.Unlock()

	if dead || stdin == nil {
		c.log.Debug("write to dead child ignored", "bytes", len(data))
		return false
	}

	if _, err := stdin.Write(data); err != nil {
		c.log.Debug("write to child failed", "error", err)
		return false
	}
	return true
}

// Interrupt sends SIGINT, requesting cooperative termination. The child
// may still produce output and a final exit afterwards.
func (c *Child) Interrupt() {
	c.signal(syscall.SIGINT)
}

// Terminate sends SIGTERM.
func (c *Child) Terminate() {
	c.signal(syscall.SIGTERM)
}

func (c *Child) signal(sig syscall.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead || c.cmd == nil || c.cmd.Process == nil {
		return
	}
	if err := c.cmd.Process.Signal(sig); err != nil {
		c.log.Debug("failed to signal child", "signal", sig, "error", err)
	}
}

// Kill forcefully terminates the process. Idempotent: safe on an
// already-dead handle.
func (c *Child) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead || c.cmd == nil || c.cmd.Process == nil {
		return
	}
	if err := c.cmd.Process.Kill(); err != nil {
		c.log.Debug("kill failed (child may already be dead)", "error", err)
	}
}

// Resize updates the pty's reported window size. Reports false, not an
// error, for piped or dead children.
func (c *Child) Resize(cols, rows uint16) bool {
	c.mu.Lock()
	ptmx := c.ptmx
	dead := c.dead
	c.mu.Unlock()

	if dead || ptmx == nil {
		return false
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		c.log.Debug("pty resize failed", "error", err)
		return false
	}
	return true
}

// Supervisor spawns and tracks child processes. Every live handle is
// registered so a single Shutdown call can kill all of them; this is the
// engine's only process-wide mutable state.
type Supervisor struct {
	mu       sync.Mutex
	children map[*Child]struct{}
	closed   bool
	log      *slog.Logger
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		children: make(map[*Child]struct{}),
		log:      logger.WithComponent("supervisor"),
	}
}

// Live returns the number of children that have not exited.
func (s *Supervisor) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

// Spawn starts a child process. onOutput receives chunks of the child's
// combined stdout+stderr as they arrive; onExit is called exactly once,
// after the last output chunk, with the exit code. Both callbacks run on
// the child's internal goroutines.
func (s *Supervisor) Spawn(opts SpawnOptions, onOutput func(chunk string), onExit func(exitCode int)) (*Child, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("supervisor is shut down")
	}
	s.mu.Unlock()

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	child := &Child{
		cmd:      cmd,
		exitCode: -1,
		waitDone: make(chan struct{}),
		log:      s.log.With("command", opts.Command),
	}

	var output *os.File // read end of the child's combined output

	switch opts.Mode {
	case ModePTY:
		cols, rows := opts.Cols, opts.Rows
		if cols == 0 {
			cols = 120
		}
		if rows == 0 {
			rows = 40
		}
		ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
		if err != nil {
			return nil, fmt.Errorf("failed to start pty process: %w", err)
		}
		child.ptmx = ptmx
		child.stdin = ptmx
		output = ptmx

	case ModePiped:
		// One pipe carries both stdout and stderr so interleaving is
		// preserved; non-JSON stderr lines ride the same raw-text path.
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create output pipe: %w", err)
		}
		cmd.Stdout = pw
		cmd.Stderr = pw

		stdin, err := cmd.StdinPipe()
		if err != nil {
			pr.Close()
			pw.Close()
			return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
		}

		if err := cmd.Start(); err != nil {
			pr.Close()
			pw.Close()
			stdin.Close()
			return nil, fmt.Errorf("failed to start process: %w", err)
		}

		// Parent's copy of the write end must close so the reader sees
		// EOF when the child exits.
		pw.Close()

		if opts.CloseStdin {
			stdin.Close()
		} else {
			child.stdin = stdin
		}
		output = pr

	default:
		return nil, fmt.Errorf("unknown spawn mode %q", opts.Mode)
	}

	if !s.register(child) {
		// Shutdown ran between the entry check and the start; this child
		// escaped the shutdown snapshot, so reap it here.
		cmd.Process.Kill()
		go func() {
			cmd.Wait()
			output.Close()
		}()
		child.mu.Lock()
		if child.stdin != nil && child.ptmx == nil {
			child.stdin.Close()
		}
		child.stdin = nil
		child.ptmx = nil
		child.mu.Unlock()
		return nil, fmt.Errorf("supervisor is shut down")
	}
	s.log.Debug("child spawned", "pid", cmd.Process.Pid, "mode", opts.Mode, "dir", opts.Dir)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		buf := make([]byte, readBufSize)
		for {
			n, err := output.Read(buf)
			if n > 0 && onOutput != nil {
				onOutput(string(buf[:n]))
			}
			if err != nil {
				// pty reads fail with EIO after child exit; either way
				// the stream is over.
				return
			}
		}
	}()

	go func() {
		err := cmd.Wait()
		// Deliver remaining output before reporting exit.
		<-readerDone
		output.Close()

		code := cmd.ProcessState.ExitCode()

		child.mu.Lock()
		child.dead = true
		child.exitCode = code
		if child.stdin != nil {
			child.stdin.Close()
			child.stdin = nil
		}
		child.ptmx = nil
		child.mu.Unlock()

		s.unregister(child)
		close(child.waitDone)

		if err != nil {
			s.log.Debug("child exited", "pid", cmd.Process.Pid, "code", code, "error", err)
		} else {
			s.log.Debug("child exited", "pid", cmd.Process.Pid, "code", code)
		}

		if onExit != nil {
			onExit(code)
		}
	}()

	return child, nil
}

// register adds the child to the live set. It reports false when the
// supervisor was shut down after the child's process had already
// started; the caller must reap the orphan itself.
func (s *Supervisor) register(c *Child) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.children[c] = struct{}{}
	return true
}

func (s *Supervisor) unregister(c *Child) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.children, c)
}

// Shutdown terminates every live child: SIGTERM first, then SIGKILL for
// anything still alive after the grace period. It blocks until all
// children are gone or the second grace period expires. A child that
// survives both is logged loudly but never blocks process exit.
func (s *Supervisor) Shutdown(grace time.Duration) {
	s.mu.Lock()
	s.closed = true
	snapshot := make([]*Child, 0, len(s.children))
	for c := range s.children {
		snapshot = append(snapshot, c)
	}
	s.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}
	s.log.Info("shutting down children", "count", len(snapshot))

	for _, c := range snapshot {
		c.Terminate()
	}

	stubborn := waitForExits(snapshot, grace)
	for _, c := range stubborn {
		c.Kill()
	}

	// Final wait after the kills.
	for _, c := range waitForExits(stubborn, grace) {
		s.log.Error("child survived shutdown kill", "pid", c.Pid())
	}
}

// waitForExits waits up to grace for each child to finish and returns
// the ones still alive. The deadline is absolute, shared across the
// whole batch, so one stubborn child cannot starve the wait for the
// others.
func waitForExits(children []*Child, grace time.Duration) []*Child {
	deadline := time.Now().Add(grace)
	var alive []*Child
	for _, c := range children {
		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-c.WaitDone():
		case <-timer.C:
			alive = append(alive, c)
		}
		timer.Stop()
	}
	return alive
}
