// Package agent runs the external coding-agent CLI and turns its combined
// output into a typed event stream.
//
// # Overview
//
// Each conversation owns one Session. A Session spawns the agent CLI as a
// child process, inside a pseudo-terminal for interactive use or with
// plain pipes for headless invocations, and demultiplexes the child's
// output into structured JSON events, detected interactive prompts, and
// raw diagnostic text.
//
// # Session
//
//	sess := agent.NewSession("conv-1", agent.SessionConfig{
//	    Supervisor: sup,
//	    Resolver:   resolver,
//	    Detector:   detector,
//	    Sink:       func(ev agent.StreamEvent) { /* forward to UI */ },
//	})
//	sess.Send("fix the failing test", "/path/to/repo", "", "")
//
// Send returns immediately; all results arrive as StreamEvents on the
// sink, ending with exactly one done event per send. Starting a new turn
// for a conversation that already has a live child kills the old child
// first; at most one child per conversation is ever alive.
//
// # Prompt handling
//
// Lines that fail JSON decode accumulate per session and, after a quiet
// period, run through the prompt detector. A recognized prompt surfaces as
// a prompt event; the UI answers via Respond, which writes the choice back
// into the child's stdin. Respond returns false (never panics) when the
// child has already exited; responding after exit is a normal race.
//
// # Resource cleanup
//
// Every spawned child is registered with the Supervisor; a single
// Supervisor.Shutdown call kills everything still alive. Leaked children
// are a correctness bug: the agent CLI may hold file locks or network
// connections.
//
// # Thread safety
//
// Session serializes all state mutation behind a mutex: the output
// reader, the debounce timer, and caller operations never interleave.
// Different sessions' I/O runs concurrently.
package agent
