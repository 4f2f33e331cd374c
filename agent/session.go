package agent

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidegui/tide-core/cli"
	"github.com/tidegui/tide-core/logger"
	"github.com/tidegui/tide-core/prompt"
	"github.com/tidegui/tide-core/stream"
)

// State is the session lifecycle phase. AwaitingPrompt is a UI hint, not
// a hard block: the child keeps producing output while "awaiting", and the
// hint is cleared by the next structured or done event.
type State string

const (
	StateIdle           State = "idle"
	StateSpawning       State = "spawning"
	StateRunning        State = "running"
	StateAwaitingPrompt State = "awaiting-prompt"
	StateDone           State = "done"
)

// closeKillGrace is how long Close waits for an interrupted child before
// escalating to a hard kill.
const closeKillGrace = 3 * time.Second

// SessionConfig wires a Session's collaborators.
type SessionConfig struct {
	Supervisor *Supervisor
	Resolver   *cli.Resolver
	Detector   *prompt.Detector
	Sink       EventSink

	// Mode selects pty or piped spawning. Defaults to piped, which fits
	// the headless streaming-JSON invocation.
	Mode Mode

	// Debounce overrides the quiet period before unstructured text is
	// handed to the prompt detector. Zero means the default.
	Debounce time.Duration

	// CaptureStream mirrors the child's raw combined output to a
	// per-conversation log file, for debugging prompt detection and
	// stream parsing against what the child actually wrote.
	CaptureStream bool
}

// Session owns one conversation's child process lifecycle: spawn, stream,
// optional prompt-wait, resume, abort, exit. At most one child is alive
// per session at any time; a new Send kills the previous child first.
//
// All mutation goes through mu. Events are emitted outside mu, serialized
// by emitMu so sinks observe them in production order and may safely call
// back into the session.
type Session struct {
	id  string
	cfg SessionConfig
	log *slog.Logger

	mu                sync.Mutex
	state             State
	dir               string
	child             *Child
	gen               int // bumped on every spawn; events from older generations are dropped
	framer            *stream.Framer
	acc               *stream.Accumulator
	capture           *os.File // raw output mirror, nil unless capture is on
	externalSessionID string
	closed            bool

	emitMu sync.Mutex
}

// NewSession creates an idle session for the given conversation id.
func NewSession(id string, cfg SessionConfig) *Session {
	if cfg.Mode == "" {
		cfg.Mode = ModePiped
	}
	return &Session{
		id:    id,
		cfg:   cfg,
		state: StateIdle,
		log:   logger.WithSession(id),
	}
}

// ID returns the caller-assigned conversation identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExternalSessionID returns the identifier the child reported back, or ""
// if none has been captured yet.
func (s *Session) ExternalSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.externalSessionID
}

// ResetExternalSessionID clears the captured continuation id so the next
// structured event carrying one can set it again.
func (s *Session) ResetExternalSessionID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externalSessionID = ""
}

// Send starts a new turn: kills any live child, builds the headless
// streaming-JSON invocation, and spawns it in the session's working
// directory. Returns immediately; results arrive as StreamEvents on the
// sink, ending with exactly one done event. resumeID overrides the
// session's captured external id; pass "" to use the captured one.
func (s *Session) Send(promptText, dir, model, resumeID string) bool {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return false
	}

	if old := s.child; old != nil {
		// One live child per conversation. The old child's remaining
		// output and exit are dropped by the generation bump below.
		s.log.Info("killing previous child for new send", "pid", old.Pid())
		old.Kill()
	}
	if s.acc != nil {
		s.acc.Stop()
	}

	s.gen++
	gen := s.gen
	s.state = StateSpawning
	s.dir = dir
	s.child = nil
	s.framer = &stream.Framer{}
	s.acc = stream.NewAccumulator(s.cfg.Debounce, func() {
		s.handleFlush(gen)
	})
	if s.capture != nil {
		s.capture.Close()
		s.capture = nil
	}
	if s.cfg.CaptureStream {
		s.capture = openStreamCapture(s.id, s.log)
	}

	if resumeID == "" {
		resumeID = s.externalSessionID
	}
	args := BuildCommandArgs(InvocationConfig{
		Prompt:   promptText,
		Model:    model,
		ResumeID: resumeID,
	})
	command := s.cfg.Resolver.Path()

	s.mu.Unlock()

	s.log.Info("starting turn", "dir", dir, "model", model, "resume", resumeID != "")

	child, err := s.cfg.Supervisor.Spawn(SpawnOptions{
		Mode:    s.cfg.Mode,
		Command: command,
		Args:    args,
		Dir:     dir,
	}, func(chunk string) {
		s.handleOutput(gen, chunk)
	}, func(exitCode int) {
		s.handleExit(gen, exitCode)
	})

	if err != nil {
		// Spawn failure surfaces as an error event plus an immediate
		// done, never as a panic across the engine boundary.
		s.log.Error("spawn failed", "error", err)
		s.mu.Lock()
		if s.gen != gen || s.closed {
			s.mu.Unlock()
			return false
		}
		s.state = StateDone
		if s.capture != nil {
			s.capture.Close()
			s.capture = nil
		}
		external := s.externalSessionID
		s.mu.Unlock()
		s.emit(
			StreamEvent{ConversationID: s.id, Kind: EventError, Err: err.Error()},
			StreamEvent{ConversationID: s.id, Kind: EventDone, ExitCode: 1, ExternalSessionID: external},
		)
		return true
	}

	s.mu.Lock()
	if s.gen != gen {
		// A newer Send raced in while we were spawning; this child is
		// already superseded.
		s.mu.Unlock()
		child.Kill()
		return true
	}
	s.child = child
	s.state = StateRunning
	s.mu.Unlock()
	return true
}

// Respond writes text plus a newline to the live child's stdin. Returns
// false when no child is alive; responding after exit is a normal race
// and must not crash the caller.
func (s *Session) Respond(text string) bool {
	s.mu.Lock()
	child := s.child
	s.mu.Unlock()

	if child == nil {
		s.log.Debug("respond with no live child", "text", text)
		return false
	}
	return child.Write([]byte(text + "\n"))
}

// Abort sends an interrupt to the live child, letting it exit cleanly and
// still emit its final done event. Returns false when nothing is running.
func (s *Session) Abort() bool {
	s.mu.Lock()
	child := s.child
	s.mu.Unlock()

	if child == nil {
		return false
	}
	s.log.Info("aborting turn", "pid", child.Pid())
	child.Interrupt()
	return true
}

// Close tears the session down: no further events are emitted for this
// conversation. A live child is interrupted, then killed after a grace
// period if it has not exited.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	child := s.child
	s.child = nil
	acc := s.acc
	capture := s.capture
	s.capture = nil
	s.state = StateDone
	s.mu.Unlock()

	if capture != nil {
		capture.Close()
	}

	if acc != nil {
		acc.Stop()
	}
	if child != nil {
		child.Interrupt()
		time.AfterFunc(closeKillGrace, child.Kill)
	}
	s.log.Info("session closed")
}

// handleOutput runs on the child's reader goroutine. It frames the chunk
// into lines and classifies each one; structured events flush the pending
// unstructured accumulator inline first so ordering between raw text and
// JSON events matches the order the child produced them.
func (s *Session) handleOutput(gen int, chunk string) {
	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}

	if s.capture != nil {
		s.capture.WriteString(chunk)
	}

	var events []StreamEvent
	for _, line := range s.framer.Feed(chunk) {
		events = append(events, s.classifyLocked(line)...)
	}
	s.mu.Unlock()

	s.emit(events...)
}

// classifyLocked routes one complete line. Caller must hold mu.
func (s *Session) classifyLocked(line string) []StreamEvent {
	c := stream.Classify(line)
	if !c.Structured {
		s.acc.Add(c.Text)
		return nil
	}

	var events []StreamEvent
	if pending := s.acc.Drain(); pending != "" {
		events = append(events, s.detectLocked(pending))
	}

	if id := stream.SessionID(c.Payload); id != "" && s.externalSessionID == "" {
		// First writer wins; later events carrying a different id do
		// not overwrite until an explicit reset.
		s.externalSessionID = id
		s.log.Debug("captured external session id", "externalSessionID", id)
	}

	s.state = StateRunning
	events = append(events, StreamEvent{
		ConversationID: s.id,
		Kind:           EventStructured,
		Payload:        c.Payload,
	})
	return events
}

// detectLocked turns coalesced unstructured text into a prompt or raw
// event. Caller must hold mu.
func (s *Session) detectLocked(text string) StreamEvent {
	if p, ok := s.cfg.Detector.Detect(text); ok {
		s.state = StateAwaitingPrompt
		s.log.Info("prompt detected", "type", p.Type, "options", len(p.Options))
		return StreamEvent{ConversationID: s.id, Kind: EventPrompt, Prompt: p}
	}
	return StreamEvent{ConversationID: s.id, Kind: EventRaw, Text: text}
}

// handleFlush is the debounce notification: the child went quiet, so the
// accumulated text is evaluated as a possible prompt. The drain runs
// under mu; a structured event or exit arriving in the same instant
// either sees the text still buffered or finds it already taken here.
func (s *Session) handleFlush(gen int) {
	s.mu.Lock()
	if s.gen != gen || s.closed || s.state == StateDone {
		s.mu.Unlock()
		return
	}
	text := s.acc.Drain()
	if text == "" {
		s.mu.Unlock()
		return
	}
	ev := s.detectLocked(text)
	s.mu.Unlock()

	s.emit(ev)
}

// handleExit runs after the child exited and its last output chunk was
// delivered. Any retained partial line and pending accumulator content go
// through the same classify/detect path as live data, then exactly one
// done event closes the turn.
func (s *Session) handleExit(gen int, exitCode int) {
	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}

	var events []StreamEvent
	if tail, ok := s.framer.Flush(); ok {
		events = append(events, s.classifyLocked(tail)...)
	}
	if pending := s.acc.Drain(); pending != "" {
		events = append(events, s.detectLocked(pending))
	}
	s.acc.Stop()

	if s.capture != nil {
		s.capture.Close()
		s.capture = nil
	}

	s.state = StateDone
	s.child = nil
	events = append(events, StreamEvent{
		ConversationID:    s.id,
		Kind:              EventDone,
		ExitCode:          exitCode,
		ExternalSessionID: s.externalSessionID,
	})
	s.mu.Unlock()

	s.log.Info("turn finished", "exitCode", exitCode)
	s.emit(events...)
}

// emit delivers events to the sink in order. emitMu serializes emission
// across the reader, timer, and exit goroutines; mu is never held here so
// sinks may call back into the session.
func (s *Session) emit(events ...StreamEvent) {
	if len(events) == 0 || s.cfg.Sink == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	for _, ev := range events {
		s.cfg.Sink(ev)
	}
}

// openStreamCapture opens the per-conversation raw output log in append
// mode. A capture failure never fails the turn; it is logged and capture
// is skipped.
func openStreamCapture(convID string, log *slog.Logger) *os.File {
	path, err := logger.SessionLogPath(convID)
	if err != nil {
		log.Warn("stream capture unavailable", "error", err)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Warn("stream capture unavailable", "path", path, "error", err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Warn("stream capture unavailable", "path", path, "error", err)
		return nil
	}
	return f
}
