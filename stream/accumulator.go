package stream

import (
	"strings"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before accumulated unstructured text
// is handed downstream. Interactive prompts arrive as several small writes;
// evaluating line-by-line produces false negatives, so detection runs over
// a coalesced window instead.
const DefaultDebounce = 200 * time.Millisecond

// Accumulator collects unstructured output lines and releases them as one
// unit after a quiet period, or immediately on demand. Each session owns
// exactly one accumulator; the timer is private to it, never shared.
//
// The timer only signals: onQuiet is a notification, and the text stays
// buffered until the consumer calls Drain under its own lock. A drain
// racing the timer finds the text either still buffered or already taken
// by itself, never lost.
type Accumulator struct {
	mu      sync.Mutex
	buf     strings.Builder
	timer   *time.Timer
	delay   time.Duration
	stopped bool
	onQuiet func()
}

// NewAccumulator creates an accumulator that calls onQuiet once input has
// been quiet for delay. onQuiet runs on the timer goroutine and should call
// Drain to collect the text.
func NewAccumulator(delay time.Duration, onQuiet func()) *Accumulator {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Accumulator{delay: delay, onQuiet: onQuiet}
}

// Add appends a line (plus newline) and restarts the debounce timer.
func (a *Accumulator) Add(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}

	a.buf.WriteString(line)
	a.buf.WriteByte('\n')

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.fire)
}

// fire is the timer callback. It does not touch the buffer itself; the
// consumer drains it.
func (a *Accumulator) fire() {
	a.mu.Lock()
	skip := a.stopped || a.buf.Len() == 0
	a.mu.Unlock()

	if !skip && a.onQuiet != nil {
		a.onQuiet()
	}
}

// Drain cancels any pending timer and returns the accumulated text. Called
// from the onQuiet notification, and inline when a structured event or
// process exit must collect pending text to preserve ordering.
func (a *Accumulator) Drain() string {
	return a.take()
}

// take clears the buffer and stops the timer, returning the content.
func (a *Accumulator) take() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	text := a.buf.String()
	a.buf.Reset()
	return text
}

// Stop cancels the timer and discards buffered text. Further Adds are no-ops.
func (a *Accumulator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.buf.Reset()
}
