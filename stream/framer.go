// Package stream turns the agent CLI's combined output into discrete units:
// complete lines, structured JSON events, and debounced runs of plain text.
package stream

import "strings"

// Framer splits an unbounded text stream into complete lines, holding back
// an unterminated trailing fragment across chunks. Carriage returns that
// precede a newline are stripped (the pty path injects \r\n).
type Framer struct {
	pending strings.Builder
}

// Feed appends a chunk and returns all complete lines it produced, in order.
// A chunk with no newline yields nothing and only grows the retained buffer.
func (f *Framer) Feed(chunk string) []string {
	if chunk == "" {
		return nil
	}

	data := f.pending.String() + chunk
	f.pending.Reset()

	var lines []string
	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, strings.TrimSuffix(data[:idx], "\r"))
		data = data[idx+1:]
	}

	f.pending.WriteString(data)
	return lines
}

// Flush returns the retained unterminated fragment as a final line.
// The second return is false when nothing was pending.
func (f *Framer) Flush() (string, bool) {
	if f.pending.Len() == 0 {
		return "", false
	}
	line := strings.TrimSuffix(f.pending.String(), "\r")
	f.pending.Reset()
	if line == "" {
		return "", false
	}
	return line, true
}

// Pending reports whether an unterminated fragment is retained.
func (f *Framer) Pending() bool {
	return f.pending.Len() > 0
}
