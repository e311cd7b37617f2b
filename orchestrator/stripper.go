package orchestrator

import (
	"regexp"
	"strings"
)

// Models sometimes copy the "[Speaker Name]:" labeling from the
// consolidated history into their own reply. The stripper removes that
// artifact from the streamed deltas without delaying delivery of the
// rest of the stream; stripLabel is the safety net applied to the
// accumulated full text before it reaches history and the store.

var labelPattern = regexp.MustCompile(`^\[[^\]]*\]:\s*`)

// stripLabel removes a leading bracketed speaker label, if any, and
// trims surrounding whitespace.
func stripLabel(s string) string {
	return strings.TrimSpace(labelPattern.ReplaceAllString(s, ""))
}

// prefixBufferLimit is how much text can plausibly still be a speaker
// label. A buffer past this size is flushed verbatim.
const prefixBufferLimit = 150

// prefixStripper buffers the head of a delta stream until it can decide
// whether the stream starts with a "[Name]:" artifact. Once decided it
// passes everything through untouched.
type prefixStripper struct {
	done bool
	buf  strings.Builder
}

// feed consumes one delta and returns the text ready for delivery. An
// empty return means the stripper is still buffering (or the prefix was
// swallowed whole).
func (s *prefixStripper) feed(delta string) string {
	if s.done {
		return delta
	}
	s.buf.WriteString(delta)
	buffered := s.buf.String()

	if !strings.HasPrefix(buffered, "[") {
		s.done = true
		return buffered
	}
	if idx := strings.Index(buffered, "]:"); idx != -1 {
		s.done = true
		return strings.TrimLeft(buffered[idx+2:], " \t\r\n")
	}
	if len(buffered) > prefixBufferLimit {
		// Too long to be a label, the bracket was incidental.
		s.done = true
		return buffered
	}
	return ""
}

// flush returns whatever is still buffered. Called once the stream is
// exhausted so a short reply that never resolved the prefix question is
// not lost.
func (s *prefixStripper) flush() string {
	if s.done {
		return ""
	}
	s.done = true
	return s.buf.String()
}
