package common

import (
	"fmt"
	"strings"
)

// DefaultMarker is the completion marker injected into prompts when
// anti-truncation is active. It is distinct from the SSE "[DONE]" sentinel
// so the two can never be confused on the wire.
const DefaultMarker = "[DONE-AG]"

// Marker wraps a configurable completion marker together with the prompt
// text that teaches the model to emit it.
type Marker struct {
	text string
}

// NewMarker builds a Marker, falling back to DefaultMarker for empty input.
func NewMarker(text string) Marker {
	text = strings.TrimSpace(text)
	if text == "" {
		text = DefaultMarker
	}
	return Marker{text: text}
}

func (m Marker) Text() string { return m.text }

// Instruction returns the system-prompt suffix that asks the model to close
// every complete answer with the marker on its own line.
func (m Marker) Instruction() string {
	return fmt.Sprintf(`Strictly follow this output termination rule:

1. When your answer is fully complete, output %s alone on the final line.
2. The %s marker signals that your answer has ended; it is mandatory.
3. If your output is cut off, you will be asked to continue from where it stopped.
4. Regardless of answer length, always end with the %s marker on its own line.`,
		m.text, m.text, m.text)
}

// ContinuationPrompt returns the user turn appended when a truncated answer
// must be resumed.
func (m Marker) ContinuationPrompt() string {
	return fmt.Sprintf(`Continue exactly from where the previous output was cut off.

1. Do not repeat any content that was already produced.
2. Continue directly, with no preamble or explanation.
3. When everything is complete, output %s alone on the final line.

Continue now:`, m.text)
}

