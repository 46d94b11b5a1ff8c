package streaming

import (
	"bufio"
	"bytes"
	"io"

	"ag2api-go/internal/constants"
)

var doneSentinel = []byte("[DONE]")

// SSEScanner iterates the data payloads of a server-sent event stream.
// Non-data lines and keep-alive comments are skipped; the [DONE]
// sentinel ends iteration.
type SSEScanner struct {
	scanner *bufio.Scanner
	data    []byte
	done    bool
}

func NewSSEScanner(r io.Reader) *SSEScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, constants.SSEScannerInitialBufferSize), constants.SSEScannerMaxBufferSize)
	return &SSEScanner{scanner: sc}
}

// Next advances to the next data payload.
func (s *SSEScanner) Next() bool {
	if s.done {
		return false
	}
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if bytes.Equal(payload, doneSentinel) {
			s.done = true
			return false
		}
		if len(payload) == 0 {
			continue
		}
		s.data = payload
		return true
	}
	s.done = true
	return false
}

// Data returns the current payload. Valid until the next call to Next.
func (s *SSEScanner) Data() []byte { return s.data }

// Err reports a scanning failure, nil on normal end of stream.
func (s *SSEScanner) Err() error { return s.scanner.Err() }
