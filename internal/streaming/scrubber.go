package streaming

import (
	"ag2api-go/internal/common"
)

// Scrubber removes the completion marker from streamed text. Because
// the marker can arrive split across deltas, text that ends in a
// marker prefix is withheld until enough arrives to decide; the marker
// itself never reaches the caller.
type Scrubber struct {
	marker  string // ASCII-lowered marker text
	pending string
	seen    bool
}

func NewScrubber(m common.Marker) *Scrubber {
	return &Scrubber{marker: common.LowerASCII(m.Text())}
}

// Feed appends a delta and returns the portion safe to forward.
func (s *Scrubber) Feed(text string) string {
	if s.marker == "" {
		return text
	}
	s.pending += text

	// Drop complete marker occurrences. Matching folds ASCII case on
	// the raw bytes so indexes stay valid for non-ASCII text.
	for {
		idx := common.IndexASCIIFold(s.pending, s.marker)
		if idx < 0 {
			break
		}
		s.seen = true
		s.pending = s.pending[:idx] + s.pending[idx+len(s.marker):]
	}

	hold := s.holdback()
	out := s.pending[:len(s.pending)-hold]
	s.pending = s.pending[len(s.pending)-hold:]
	return out
}

// holdback returns the length of the longest pending suffix that is a
// proper prefix of the marker.
func (s *Scrubber) holdback() int {
	max := len(s.marker) - 1
	if max > len(s.pending) {
		max = len(s.pending)
	}
	for n := max; n > 0; n-- {
		if common.EqualASCIIFold(s.pending[len(s.pending)-n:], s.marker[:n]) {
			return n
		}
	}
	return 0
}

// Flush releases withheld text at end of stream. A partial marker
// prefix that never completed is real content and is returned.
func (s *Scrubber) Flush() string {
	out := s.pending
	s.pending = ""
	return out
}

// Seen reports whether a complete marker appeared since the last Reset.
func (s *Scrubber) Seen() bool { return s.seen }

// Reset clears marker detection for the next continuation round while
// keeping any withheld text.
func (s *Scrubber) Reset() { s.seen = false }
