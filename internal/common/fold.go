package common

// ASCII-only case folding for marker matching. Indexes must refer to
// the haystack as given: lowering a whole Unicode string can change its
// byte length (for example U+0130), which would shift every offset.

// LowerASCII lowercases only ASCII letters, leaving all other bytes as
// they are.
func LowerASCII(s string) string {
	b := []byte(s)
	for i := range b {
		if 'A' <= b[i] && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// IndexASCIIFold returns the byte offset of the first occurrence of
// needle in s, folding ASCII case in s. needle must already be
// ASCII-lowered.
func IndexASCIIFold(s, needle string) int {
	for i := 0; i+len(needle) <= len(s); i++ {
		if EqualASCIIFold(s[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

// EqualASCIIFold reports whether s equals t byte for byte after folding
// ASCII upper case in s. t must already be ASCII-lowered.
func EqualASCIIFold(s, t string) bool {
	if len(s) != len(t) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != t[i] {
			return false
		}
	}
	return true
}
