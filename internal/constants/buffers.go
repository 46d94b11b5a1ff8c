package constants

// SSE scanner sizing. A single generateContent delta can carry a large
// base64 inline part, so the line buffer must grow well past the
// bufio default.
const (
	SSEScannerInitialBufferSize = 64 * 1024
	SSEScannerMaxBufferSize     = 4 * 1024 * 1024
)
