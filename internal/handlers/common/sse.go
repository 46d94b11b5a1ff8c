package common

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ag2api-go/internal/errors"
	"ag2api-go/internal/translator"
)

// PrepareSSE sets standard headers for SSE and returns the writer/flusher pair.
func PrepareSSE(c *gin.Context) (gin.ResponseWriter, http.Flusher) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	w := c.Writer
	fl, _ := w.(http.Flusher)
	return w, fl
}

// StreamWriter serializes chat chunks onto an open SSE response.
// Headers are written lazily on the first chunk so that failures before
// any output can still be reported as a plain JSON error.
type StreamWriter struct {
	c      *gin.Context
	w      gin.ResponseWriter
	fl     http.Flusher
	opened bool
}

func NewStreamWriter(c *gin.Context) *StreamWriter {
	return &StreamWriter{c: c}
}

// Opened reports whether SSE headers have been sent.
func (s *StreamWriter) Opened() bool { return s.opened }

func (s *StreamWriter) open() {
	if s.opened {
		return
	}
	s.w, s.fl = PrepareSSE(s.c)
	s.opened = true
}

// WriteChunk emits one chunk and flushes it to the client.
func (s *StreamWriter) WriteChunk(chunk translator.ChatChunk) error {
	s.open()
	if _, err := s.w.Write(chunk.SSE()); err != nil {
		return err
	}
	s.flush()
	return nil
}

// WriteDone terminates the stream with the [DONE] sentinel.
func (s *StreamWriter) WriteDone() {
	s.open()
	s.w.Write(translator.DoneSSE())
	s.flush()
}

// WriteError emits one error-shaped event followed by [DONE]. Used when a
// stream fails after output has already been sent.
func (s *StreamWriter) WriteError(apiErr *errors.APIError) {
	s.open()
	body, err := apiErr.ToJSON(errors.FormatOpenAI)
	if err != nil {
		return
	}
	s.w.Write([]byte("data: "))
	s.w.Write(body)
	s.w.Write([]byte("\n\n"))
	s.w.Write(translator.DoneSSE())
	s.flush()
}

func (s *StreamWriter) flush() {
	if s.fl != nil {
		s.fl.Flush()
	}
}

// WriteAPIError renders an error as a plain OpenAI-shaped JSON response.
func WriteAPIError(c *gin.Context, apiErr *errors.APIError) {
	body, err := apiErr.ToJSON(errors.FormatOpenAI)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "internal error"}})
		return
	}
	c.Data(apiErr.HTTPStatus, "application/json", body)
}
