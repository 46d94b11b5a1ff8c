package streaming

import (
	"context"
	"time"

	"ag2api-go/internal/errors"
	"ag2api-go/internal/translator"
)

// FakeStreamConfig tunes the emulated stream.
type FakeStreamConfig struct {
	Heartbeat time.Duration // interval between keep-alive deltas
	ChunkSize int           // runes per content delta
	Delay     time.Duration // pause between content deltas
}

func DefaultFakeStreamConfig() FakeStreamConfig {
	return FakeStreamConfig{
		Heartbeat: 5 * time.Second,
		ChunkSize: 64,
		Delay:     20 * time.Millisecond,
	}
}

// Emulator serves a streaming client from a buffered upstream call:
// heartbeats keep the connection alive while the upstream works, then
// the finished text is replayed as sliced deltas. Concatenating the
// content deltas reproduces the buffered content byte for byte.
type Emulator struct {
	ctrl *Controller
	cfg  FakeStreamConfig
}

func NewEmulator(ctrl *Controller, cfg FakeStreamConfig) *Emulator {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 5 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 64
	}
	return &Emulator{ctrl: ctrl, cfg: cfg}
}

// Run executes the buffered request and replays it through emit. The
// result is returned for the caller's finish chunk; on error the
// caller owns the terminal error delta.
func (e *Emulator) Run(ctx context.Context, req *translator.Request, id string, emit Emit) (*translator.Result, *errors.APIError) {
	type outcome struct {
		res    *translator.Result
		apiErr *errors.APIError
	}
	done := make(chan outcome, 1)
	go func() {
		res, apiErr := e.ctrl.Complete(ctx, req, e.ctrl.antiTruncationActive(req))
		done <- outcome{res, apiErr}
	}()

	model := req.Variant.Exposed
	ticker := time.NewTicker(e.cfg.Heartbeat)
	defer ticker.Stop()

	var out outcome
wait:
	for {
		select {
		case <-ctx.Done():
			return nil, errors.MapNetworkError(ctx.Err())
		case <-ticker.C:
			if err := emit(translator.HeartbeatChunk(id, model)); err != nil {
				return nil, errors.New(499, "client_disconnected", "connection_error", err.Error())
			}
		case out = <-done:
			break wait
		}
	}
	if out.apiErr != nil {
		return nil, out.apiErr
	}
	res := out.res

	if res.Reasoning != "" {
		if err := emit(translator.ReasoningChunk(id, model, res.Reasoning)); err != nil {
			return nil, errors.New(499, "client_disconnected", "connection_error", err.Error())
		}
	}
	for i, slice := range sliceRunes(res.Content, e.cfg.ChunkSize) {
		if i > 0 && e.cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.MapNetworkError(ctx.Err())
			case <-time.After(e.cfg.Delay):
			}
		}
		if err := emit(translator.TextChunk(id, model, slice)); err != nil {
			return nil, errors.New(499, "client_disconnected", "connection_error", err.Error())
		}
	}
	return res, nil
}

// sliceRunes splits text into chunks of at most n runes, never
// breaking a multi-byte character.
func sliceRunes(text string, n int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+n-1)/n)
	for start := 0; start < len(runes); start += n {
		end := start + n
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
