package streaming

import (
	"io"

	log "github.com/sirupsen/logrus"

	"ag2api-go/internal/credential"
	"ag2api-go/internal/errors"
	"ag2api-go/internal/translator"
)

// maxConsecutiveDecodeFailures bounds how many malformed SSE chunks in
// a row are tolerated before the stream is abandoned.
const maxConsecutiveDecodeFailures = 3

// Emit forwards one client-facing chunk. A nil Emit buffers silently.
type Emit func(translator.ChatChunk) error

// assembler folds one upstream response into the accumulated result,
// forwarding thought and scrubbed text deltas as they arrive.
type assembler struct {
	family credential.Family
	res    *translator.Result
	scrub  *Scrubber
	id     string
	model  string
	emit   Emit
}

// consumeSSE drains a streaming body. It returns the finish reason the
// upstream reported for this round, empty when the stream ended
// without one.
func (a *assembler) consumeSSE(body io.Reader) (string, *errors.APIError) {
	scanner := NewSSEScanner(body)
	finish := ""
	failures := 0

	for scanner.Next() {
		events, err := translator.TranslateEvent(a.family, scanner.Data())
		if err != nil {
			failures++
			log.WithError(err).WithField("failures", failures).Warn("skipping malformed stream chunk")
			if failures >= maxConsecutiveDecodeFailures {
				return finish, errors.New(502, errors.CodeStreamDecode, "server_error",
					"upstream stream decoding failed repeatedly: "+err.Error())
			}
			continue
		}
		failures = 0
		for _, ev := range events {
			if reason, apiErr := a.apply(ev); apiErr != nil {
				return finish, apiErr
			} else if reason != "" {
				finish = reason
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return finish, errors.MapNetworkError(err)
	}
	return finish, nil
}

// consumeJSON folds a complete non-streaming body.
func (a *assembler) consumeJSON(body []byte) (string, *errors.APIError) {
	events, err := translator.TranslateEvent(a.family, body)
	if err != nil {
		return "", errors.New(502, errors.CodeStreamDecode, "server_error", err.Error())
	}
	finish := ""
	for _, ev := range events {
		if reason, apiErr := a.apply(ev); apiErr != nil {
			return finish, apiErr
		} else if reason != "" {
			finish = reason
		}
	}
	return finish, nil
}

func (a *assembler) apply(ev translator.StreamEvent) (string, *errors.APIError) {
	switch ev.Kind {
	case translator.EventThought:
		a.res.Reasoning += ev.Text
		if apiErr := a.forward(translator.ReasoningChunk(a.id, a.model, ev.Text)); apiErr != nil {
			return "", apiErr
		}
	case translator.EventText:
		visible := a.scrub.Feed(ev.Text)
		a.res.Content += visible
		if visible != "" {
			if apiErr := a.forward(translator.TextChunk(a.id, a.model, visible)); apiErr != nil {
				return "", apiErr
			}
		}
	case translator.EventToolCall:
		a.mergeToolCall(*ev.Call)
	case translator.EventUsage:
		a.res.Usage.Add(ev.Usage)
	case translator.EventFinish:
		a.res.Usage.Add(ev.Usage)
		a.res.FinishReason = ev.FinishReason
		return ev.FinishReason, nil
	}
	return "", nil
}

// flushTail releases scrubber holdback at the end of the last round.
func (a *assembler) flushTail() *errors.APIError {
	tail := a.scrub.Flush()
	if tail == "" {
		return nil
	}
	a.res.Content += tail
	return a.forward(translator.TextChunk(a.id, a.model, tail))
}

// mergeToolCall accumulates calls by id; a repeated id replaces the
// earlier fragment with the more complete call.
func (a *assembler) mergeToolCall(call translator.FunctionCall) {
	if call.ID != "" {
		for i := range a.res.ToolCalls {
			if a.res.ToolCalls[i].ID == call.ID {
				a.res.ToolCalls[i] = call
				return
			}
		}
	}
	a.res.ToolCalls = append(a.res.ToolCalls, call)
}

func (a *assembler) forward(chunk translator.ChatChunk) *errors.APIError {
	if a.emit == nil {
		return nil
	}
	if err := a.emit(chunk); err != nil {
		return errors.New(499, "client_disconnected", "connection_error", err.Error())
	}
	return nil
}
