package streaming

import (
	"context"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"ag2api-go/internal/common"
	"ag2api-go/internal/constants"
	"ag2api-go/internal/errors"
	"ag2api-go/internal/monitoring"
	"ag2api-go/internal/translator"
	"ag2api-go/internal/upstream"
)

// Executor is the upstream call surface the controller drives.
// *upstream.Engine satisfies it.
type Executor interface {
	Execute(ctx context.Context, req *translator.Request, stream bool) (*upstream.Response, *errors.APIError)
}

// Controller runs a chat completion to its true end: it watches each
// round for truncation and keeps asking the model to continue, up to
// the configured cap, gluing the rounds into one seamless stream.
type Controller struct {
	exec      Executor
	marker    common.Marker
	maxRounds int
	enabled   bool
}

type ControllerOptions struct {
	Marker    common.Marker
	MaxRounds int
	Enabled   bool
}

func NewController(exec Executor, opts ControllerOptions) *Controller {
	rounds := opts.MaxRounds
	if rounds <= 0 {
		rounds = constants.DefaultMaxContinuations
	}
	return &Controller{
		exec:      exec,
		marker:    opts.Marker,
		maxRounds: rounds,
		enabled:   opts.Enabled,
	}
}

// Stream runs the request against a streaming upstream, forwarding
// deltas through emit. The returned result carries everything needed
// for the finish chunk; a non-nil error after a non-empty result means
// the stream failed midway.
func (c *Controller) Stream(ctx context.Context, req *translator.Request, id string, emit Emit) (*translator.Result, *errors.APIError) {
	return c.run(ctx, req, id, emit, true)
}

// Complete runs the request against the buffered (non-streaming)
// upstream call. Continuation applies only when the variant asks for
// it and the caller consumes a stream built from the buffer; plain
// non-stream requests get a single round.
func (c *Controller) Complete(ctx context.Context, req *translator.Request, continuation bool) (*translator.Result, *errors.APIError) {
	if !continuation && c.antiTruncationActive(req) {
		log.WithField("model", req.Variant.Exposed).
			Warn("anti-truncation requested on a non-streaming request; ignoring")
		plain := *req
		plain.Variant.AntiTruncation = false
		return c.run(ctx, &plain, "", nil, false)
	}
	return c.run(ctx, req, "", nil, false)
}

func (c *Controller) antiTruncationActive(req *translator.Request) bool {
	return c.enabled && req.Variant.AntiTruncation
}

func (c *Controller) run(ctx context.Context, req *translator.Request, id string, emit Emit, streamUpstream bool) (*translator.Result, *errors.APIError) {
	antiTrunc := c.antiTruncationActive(req)

	base := req
	if antiTrunc {
		instructed := *req
		instructed.System = joinSystem(req.System, c.marker.Instruction())
		base = &instructed
	}
	work := base

	res := &translator.Result{}
	asm := &assembler{
		family: req.Variant.Family,
		res:    res,
		scrub:  NewScrubber(c.marker),
		id:     id,
		model:  req.Variant.Exposed,
		emit:   emit,
	}

	for round := 0; ; round++ {
		finish, apiErr := c.oneRound(ctx, work, asm, streamUpstream)
		if apiErr != nil {
			return res, apiErr
		}

		if !antiTrunc || len(res.ToolCalls) > 0 {
			break
		}
		truncated := finish == "length" || !asm.scrub.Seen()
		if !truncated {
			monitoring.ContinuationRounds.WithLabelValues("complete").Inc()
			break
		}
		if round >= c.maxRounds {
			res.Truncated = true
			monitoring.ContinuationRounds.WithLabelValues("exhausted").Inc()
			log.WithFields(log.Fields{
				"model":  req.Variant.Exposed,
				"rounds": round + 1,
			}).Warn("continuation budget exhausted, returning partial output")
			break
		}

		monitoring.ContinuationRounds.WithLabelValues("continued").Inc()
		log.WithFields(log.Fields{
			"model":  req.Variant.Exposed,
			"round":  round + 1,
			"finish": finish,
		}).Info("output truncated, requesting continuation")

		// Rebuild from the original turns every round; res.Content already
		// carries everything produced so far, so chaining off the previous
		// round's request would repeat earlier output in the history.
		work = base.WithContinuation(res.Content, c.marker.ContinuationPrompt())
		asm.scrub.Reset()
	}

	if apiErr := asm.flushTail(); apiErr != nil {
		return res, apiErr
	}
	if res.FinishReason == "" {
		res.FinishReason = "stop"
	}
	return res, nil
}

func (c *Controller) oneRound(ctx context.Context, req *translator.Request, asm *assembler, streamUpstream bool) (string, *errors.APIError) {
	resp, apiErr := c.exec.Execute(ctx, req, streamUpstream)
	if apiErr != nil {
		return "", apiErr
	}
	defer resp.Body.Close()

	if streamUpstream {
		return asm.consumeSSE(resp.Body)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.MapNetworkError(err)
	}
	return asm.consumeJSON(body)
}

func joinSystem(system, instruction string) string {
	if strings.TrimSpace(system) == "" {
		return instruction
	}
	return system + "\n\n" + instruction
}
