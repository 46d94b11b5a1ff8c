package openai

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"ag2api-go/internal/errors"
	"ag2api-go/internal/handlers/common"
	"ag2api-go/internal/logging"
	"ag2api-go/internal/monitoring"
	"ag2api-go/internal/translator"
)

const maxRequestBodyBytes = 32 * 1024 * 1024

// healthReply answers the conventional single-"Hi" liveness probe without
// touching any upstream.
const healthReply = "ag2api is running"

// ChatCompletions handles POST /v1/chat/completions for both stream and
// non-stream requests.
func (h *Handler) ChatCompletions(c *gin.Context) {
	body, readErr := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBodyBytes))
	if readErr != nil {
		common.WriteAPIError(c, errors.New(http.StatusBadRequest, "invalid_request", "invalid_request_error", "failed to read request body"))
		return
	}

	req, apiErr := translator.ParseChatRequest(body)
	if apiErr != nil {
		common.WriteAPIError(c, apiErr)
		return
	}
	if h.modelDisabled(req.Variant.Exposed) {
		common.WriteAPIError(c, errors.New(http.StatusNotFound, "model_not_found", "invalid_request_error",
			"model "+req.Variant.Exposed+" is disabled"))
		return
	}

	if isHealthProbe(req) {
		h.writeHealthReply(c, req.Variant.Exposed)
		return
	}

	logging.WithReq(c, log.Fields{
		"model":  req.Variant.Exposed,
		"family": string(req.Variant.Family),
		"stream": req.Stream,
	}).Info("chat_request")

	id := translator.NewCompletionID()
	switch {
	case req.Stream && req.Variant.FakeStream:
		h.fakeStream(c, req, id)
	case req.Stream:
		h.stream(c, req, id)
	default:
		h.complete(c, req)
	}
}

func (h *Handler) stream(c *gin.Context, req *translator.Request, id string) {
	monitoring.ActiveStreams.Inc()
	defer monitoring.ActiveStreams.Dec()

	sw := common.NewStreamWriter(c)
	model := req.Variant.Exposed
	emit := func(chunk translator.ChatChunk) error {
		if !sw.Opened() {
			if err := sw.WriteChunk(translator.RoleChunk(id, model)); err != nil {
				return err
			}
		}
		return sw.WriteChunk(chunk)
	}

	res, apiErr := h.ctrl.Stream(c.Request.Context(), req, id, emit)
	if apiErr != nil {
		if sw.Opened() {
			logging.WithReq(c, log.Fields{"model": model, "code": apiErr.Code}).Warn("stream aborted mid-flight")
			sw.WriteError(apiErr)
			return
		}
		common.WriteAPIError(c, apiErr)
		return
	}
	h.finishStream(sw, id, model, res)
}

func (h *Handler) fakeStream(c *gin.Context, req *translator.Request, id string) {
	monitoring.ActiveStreams.Inc()
	defer monitoring.ActiveStreams.Dec()

	sw := common.NewStreamWriter(c)
	model := req.Variant.Exposed
	if err := sw.WriteChunk(translator.RoleChunk(id, model)); err != nil {
		return
	}

	res, apiErr := h.emu.Run(c.Request.Context(), req, id, sw.WriteChunk)
	if apiErr != nil {
		sw.WriteError(apiErr)
		return
	}
	h.finishStream(sw, id, model, res)
}

func (h *Handler) finishStream(sw *common.StreamWriter, id, model string, res *translator.Result) {
	if !sw.Opened() {
		if err := sw.WriteChunk(translator.RoleChunk(id, model)); err != nil {
			return
		}
	}
	for i, call := range res.ToolCalls {
		if err := sw.WriteChunk(translator.ToolCallChunk(id, model, i, call)); err != nil {
			return
		}
	}
	reason := res.FinishReason
	if res.Truncated {
		reason = "length"
	}
	if len(res.ToolCalls) > 0 {
		reason = "tool_calls"
	}
	if err := sw.WriteChunk(translator.FinishChunk(id, model, reason)); err != nil {
		return
	}
	sw.WriteDone()
}

func (h *Handler) complete(c *gin.Context, req *translator.Request) {
	res, apiErr := h.ctrl.Complete(c.Request.Context(), req, false)
	if apiErr != nil {
		common.WriteAPIError(c, apiErr)
		return
	}
	body, err := translator.BuildCompletion(req.Variant.Exposed, res)
	if err != nil {
		common.WriteAPIError(c, errors.New(http.StatusInternalServerError, "internal_error", "api_error", err.Error()))
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (h *Handler) modelDisabled(model string) bool {
	for _, d := range h.cfg.DisabledModels {
		if strings.EqualFold(d, model) {
			return true
		}
	}
	return false
}

// isHealthProbe matches the conventional liveness request: exactly one
// user message whose content is the literal "Hi".
func isHealthProbe(req *translator.Request) bool {
	if len(req.Turns) != 1 || len(req.Tools) > 0 || req.System != "" {
		return false
	}
	t := req.Turns[0]
	return t.Role == "user" && len(t.Parts) == 1 && t.Parts[0].Text == "Hi"
}

func (h *Handler) writeHealthReply(c *gin.Context, model string) {
	body, err := translator.BuildCompletion(model, &translator.Result{
		Content:      healthReply,
		FinishReason: "stop",
	})
	if err != nil {
		common.WriteAPIError(c, errors.New(http.StatusInternalServerError, "internal_error", "api_error", err.Error()))
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}
