package translator

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"ag2api-go/internal/errors"
	"ag2api-go/internal/models"
)

func invalidRequest(message string) *errors.APIError {
	return errors.New(400, "invalid_request", "invalid_request_error", message)
}

// ParseChatRequest decodes an OpenAI chat completions body into the
// typed intermediate. The model name must already be known to the
// catalog; empty or malformed messages are rejected here so the wire
// builders can assume a well-formed conversation.
func ParseChatRequest(rawJSON []byte) (*Request, *errors.APIError) {
	if !gjson.ValidBytes(rawJSON) {
		return nil, invalidRequest("request body is not valid JSON")
	}
	root := gjson.ParseBytes(rawJSON)

	modelName := root.Get("model").String()
	if modelName == "" {
		return nil, invalidRequest("model is required")
	}
	variant := models.Parse(modelName)
	if !variant.Known() {
		return nil, errors.New(404, "model_not_found", "invalid_request_error",
			"model not found: "+modelName)
	}

	messages := root.Get("messages")
	if !messages.IsArray() || len(messages.Array()) == 0 {
		return nil, invalidRequest("messages must be a non-empty array")
	}

	req := &Request{
		Variant: variant,
		Stream:  root.Get("stream").Bool(),
	}

	var sysBuf strings.Builder
	for _, msg := range messages.Array() {
		role := msg.Get("role").String()
		content := msg.Get("content")

		switch role {
		case "system", "developer":
			text := flattenText(content)
			if text != "" {
				if sysBuf.Len() > 0 {
					sysBuf.WriteString("\n")
				}
				sysBuf.WriteString(text)
			}

		case "user":
			parts, err := convertUserContent(content)
			if err != nil {
				return nil, err
			}
			if len(parts) == 0 {
				continue
			}
			req.Turns = append(req.Turns, Turn{Role: "user", Parts: parts})

		case "assistant":
			turn := Turn{Role: "model"}
			if text := flattenText(content); text != "" {
				turn.Parts = append(turn.Parts, Part{Text: text})
			}
			for _, tc := range msg.Get("tool_calls").Array() {
				if tc.Get("type").String() != "function" {
					continue
				}
				args := tc.Get("function.arguments").String()
				if args == "" {
					args = "{}"
				}
				turn.Parts = append(turn.Parts, Part{Call: &FunctionCall{
					ID:        tc.Get("id").String(),
					Name:      tc.Get("function.name").String(),
					Arguments: args,
				}})
			}
			if len(turn.Parts) == 0 {
				continue
			}
			req.Turns = append(req.Turns, turn)

		case "tool":
			callID := msg.Get("tool_call_id").String()
			result := &FunctionResult{
				CallID: callID,
				Name:   msg.Get("name").String(),
				Output: flattenText(content),
			}
			if result.Name == "" {
				result.Name = findCallName(req.Turns, callID)
			}
			req.Turns = append(req.Turns, Turn{
				Role:  "user",
				Parts: []Part{{Result: result}},
			})

		default:
			return nil, invalidRequest("unsupported message role: " + role)
		}
	}
	req.System = sysBuf.String()

	if len(req.Turns) == 0 {
		return nil, invalidRequest("messages contain no sendable content")
	}
	req.Turns = mergeAdjacentTurns(req.Turns)

	for _, tool := range root.Get("tools").Array() {
		if tool.Get("type").String() != "function" {
			continue
		}
		fn := tool.Get("function")
		req.Tools = append(req.Tools, Tool{
			Name:        fn.Get("name").String(),
			Description: fn.Get("description").String(),
			Parameters:  cleanSchema(fn.Get("parameters")),
		})
	}

	gen, err := parseGenParams(root)
	if err != nil {
		return nil, err
	}
	req.Gen = gen

	return req, nil
}

func parseGenParams(root gjson.Result) (GenParams, *errors.APIError) {
	var gen GenParams
	gen.CandidateCount = 1

	if v := root.Get("temperature"); v.Exists() {
		f := v.Float()
		gen.Temperature = &f
	}
	if v := root.Get("top_p"); v.Exists() {
		f := v.Float()
		gen.TopP = &f
	}
	if v := root.Get("top_k"); v.Exists() {
		n := int(v.Int())
		gen.TopK = &n
	}
	maxTokens := -1
	if v := root.Get("max_tokens"); v.Exists() {
		maxTokens = int(v.Int())
	}
	if v := root.Get("max_completion_tokens"); v.Exists() {
		maxTokens = int(v.Int())
	}
	if maxTokens >= 0 {
		if maxTokens == 0 {
			return gen, invalidRequest("max_tokens must be positive")
		}
		gen.MaxTokens = &maxTokens
	}
	if v := root.Get("frequency_penalty"); v.Exists() {
		f := v.Float()
		gen.FrequencyPenalty = &f
	}
	if v := root.Get("presence_penalty"); v.Exists() {
		f := v.Float()
		gen.PresencePenalty = &f
	}
	if v := root.Get("seed"); v.Exists() {
		n := int(v.Int())
		gen.Seed = &n
	}
	if v := root.Get("n"); v.Exists() && v.Int() > 0 {
		gen.CandidateCount = int(v.Int())
	}
	if v := root.Get("stop"); v.Exists() {
		if v.IsArray() {
			for _, s := range v.Array() {
				gen.Stop = append(gen.Stop, s.String())
			}
		} else {
			gen.Stop = append(gen.Stop, v.String())
		}
	}
	gen.ReasoningEffort = root.Get("reasoning_effort").String()

	if rf := root.Get("response_format"); rf.Exists() {
		switch rf.Get("type").String() {
		case "json_object":
			gen.ResponseMIMEType = "application/json"
		case "json_schema":
			gen.ResponseMIMEType = "application/json"
			if schema := rf.Get("json_schema.schema"); schema.Exists() {
				gen.ResponseSchema = cleanSchema(schema)
			}
		}
	}

	return gen, nil
}

// convertUserContent turns an OpenAI content value (string or
// multimodal array) into intermediate parts.
func convertUserContent(content gjson.Result) ([]Part, *errors.APIError) {
	if !content.IsArray() {
		text := content.String()
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return []Part{{Text: text}}, nil
	}

	var parts []Part
	for _, item := range content.Array() {
		switch item.Get("type").String() {
		case "text":
			if text := item.Get("text").String(); text != "" {
				parts = append(parts, Part{Text: text})
			}
		case "image_url":
			url := item.Get("image_url.url").String()
			blob, err := decodeDataURI(url)
			if err != nil {
				return nil, err
			}
			parts = append(parts, Part{Blob: blob})
		default:
			// Unknown part types are dropped rather than forwarded; the
			// upstream rejects shapes it does not know with a hard 400.
		}
	}
	return parts, nil
}

// decodeDataURI validates a data:image/...;base64,... attachment.
// Remote URLs are not fetched.
func decodeDataURI(url string) (*Blob, *errors.APIError) {
	if !strings.HasPrefix(url, "data:") {
		return nil, invalidRequest("image_url must be a base64 data URI")
	}
	head, data, ok := strings.Cut(url, ";base64,")
	if !ok || data == "" {
		return nil, invalidRequest("image data URI is not base64 encoded")
	}
	mimeType := strings.TrimPrefix(head, "data:")
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, invalidRequest("unsupported attachment MIME type: " + mimeType)
	}
	return &Blob{MIMEType: mimeType, Data: data}, nil
}

// flattenText collapses a content value to plain text, joining the
// text members of a multimodal array.
func flattenText(content gjson.Result) string {
	if !content.IsArray() {
		return content.String()
	}
	var b strings.Builder
	for _, item := range content.Array() {
		if item.Get("type").String() == "text" {
			b.WriteString(item.Get("text").String())
		}
	}
	return b.String()
}

// findCallName resolves a tool_call_id back to the function name from
// the preceding model turns.
func findCallName(turns []Turn, callID string) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != "model" {
			continue
		}
		for _, part := range turns[i].Parts {
			if part.Call != nil && part.Call.ID == callID {
				return part.Call.Name
			}
		}
	}
	return ""
}

// mergeAdjacentTurns folds consecutive same-role turns together. Both
// upstreams expect strict user/model alternation.
func mergeAdjacentTurns(turns []Turn) []Turn {
	if len(turns) <= 1 {
		return turns
	}
	merged := turns[:1]
	for _, turn := range turns[1:] {
		last := &merged[len(merged)-1]
		if turn.Role == last.Role {
			last.Parts = append(last.Parts, turn.Parts...)
			continue
		}
		merged = append(merged, turn)
	}
	return merged
}

// cleanSchema strips JSON-Schema metadata keys the upstreams reject.
func cleanSchema(schema gjson.Result) json.RawMessage {
	if !schema.Exists() {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(schema.Raw), &obj); err != nil {
		return json.RawMessage(schema.Raw)
	}
	delete(obj, "$schema")
	delete(obj, "additionalProperties")
	out, err := json.Marshal(obj)
	if err != nil {
		return json.RawMessage(schema.Raw)
	}
	return out
}
