package translator

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"ag2api-go/internal/credential"
)

// TranslateEvent decodes one upstream stream chunk into normalized
// events. Both families wrap the generateContent response in a
// "response" envelope; bare candidates are accepted too so the same
// decoder serves non-stream bodies. A chunk that is not valid JSON, or
// that carries an upstream error object, fails loudly.
func TranslateEvent(family credential.Family, payload []byte) ([]StreamEvent, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("upstream chunk is not valid JSON: %.80s", payload)
	}
	root := gjson.ParseBytes(payload)
	if errObj := root.Get("error"); errObj.Exists() {
		return nil, fmt.Errorf("upstream error in stream: %s", errObj.Get("message").String())
	}

	body := root.Get("response")
	if !body.Exists() {
		body = root
	}

	candidates := body.Get("candidates").Array()
	if len(candidates) == 0 {
		// Keep-alive chunks with only metadata are legal; surface usage
		// if present so the assembler keeps its accounting current.
		if usage := decodeUsage(body.Get("usageMetadata")); usage != nil {
			return []StreamEvent{{Kind: EventUsage, Usage: usage}}, nil
		}
		return nil, nil
	}
	candidate := candidates[0]

	var events []StreamEvent
	for _, part := range candidate.Get("content.parts").Array() {
		if ev, ok := decodePart(family, part); ok {
			events = append(events, ev)
		}
	}

	if fr := candidate.Get("finishReason"); fr.Exists() && fr.String() != "" {
		events = append(events, StreamEvent{
			Kind:         EventFinish,
			FinishReason: mapFinishReason(fr.String()),
			Usage:        decodeUsage(body.Get("usageMetadata")),
		})
	}
	return events, nil
}

func decodePart(family credential.Family, part gjson.Result) (StreamEvent, bool) {
	if fnCall := part.Get("functionCall"); fnCall.Exists() {
		return StreamEvent{
			Kind: EventToolCall,
			Call: &FunctionCall{
				ID:        fnCall.Get("id").String(),
				Name:      fnCall.Get("name").String(),
				Arguments: decodeCallArgs(family, fnCall.Get("args")),
			},
		}, true
	}
	if text := part.Get("text"); text.Exists() {
		kind := EventText
		if part.Get("thought").Bool() {
			kind = EventThought
		}
		return StreamEvent{Kind: kind, Text: text.String()}, true
	}
	return StreamEvent{}, false
}

// decodeCallArgs restores the OpenAI arguments string. The antigravity
// wire tunnels it through args.query; gemini-cli carries a real object.
func decodeCallArgs(family credential.Family, args gjson.Result) string {
	if family == credential.FamilyAntigravity {
		if query := args.Get("query"); query.Exists() {
			return query.String()
		}
	}
	if !args.Exists() {
		return "{}"
	}
	if args.IsObject() || args.IsArray() {
		encoded, err := json.Marshal(args.Value())
		if err != nil {
			return "{}"
		}
		return string(encoded)
	}
	return args.Raw
}

func decodeUsage(usage gjson.Result) *Usage {
	if !usage.Exists() {
		return nil
	}
	return &Usage{
		PromptTokens:     usage.Get("promptTokenCount").Int(),
		CompletionTokens: usage.Get("candidatesTokenCount").Int(),
		ThoughtTokens:    usage.Get("thoughtsTokenCount").Int(),
	}
}

func mapFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return "content_filter"
	default:
		return "stop"
	}
}
