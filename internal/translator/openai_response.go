package translator

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OpenAI response wire shapes.

type ChatChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Delta struct {
	Role             string          `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
}

type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionBody `json:"function"`
}

type FunctionBody struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type ChatCompletion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   UsageBody          `json:"usage"`
}

type CompletionChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Message struct {
	Role             string         `json:"role"`
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCallBody `json:"tool_calls,omitempty"`
}

type ToolCallBody struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionBody `json:"function"`
}

type UsageBody struct {
	PromptTokens     int64        `json:"prompt_tokens"`
	CompletionTokens int64        `json:"completion_tokens"`
	TotalTokens      int64        `json:"total_tokens"`
	Details          UsageDetails `json:"completion_tokens_details"`
}

type UsageDetails struct {
	ReasoningTokens int64 `json:"reasoning_tokens"`
}

// Result is the fully assembled outcome of one logical completion,
// after any continuation rounds.
type Result struct {
	Content      string
	Reasoning    string
	ToolCalls    []FunctionCall
	FinishReason string
	Usage        Usage
	Truncated    bool
}

// NewCompletionID returns a fresh chat completion id shared by every
// chunk of one stream.
func NewCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

func newChunk(id, model string) ChatChunk {
	return ChatChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChunkChoice{{Index: 0}},
	}
}

// RoleChunk opens the stream with the assistant role delta.
func RoleChunk(id, model string) ChatChunk {
	c := newChunk(id, model)
	c.Choices[0].Delta.Role = "assistant"
	return c
}

// TextChunk carries one content delta.
func TextChunk(id, model, text string) ChatChunk {
	c := newChunk(id, model)
	c.Choices[0].Delta.Content = text
	return c
}

// ReasoningChunk carries one thought delta.
func ReasoningChunk(id, model, text string) ChatChunk {
	c := newChunk(id, model)
	c.Choices[0].Delta.ReasoningContent = text
	return c
}

// ToolCallChunk emits one complete tool call at the given slot.
func ToolCallChunk(id, model string, index int, call FunctionCall) ChatChunk {
	c := newChunk(id, model)
	c.Choices[0].Delta.ToolCalls = []ToolCallDelta{{
		Index: index,
		ID:    call.ID,
		Type:  "function",
		Function: FunctionBody{
			Name:      call.Name,
			Arguments: call.Arguments,
		},
	}}
	return c
}

// HeartbeatChunk is an empty delta used to keep the connection alive.
func HeartbeatChunk(id, model string) ChatChunk {
	return newChunk(id, model)
}

// FinishChunk closes the stream with the mapped finish reason.
func FinishChunk(id, model, reason string) ChatChunk {
	c := newChunk(id, model)
	c.Choices[0].FinishReason = &reason
	return c
}

// SSE renders the chunk as one server-sent event.
func (c ChatChunk) SSE() []byte {
	encoded, _ := json.Marshal(c)
	out := make([]byte, 0, len(encoded)+8)
	out = append(out, "data: "...)
	out = append(out, encoded...)
	out = append(out, "\n\n"...)
	return out
}

// DoneSSE is the terminal sentinel of an OpenAI stream.
func DoneSSE() []byte {
	return []byte("data: [DONE]\n\n")
}

// BuildCompletion renders the assembled result as a non-streaming chat
// completion body.
func BuildCompletion(model string, res *Result) ([]byte, error) {
	msg := Message{
		Role:             "assistant",
		Content:          res.Content,
		ReasoningContent: res.Reasoning,
	}
	for _, call := range res.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCallBody{
			ID:   call.ID,
			Type: "function",
			Function: FunctionBody{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}

	finish := res.FinishReason
	if res.Truncated {
		finish = "length"
	}
	if len(res.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	if finish == "" {
		finish = "stop"
	}

	completion := ChatCompletion{
		ID:      NewCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []CompletionChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: finish,
		}},
		Usage: UsageBody{
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			TotalTokens:      res.Usage.PromptTokens + res.Usage.CompletionTokens,
			Details:          UsageDetails{ReasoningTokens: res.Usage.ThoughtTokens},
		},
	}
	return json.Marshal(completion)
}
