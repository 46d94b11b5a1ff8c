package translator

import (
	"encoding/json"

	"ag2api-go/internal/models"
)

// Request is the parsed, family-independent form of an OpenAI chat
// completions request. Wire builders turn it into the payload each
// upstream family expects.
type Request struct {
	Variant models.Variant
	System  string
	Turns   []Turn
	Tools   []Tool
	Gen     GenParams
	Stream  bool
}

// Turn is one conversation entry after role normalization: "user" or
// "model". System messages are hoisted into Request.System.
type Turn struct {
	Role  string
	Parts []Part
}

// Part holds exactly one of its pointer members (Text counts as set
// when non-empty, or when the part carries a thought flag).
type Part struct {
	Text    string
	Thought bool
	Blob    *Blob
	Call    *FunctionCall
	Result  *FunctionResult
}

// Blob is inline binary data, already base64 encoded.
type Blob struct {
	MIMEType string
	Data     string
}

// FunctionCall is a tool invocation request from the model.
// Arguments is the raw JSON argument object.
type FunctionCall struct {
	ID        string
	Name      string
	Arguments string
}

// FunctionResult is the tool's reply, matched back to the call by ID.
type FunctionResult struct {
	CallID string
	Name   string
	Output string
}

// Tool is an OpenAI function declaration. Parameters is passed through
// verbatim apart from schema cleanup.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// GenParams carries the caller's sampling knobs. Nil pointers mean
// "not supplied"; builders fill family defaults.
type GenParams struct {
	Temperature      *float64
	TopP             *float64
	TopK             *int
	MaxTokens        *int
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Seed             *int
	CandidateCount   int
	Stop             []string
	ReasoningEffort  string
	ResponseMIMEType string
	ResponseSchema   json.RawMessage
}

// EventKind discriminates StreamEvent.
type EventKind int

const (
	EventThought EventKind = iota
	EventText
	EventToolCall
	EventUsage
	EventFinish
)

// StreamEvent is one normalized unit decoded from an upstream stream
// chunk. Exactly the fields implied by Kind are set; Usage rides along
// on the finish event when the upstream reported it.
type StreamEvent struct {
	Kind         EventKind
	Text         string
	Call         *FunctionCall
	FinishReason string
	Usage        *Usage
}

// Usage is token accounting copied from upstream usageMetadata.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	ThoughtTokens    int64
}

// Add merges another usage report, keeping the latest prompt count and
// summing generated tokens across continuation rounds.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	if other.PromptTokens > 0 {
		u.PromptTokens = other.PromptTokens
	}
	u.CompletionTokens += other.CompletionTokens
	u.ThoughtTokens += other.ThoughtTokens
}

// WithContinuation returns a copy of the request extended with the
// output produced so far and a user turn asking the model to resume.
// The original request is left untouched so every retry starts clean.
func (r *Request) WithContinuation(accumulated, prompt string) *Request {
	next := *r
	next.Turns = make([]Turn, 0, len(r.Turns)+2)
	next.Turns = append(next.Turns, r.Turns...)
	if accumulated != "" {
		next.Turns = append(next.Turns, Turn{
			Role:  "model",
			Parts: []Part{{Text: accumulated}},
		})
	}
	next.Turns = append(next.Turns, Turn{
		Role:  "user",
		Parts: []Part{{Text: prompt}},
	})
	return &next
}
