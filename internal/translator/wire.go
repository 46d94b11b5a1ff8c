package translator

import (
	"encoding/json"

	"ag2api-go/internal/constants"
	"ag2api-go/internal/models"
)

// Wire-level generateContent shapes shared by both families.

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	InlineData       *wireBlob         `json:"inlineData,omitempty"`
	FunctionCall     *wireFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *wireFunctionResp `json:"functionResponse,omitempty"`
}

type wireBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireFunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type wireFunctionResp struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type wireSystemInstruction struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireTool struct {
	FunctionDeclarations []wireFunctionDecl `json:"functionDeclarations"`
}

type wireFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireGenerationConfig struct {
	Temperature      *float64            `json:"temperature,omitempty"`
	TopP             *float64            `json:"topP,omitempty"`
	TopK             int                 `json:"topK,omitempty"`
	CandidateCount   int                 `json:"candidateCount"`
	MaxOutputTokens  int                 `json:"maxOutputTokens,omitempty"`
	FrequencyPenalty *float64            `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64            `json:"presencePenalty,omitempty"`
	Seed             *int                `json:"seed,omitempty"`
	StopSequences    []string            `json:"stopSequences,omitempty"`
	ResponseMIMEType string              `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage     `json:"responseSchema,omitempty"`
	ThinkingConfig   *wireThinkingConfig `json:"thinkingConfig,omitempty"`
}

type wireThinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
	ThinkingBudget  int  `json:"thinkingBudget"`
}

type wireToolConfig struct {
	FunctionCallingConfig wireFunctionCallingConfig `json:"functionCallingConfig"`
}

type wireFunctionCallingConfig struct {
	Mode string `json:"mode"`
}

// thinkingEnabled resolves the effective thinking switch for a variant:
// an explicit suffix wins, otherwise the base model's default applies.
func thinkingEnabled(v models.Variant) bool {
	switch v.Thinking {
	case models.ThinkingOff:
		return false
	case models.ThinkingOn, models.ThinkingMax:
		return true
	}
	return models.ThinkingDefault(v.Base)
}

// effortBudget maps a reasoning_effort string to a thinking budget.
func effortBudget(effort string) (budget int, include bool) {
	switch effort {
	case "none":
		return constants.ThinkingBudgetOff, false
	case "low":
		return constants.ThinkingBudgetLow, true
	case "medium":
		return constants.ThinkingBudgetMedium, true
	case "high":
		return constants.ThinkingBudgetHigh, true
	default:
		return constants.ThinkingBudgetAuto, true
	}
}

func clampTopK(value int) int {
	if value <= 0 {
		return constants.DefaultTopK
	}
	if value > constants.MaxTopK {
		return constants.MaxTopK
	}
	return value
}

func clampMaxTokens(value int) int {
	if value > constants.MaxOutputTokens {
		return constants.MaxOutputTokens
	}
	return value
}

// wireParts converts intermediate parts to the generateContent shape.
// Tool-call arguments arrive as a JSON string; gemini-cli wants the
// parsed object while antigravity wraps the string in a query field.
func wireParts(parts []Part, family wireFamily) []wirePart {
	out := make([]wirePart, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Blob != nil:
			out = append(out, wirePart{InlineData: &wireBlob{
				MIMEType: p.Blob.MIMEType,
				Data:     p.Blob.Data,
			}})
		case p.Call != nil:
			out = append(out, wirePart{FunctionCall: &wireFunctionCall{
				ID:   p.Call.ID,
				Name: p.Call.Name,
				Args: encodeCallArgs(p.Call.Arguments, family),
			}})
		case p.Result != nil:
			out = append(out, wirePart{FunctionResponse: &wireFunctionResp{
				ID:       p.Result.CallID,
				Name:     p.Result.Name,
				Response: encodeResultOutput(p.Result.Output),
			}})
		default:
			if p.Text == "" && !p.Thought {
				continue
			}
			out = append(out, wirePart{Text: p.Text, Thought: p.Thought})
		}
	}
	return out
}

type wireFamily int

const (
	wireGeminiCLI wireFamily = iota
	wireAntigravity
)

func encodeCallArgs(arguments string, family wireFamily) json.RawMessage {
	if family == wireAntigravity {
		wrapped, _ := json.Marshal(map[string]string{"query": arguments})
		return wrapped
	}
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	return json.RawMessage("{}")
}

func encodeResultOutput(output string) json.RawMessage {
	if json.Valid([]byte(output)) {
		var probe interface{}
		if err := json.Unmarshal([]byte(output), &probe); err == nil {
			if _, ok := probe.(map[string]interface{}); ok {
				return json.RawMessage(output)
			}
		}
	}
	wrapped, _ := json.Marshal(map[string]string{"output": output})
	return wrapped
}

func wireTools(tools []Tool) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{FunctionDeclarations: []wireFunctionDecl{{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}}})
	}
	return out
}
