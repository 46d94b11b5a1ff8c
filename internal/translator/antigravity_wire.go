package translator

import (
	"encoding/json"
	"math/rand"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"ag2api-go/internal/constants"
)

// DefaultSystemInstruction is sent when the caller supplies no system
// message; the antigravity endpoint rejects an empty instruction.
const DefaultSystemInstruction = "You are a helpful AI assistant."

// antigravityStopSequences are the desktop client's fixed control
// tokens; caller-provided stops are appended after them.
var antigravityStopSequences = []string{
	"<|user|>",
	"<|bot|>",
	"<|context_request|>",
	"<|endoftext|>",
	"<|end_of_turn|>",
}

type antigravityPayload struct {
	Project   string             `json:"project"`
	RequestID string             `json:"requestId"`
	Request   antigravityRequest `json:"request"`
	Model     string             `json:"model"`
	UserAgent string             `json:"userAgent"`
}

type antigravityRequest struct {
	Contents          []wireContent         `json:"contents"`
	SystemInstruction wireSystemInstruction `json:"systemInstruction"`
	Tools             []wireTool            `json:"tools"`
	ToolConfig        wireToolConfig        `json:"toolConfig"`
	GenerationConfig  wireGenerationConfig  `json:"generationConfig"`
	SessionID         string                `json:"sessionId"`
}

// BuildAntigravityPayload renders the intermediate request as an
// antigravity generateContent envelope. Request and session ids are
// synthesized per call, matching the desktop client.
func BuildAntigravityPayload(req *Request, project string) ([]byte, error) {
	system := req.System
	if system == "" {
		system = DefaultSystemInstruction
	}

	tools := wireTools(req.Tools)
	if tools == nil {
		tools = []wireTool{}
	}

	payload := antigravityPayload{
		Project:   project,
		RequestID: "agent-" + uuid.NewString(),
		Model:     req.Variant.Base,
		UserAgent: constants.AntigravityClientName,
		Request: antigravityRequest{
			Contents: buildContents(req, wireAntigravity),
			SystemInstruction: wireSystemInstruction{
				Role:  "user",
				Parts: []wirePart{{Text: system}},
			},
			Tools: tools,
			ToolConfig: wireToolConfig{
				FunctionCallingConfig: wireFunctionCallingConfig{Mode: "VALIDATED"},
			},
			GenerationConfig: antigravityGenerationConfig(req),
			SessionID:        newSessionID(),
		},
	}
	return json.Marshal(payload)
}

func antigravityGenerationConfig(req *Request) wireGenerationConfig {
	gen := req.Gen
	thinking := thinkingEnabled(req.Variant)

	topP := constants.AntigravityDefaultTopP
	if gen.TopP != nil {
		topP = *gen.TopP
	}
	topK := constants.AntigravityDefaultTopK
	if gen.TopK != nil && *gen.TopK > 0 {
		topK = *gen.TopK
	}
	temperature := constants.AntigravityDefaultTemperature
	if gen.Temperature != nil {
		temperature = *gen.Temperature
	}
	maxTokens := constants.AntigravityDefaultMaxTokens
	if gen.MaxTokens != nil {
		maxTokens = clampMaxTokens(*gen.MaxTokens)
	}

	budget := constants.ThinkingBudgetOff
	if thinking {
		budget = constants.ThinkingBudgetLow
	}

	cfg := wireGenerationConfig{
		TopP:            &topP,
		TopK:            topK,
		Temperature:     &temperature,
		CandidateCount:  1,
		MaxOutputTokens: maxTokens,
		StopSequences:   append(append([]string{}, antigravityStopSequences...), gen.Stop...),
		ThinkingConfig: &wireThinkingConfig{
			IncludeThoughts: thinking,
			ThinkingBudget:  budget,
		},
	}

	// Claude models reject topP while thinking is on.
	if thinking && strings.Contains(strings.ToLower(req.Variant.Base), "claude") {
		cfg.TopP = nil
	}
	return cfg
}

// newSessionID returns a large negative decimal, the shape the desktop
// client sends.
func newSessionID() string {
	n := rand.Int63n(9_000_000_000_000_000_000-1_000_000_000_000_000_000) + 1_000_000_000_000_000_000
	return "-" + strconv.FormatInt(n, 10)
}
