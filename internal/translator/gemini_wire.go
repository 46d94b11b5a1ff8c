package translator

import (
	"encoding/json"

	"ag2api-go/internal/models"
)

// Code Assist envelope: the generateContent request nests under
// "request" next to the model and project fields.
type geminiCLIPayload struct {
	Model   string           `json:"model"`
	Project string           `json:"project"`
	Request geminiCLIRequest `json:"request"`
}

type geminiCLIRequest struct {
	Contents          []wireContent          `json:"contents"`
	SystemInstruction *wireSystemInstruction `json:"systemInstruction,omitempty"`
	Tools             []wireTool             `json:"tools,omitempty"`
	GenerationConfig  wireGenerationConfig   `json:"generationConfig"`
}

// BuildGeminiCLIPayload renders the intermediate request as a Code
// Assist v1internal payload for the given project.
func BuildGeminiCLIPayload(req *Request, project string) ([]byte, error) {
	payload := geminiCLIPayload{
		Model:   req.Variant.Base,
		Project: project,
		Request: geminiCLIRequest{
			Contents:         buildContents(req, wireGeminiCLI),
			Tools:            wireTools(req.Tools),
			GenerationConfig: geminiCLIGenerationConfig(req),
		},
	}
	if req.System != "" {
		payload.Request.SystemInstruction = &wireSystemInstruction{
			Parts: []wirePart{{Text: req.System}},
		}
	}
	return json.Marshal(payload)
}

func buildContents(req *Request, family wireFamily) []wireContent {
	contents := make([]wireContent, 0, len(req.Turns))
	for _, turn := range req.Turns {
		parts := wireParts(turn.Parts, family)
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, wireContent{Role: turn.Role, Parts: parts})
	}
	return contents
}

func geminiCLIGenerationConfig(req *Request) wireGenerationConfig {
	gen := req.Gen
	cfg := wireGenerationConfig{
		Temperature:      gen.Temperature,
		TopP:             gen.TopP,
		TopK:             clampTopK(intOrZero(gen.TopK)),
		CandidateCount:   gen.CandidateCount,
		FrequencyPenalty: gen.FrequencyPenalty,
		PresencePenalty:  gen.PresencePenalty,
		Seed:             gen.Seed,
		StopSequences:    gen.Stop,
		ResponseMIMEType: gen.ResponseMIMEType,
		ResponseSchema:   gen.ResponseSchema,
	}
	if gen.MaxTokens != nil {
		cfg.MaxOutputTokens = clampMaxTokens(*gen.MaxTokens)
	}
	cfg.ThinkingConfig = geminiCLIThinkingConfig(req)
	return cfg
}

// geminiCLIThinkingConfig prefers an explicit reasoning_effort, then
// the model-name suffix, then the base model's default. A nil return
// leaves thinking to upstream defaults.
func geminiCLIThinkingConfig(req *Request) *wireThinkingConfig {
	if req.Gen.ReasoningEffort != "" {
		budget, include := effortBudget(req.Gen.ReasoningEffort)
		return &wireThinkingConfig{IncludeThoughts: include, ThinkingBudget: budget}
	}
	switch req.Variant.Thinking {
	case models.ThinkingOff:
		return &wireThinkingConfig{IncludeThoughts: false, ThinkingBudget: 0}
	case models.ThinkingOn:
		return &wireThinkingConfig{IncludeThoughts: true, ThinkingBudget: -1}
	case models.ThinkingMax:
		budget, _ := effortBudget("high")
		return &wireThinkingConfig{IncludeThoughts: true, ThinkingBudget: budget}
	}
	if thinkingEnabled(req.Variant) {
		return &wireThinkingConfig{IncludeThoughts: true, ThinkingBudget: -1}
	}
	return nil
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
