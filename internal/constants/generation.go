package constants

// Generation parameter bounds shared by both upstream wire families.
const (
	DefaultTopK     = 64
	MaxTopK         = 64
	MaxOutputTokens = 65535

	// Antigravity defaults mirror the desktop client.
	AntigravityDefaultTopP        = 0.85
	AntigravityDefaultTopK        = 50
	AntigravityDefaultTemperature = 1.0
	AntigravityDefaultMaxTokens   = 8096

	// Thinking budgets keyed by reasoning effort.
	ThinkingBudgetOff    = 0
	ThinkingBudgetAuto   = -1
	ThinkingBudgetLow    = 1024
	ThinkingBudgetMedium = 8192
	ThinkingBudgetHigh   = 24576
)
