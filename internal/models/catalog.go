package models

import "ag2api-go/internal/credential"

// Base model catalogs per wire family. The gemini-cli list mirrors what the
// Code Assist endpoint serves; the antigravity list mirrors the desktop
// client's picker.
var (
	geminiCLIBases = []string{
		"gemini-2.5-pro",
		"gemini-2.5-flash",
	}

	antigravityBases = []string{
		"gemini-3-pro-preview",
		"claude-sonnet-4-5",
		"gpt-oss-120b-medium",
	}
)

// GeminiCLIBases returns the Code Assist base models.
func GeminiCLIBases() []string {
	return append([]string(nil), geminiCLIBases...)
}

// AntigravityBases returns the antigravity base models.
func AntigravityBases() []string {
	return append([]string(nil), antigravityBases...)
}

// BasesForFamily returns the base models served by one family.
func BasesForFamily(family credential.Family) []string {
	switch family {
	case credential.FamilyAntigravity:
		return AntigravityBases()
	default:
		return GeminiCLIBases()
	}
}

// ThinkingDefault reports whether the antigravity backend enables thinking
// for the model without an explicit suffix.
func ThinkingDefault(base string) bool {
	switch {
	case base == "gemini-2.5-pro":
		return true
	case len(base) >= len("gemini-3-pro-") && base[:len("gemini-3-pro-")] == "gemini-3-pro-":
		return true
	case base == "gpt-oss-120b-medium":
		return true
	}
	return false
}
