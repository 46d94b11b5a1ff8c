package models

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ag2api-go/internal/credential"
)

func TestParsePlainGeminiModel(t *testing.T) {
	v := Parse("gemini-2.5-pro")
	require.Equal(t, credential.FamilyGeminiCLI, v.Family)
	require.Equal(t, "gemini-2.5-pro", v.Base)
	require.False(t, v.FakeStream)
	require.False(t, v.AntiTruncation)
	require.Equal(t, ThinkingDefaultLevel, v.Thinking)
	require.True(t, v.Known())
}

func TestParseAntigravityPrefix(t *testing.T) {
	v := Parse("ant/claude-sonnet-4-5")
	require.Equal(t, credential.FamilyAntigravity, v.Family)
	require.Equal(t, "claude-sonnet-4-5", v.Base)
	require.True(t, v.Known())
}

func TestParseFeatureSuffixes(t *testing.T) {
	v := Parse("gemini-2.5-flash:at:fake")
	require.Equal(t, "gemini-2.5-flash", v.Base)
	require.True(t, v.FakeStream)
	require.True(t, v.AntiTruncation)

	v = Parse("gemini-2.5-flash:fake")
	require.True(t, v.FakeStream)
	require.False(t, v.AntiTruncation)
}

func TestParseThinkingSuffixes(t *testing.T) {
	v := Parse("gemini-2.5-pro-maxthinking")
	require.Equal(t, ThinkingMax, v.Thinking)
	require.Equal(t, "gemini-2.5-pro", v.Base)

	v = Parse("gemini-2.5-pro-nothinking:fake")
	require.Equal(t, ThinkingOff, v.Thinking)
	require.Equal(t, "gemini-2.5-pro", v.Base)
	require.True(t, v.FakeStream)

	v = Parse("ant/claude-sonnet-4-5-thinking")
	require.Equal(t, ThinkingOn, v.Thinking)
	require.Equal(t, "claude-sonnet-4-5", v.Base)
	require.Equal(t, credential.FamilyAntigravity, v.Family)
}

func TestParseUnknownModel(t *testing.T) {
	v := Parse("gpt-4o")
	require.Equal(t, credential.FamilyGeminiCLI, v.Family)
	require.False(t, v.Known())
}

func TestExposedIDsCoverFamilies(t *testing.T) {
	ids := ExposedIDs(nil)
	require.Contains(t, ids, "gemini-2.5-pro")
	require.Contains(t, ids, "gemini-2.5-pro-maxthinking:fake")
	require.Contains(t, ids, "ant/gemini-3-pro-preview")
	require.Contains(t, ids, "ant/claude-sonnet-4-5-thinking:at")

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestExposedIDsHonorDisabledList(t *testing.T) {
	ids := ExposedIDs([]string{"gemini-2.5-pro"})
	require.NotContains(t, ids, "gemini-2.5-pro")
	require.Contains(t, ids, "gemini-2.5-pro:fake")
}

func TestThinkingDefault(t *testing.T) {
	require.True(t, ThinkingDefault("gemini-2.5-pro"))
	require.True(t, ThinkingDefault("gemini-3-pro-preview"))
	require.True(t, ThinkingDefault("gpt-oss-120b-medium"))
	require.False(t, ThinkingDefault("claude-sonnet-4-5"))
	require.False(t, ThinkingDefault("gemini-2.5-flash"))
}
