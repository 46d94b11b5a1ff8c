package models

import (
	"strings"

	"ag2api-go/internal/credential"
)

// Exposed model name grammar:
//
//	[ant/]<base>[-maxthinking|-nothinking|-thinking][:fake][:at]
//
// The ant/ prefix routes to the antigravity family; everything else goes to
// gemini-cli. The :fake suffix turns on fake streaming, :at turns on
// anti-truncation continuation. Thinking suffixes tune reasoning budgets.
const (
	AntigravityPrefix   = "ant/"
	FakeStreamSuffix    = ":fake"
	AntiTruncSuffix     = ":at"
	MaxThinkingSuffix   = "-maxthinking"
	NoThinkingSuffix    = "-nothinking"
	PlainThinkingSuffix = "-thinking"
)

// Thinking level parsed from the exposed model name.
type Thinking string

const (
	ThinkingDefaultLevel Thinking = ""     // follow model defaults
	ThinkingOff          Thinking = "none" // suppress thinking
	ThinkingOn           Thinking = "on"   // enable with default budget
	ThinkingMax          Thinking = "max"  // enable with max budget
)

// Variant is the parsed form of an exposed model name.
type Variant struct {
	Exposed        string
	Base           string
	Family         credential.Family
	FakeStream     bool
	AntiTruncation bool
	Thinking       Thinking
}

// Parse decodes an exposed model name into its routing variant.
func Parse(model string) Variant {
	v := Variant{Exposed: model, Family: credential.FamilyGeminiCLI}
	rest := strings.TrimSpace(model)

	if strings.HasPrefix(rest, AntigravityPrefix) {
		v.Family = credential.FamilyAntigravity
		rest = strings.TrimPrefix(rest, AntigravityPrefix)
	}

	// Feature suffixes may stack in either order.
	for {
		switch {
		case strings.HasSuffix(rest, FakeStreamSuffix):
			v.FakeStream = true
			rest = strings.TrimSuffix(rest, FakeStreamSuffix)
			continue
		case strings.HasSuffix(rest, AntiTruncSuffix):
			v.AntiTruncation = true
			rest = strings.TrimSuffix(rest, AntiTruncSuffix)
			continue
		}
		break
	}

	switch {
	case strings.HasSuffix(rest, MaxThinkingSuffix):
		v.Thinking = ThinkingMax
		rest = strings.TrimSuffix(rest, MaxThinkingSuffix)
	case strings.HasSuffix(rest, NoThinkingSuffix):
		v.Thinking = ThinkingOff
		rest = strings.TrimSuffix(rest, NoThinkingSuffix)
	case strings.HasSuffix(rest, PlainThinkingSuffix):
		v.Thinking = ThinkingOn
		rest = strings.TrimSuffix(rest, PlainThinkingSuffix)
	}

	v.Base = rest
	return v
}

// Known reports whether the variant's base model exists in its family catalog.
func (v Variant) Known() bool {
	for _, base := range BasesForFamily(v.Family) {
		if base == v.Base {
			return true
		}
	}
	return false
}

// ExposedIDs lists every model name served on /v1/models, minus any in
// disabled. Feature suffix combinations are enumerated per base.
func ExposedIDs(disabled []string) []string {
	blocked := make(map[string]struct{}, len(disabled))
	for _, d := range disabled {
		blocked[d] = struct{}{}
	}

	featureSuffixes := []string{"", FakeStreamSuffix, AntiTruncSuffix, AntiTruncSuffix + FakeStreamSuffix}
	out := make([]string, 0, 64)
	add := func(id string) {
		if _, skip := blocked[id]; !skip {
			out = append(out, id)
		}
	}

	for _, base := range geminiCLIBases {
		for _, thinking := range []string{"", MaxThinkingSuffix, NoThinkingSuffix} {
			for _, feat := range featureSuffixes {
				add(base + thinking + feat)
			}
		}
	}
	for _, base := range antigravityBases {
		for _, thinking := range []string{"", PlainThinkingSuffix} {
			for _, feat := range featureSuffixes {
				add(AntigravityPrefix + base + thinking + feat)
			}
		}
	}
	return out
}
