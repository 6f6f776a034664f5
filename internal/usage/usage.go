// Package usage estimates context-window consumption and classifies it into tiers.
package usage

import (
	"math"
	"strings"
)

// Thresholds for tier selection, in whole percent used.
const (
	// WarningPercent starts the WARNING tier (60%).
	WarningPercent = 60

	// DangerPercent starts the DANGER tier (80%).
	DangerPercent = 80

	// DefaultContextWindow is the assumed window when none is selected.
	DefaultContextWindow = 1_000_000

	// DefaultBytesPerToken is the transcript-size heuristic: ~4 bytes per token.
	DefaultBytesPerToken = 4.0

	// DefaultTranscriptDivisor scales a transcript's byte-derived token estimate
	// down to tokens actually resident in the window.
	DefaultTranscriptDivisor = 10
)

// Tier is the discrete severity level derived from percent used.
type Tier string

const (
	TierNormal  Tier = "NORMAL"
	TierWarning Tier = "WARNING"
	TierDanger  Tier = "DANGER"
)

// Usage is the derived gauge state for one set of inputs.
type Usage struct {
	// TokensLeft is the remaining token count after parsing.
	TokensLeft int `json:"tokens_left"`

	// ContextWindow is the window size the percentage is taken against.
	ContextWindow int `json:"context_window"`

	// TokensUsed is ContextWindow - TokensLeft (may be negative for bogus input).
	TokensUsed int `json:"tokens_used"`

	// Percent is the clamped fractional percentage in [0, 100].
	Percent float64 `json:"percent"`

	// PercentUsed is Percent rounded to a whole number.
	PercentUsed int `json:"percent_used"`

	// Tier is selected from Percent, so 79.9% is still WARNING.
	Tier Tier `json:"tier"`
}

// Compute derives usage from a remaining-token count and a window size.
// A non-positive tokensLeft or window yields 0% rather than an error.
func Compute(tokensLeft, contextWindow int) Usage {
	u := Usage{
		TokensLeft:    tokensLeft,
		ContextWindow: contextWindow,
		TokensUsed:    contextWindow - tokensLeft,
	}
	if tokensLeft > 0 && contextWindow > 0 {
		pct := float64(u.TokensUsed) / float64(contextWindow) * 100
		u.Percent = math.Min(100, math.Max(0, pct))
	}
	u.PercentUsed = int(math.Round(u.Percent))
	u.Tier = TierForPercent(u.Percent)
	return u
}

// ComputeRaw is Compute for user-typed input such as "12,345".
func ComputeRaw(tokensLeftRaw string, contextWindow int) Usage {
	return Compute(ParseTokens(tokensLeftRaw), contextWindow)
}

// FromTranscript derives usage from a transcript's byte-based token estimate.
// The estimate is divided by divisor before being charged against the window.
func FromTranscript(estimatedTokens, contextWindow, divisor int) Usage {
	if divisor <= 0 {
		divisor = DefaultTranscriptDivisor
	}
	used := estimatedTokens / divisor
	u := Usage{
		TokensUsed:    used,
		ContextWindow: contextWindow,
		TokensLeft:    max(0, contextWindow-used),
	}
	if contextWindow > 0 {
		u.Percent = math.Min(100, math.Max(0, float64(used)/float64(contextWindow)*100))
	}
	u.PercentUsed = int(math.Round(u.Percent))
	u.Tier = TierForPercent(u.Percent)
	return u
}

// TierFor maps a whole percentage to a tier. Boundaries are closed at the lower edge.
func TierFor(percentUsed int) Tier {
	return TierForPercent(float64(percentUsed))
}

// TierForPercent maps an unrounded percentage to a tier.
func TierForPercent(percent float64) Tier {
	switch {
	case percent >= DangerPercent:
		return TierDanger
	case percent >= WarningPercent:
		return TierWarning
	default:
		return TierNormal
	}
}

// ParseTokens parses a token count the way a lenient form field would:
// thousands separators are dropped and the leading integer is taken.
// Anything unparseable is 0.
func ParseTokens(raw string) int {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}

	n := 0
	digits := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		if n > (math.MaxInt-9)/10 {
			break
		}
		n = n*10 + int(r-'0')
		digits++
	}
	if digits == 0 {
		return 0
	}
	if neg {
		return -n
	}
	return n
}

// Status returns the one-line status message for a tier.
func (t Tier) Status() string {
	switch t {
	case TierDanger:
		return "Context nearly full - hand off now"
	case TierWarning:
		return "Approaching limit"
	default:
		return "Plenty of fuel"
	}
}

// Recommendation returns advice for the current usage.
func (u Usage) Recommendation() string {
	switch u.Tier {
	case TierDanger:
		return "DANGER: Generate a handoff and start a new session."
	case TierWarning:
		return "WARNING: Start collecting handoff notes."
	default:
		return "NORMAL: Context budget healthy."
	}
}
