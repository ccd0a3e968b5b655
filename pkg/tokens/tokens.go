// Package tokens provides cheap, deterministic token estimation for
// conversation content. Estimates are conservative approximations, not
// tokenizer-accurate counts: they round up so the session total never
// undershoots the real provider count by more than a small margin.
package tokens

import "github.com/stride-agent/stride/pkg/types"

const (
	// approxCharsPerToken is the character-to-token heuristic.
	approxCharsPerToken = 4

	// turnOverhead accounts for role and framing tokens per turn.
	turnOverhead = 4
)

// EstimateText returns the estimated token count for a string.
// Deterministic, monotonic in input length, never negative.
func EstimateText(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + approxCharsPerToken - 1) / approxCharsPerToken
}

// EstimateTurn returns the estimated token count for a single turn,
// including tool call names and arguments.
func EstimateTurn(t types.Turn) int {
	total := turnOverhead
	for _, b := range t.Blocks {
		total += EstimateText(b.Text)
	}
	for _, tc := range t.ToolCalls {
		total += EstimateText(tc.Name)
		total += EstimateText(tc.Arguments)
	}
	return total
}

// EstimateTurns returns the estimated token count across all turns.
// Sessions maintain this incrementally; this is the from-scratch form
// used by compaction planning and tests.
func EstimateTurns(turns []types.Turn) int {
	total := 0
	for _, t := range turns {
		total += EstimateTurn(t)
	}
	return total
}
