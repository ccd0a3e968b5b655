package llm

import (
	"testing"

	"github.com/stride-agent/stride/pkg/types"
)

func TestPricingFor(t *testing.T) {
	tests := []struct {
		model string
		want  float64 // input per MTok
	}{
		{"claude-opus-4-1", 15.0},
		{"claude-sonnet-4-5", 3.0},
		{"claude-haiku-4-5", 0.8},
		{"gpt-4o-mini", 0.15},
		{"gpt-4o", 2.5},
		{"some-unknown-model", defaultPricing.InputPerMTok},
	}
	for _, tt := range tests {
		if got := PricingFor(tt.model); got.InputPerMTok != tt.want {
			t.Errorf("PricingFor(%q).InputPerMTok = %v, want %v", tt.model, got.InputPerMTok, tt.want)
		}
	}
}

func TestCostUSD(t *testing.T) {
	usage := types.TokenUsage{InputTokens: 1_000_000, OutputTokens: 100_000, CachedTokens: 500_000}
	got := CostUSD("claude-sonnet-4-5", usage)
	want := 3.0 + 1.5 + 0.15
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("CostUSD = %v, want %v", got, want)
	}
}

func TestCostUSDZeroUsage(t *testing.T) {
	if got := CostUSD("claude-sonnet-4-5", types.TokenUsage{}); got != 0 {
		t.Errorf("CostUSD(zero) = %v", got)
	}
}
