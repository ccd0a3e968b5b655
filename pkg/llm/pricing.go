package llm

import (
	"strings"

	"github.com/stride-agent/stride/pkg/types"
)

// ModelPricing holds per-million-token prices in USD. Cached input
// tokens are billed at the cache-read rate instead of the input rate.
type ModelPricing struct {
	InputPerMTok     float64
	OutputPerMTok    float64
	CacheReadPerMTok float64
}

// pricingTable maps model name substrings to prices. First match wins;
// unknown models fall back to defaultPricing so cost tracking stays
// conservative rather than silently zero.
var pricingTable = []struct {
	pattern string
	price   ModelPricing
}{
	{"claude-opus", ModelPricing{InputPerMTok: 15.0, OutputPerMTok: 75.0, CacheReadPerMTok: 1.5}},
	{"claude-sonnet", ModelPricing{InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheReadPerMTok: 0.3}},
	{"claude-haiku", ModelPricing{InputPerMTok: 0.8, OutputPerMTok: 4.0, CacheReadPerMTok: 0.08}},
	{"gpt-4o-mini", ModelPricing{InputPerMTok: 0.15, OutputPerMTok: 0.6, CacheReadPerMTok: 0.075}},
	{"gpt-4o", ModelPricing{InputPerMTok: 2.5, OutputPerMTok: 10.0, CacheReadPerMTok: 1.25}},
	{"gpt-4.1", ModelPricing{InputPerMTok: 2.0, OutputPerMTok: 8.0, CacheReadPerMTok: 0.5}},
	{"o3", ModelPricing{InputPerMTok: 2.0, OutputPerMTok: 8.0, CacheReadPerMTok: 0.5}},
}

var defaultPricing = ModelPricing{InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheReadPerMTok: 0.3}

// PricingFor returns the pricing for a model name.
func PricingFor(model string) ModelPricing {
	m := strings.ToLower(model)
	for _, entry := range pricingTable {
		if strings.Contains(m, entry.pattern) {
			return entry.price
		}
	}
	return defaultPricing
}

// CostUSD estimates the dollar cost of one response's usage. Cached
// tokens are reported separately from input tokens and billed at the
// cache-read rate.
func CostUSD(model string, usage types.TokenUsage) float64 {
	p := PricingFor(model)
	return float64(usage.InputTokens)*p.InputPerMTok/1e6 +
		float64(usage.OutputTokens)*p.OutputPerMTok/1e6 +
		float64(usage.CachedTokens)*p.CacheReadPerMTok/1e6
}
