// Package llm provides model providers for chat completions with tools,
// plus the retry and error-classification layer the control loop depends
// on.
package llm

import (
	"context"

	"github.com/stride-agent/stride/pkg/cache"
	"github.com/stride-agent/stride/pkg/types"
)

// Request is one model call: the conversation so far, the available
// tools, and the cache breakpoint plan. Providers that do not support
// prompt caching ignore Breakpoints.
type Request struct {
	Turns       []types.Turn
	Tools       []map[string]interface{}
	Breakpoints cache.Plan
	MaxTokens   int
}

// Provider defines the interface for different LLM backends.
type Provider interface {
	Complete(ctx context.Context, req Request) (*types.ChatResponse, error)
	SupportsBreakpoints() bool
	GetModel() string
	SetModel(model string)
}

// Compile-time interface compliance checks.
var (
	_ Provider = (*OpenAIProvider)(nil)
	_ Provider = (*AnthropicProvider)(nil)
	_ Provider = (*Retrier)(nil)
	_ Provider = (*Meter)(nil)
)
