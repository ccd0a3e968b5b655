package types

import (
	"context"
	"time"
)

// Tool is the interface that all tools must implement.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *ToolResult
}

// ToolStatus is the resolution state of a dispatched tool call.
type ToolStatus string

const (
	ToolStatusPending ToolStatus = "pending"
	ToolStatusOK      ToolStatus = "ok"
	ToolStatusError   ToolStatus = "error"
	ToolStatusTimeout ToolStatus = "timeout"
)

// ToolOutcome is the resolved record of a single tool invocation.
// Once produced for a call ID it is never recomputed.
type ToolOutcome struct {
	Call       ToolCall
	Status     ToolStatus
	Result     string
	ExitStatus int
	Truncated  bool
	Duration   time.Duration
}

// ToolResult represents the structured return value from tool execution.
type ToolResult struct {
	ForLLM     string `json:"for_llm"`
	ForUser    string `json:"for_user,omitempty"`
	Silent     bool   `json:"silent"`
	IsError    bool   `json:"is_error"`
	ExitStatus int    `json:"exit_status"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

// NewToolResult creates a basic ToolResult with content for the LLM.
func NewToolResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM}
}

// SilentResult creates a ToolResult that is silent (no user message).
func SilentResult(forLLM string) *ToolResult {
	return &ToolResult{
		ForLLM: forLLM,
		Silent: true,
	}
}

// ErrorResult creates a ToolResult representing an error.
func ErrorResult(message string) *ToolResult {
	return &ToolResult{
		ForLLM:     message,
		IsError:    true,
		ExitStatus: 1,
	}
}

// TimeoutResult creates a ToolResult for a timed-out invocation,
// preserving whatever partial output was captured.
func TimeoutResult(partial string) *ToolResult {
	return &ToolResult{
		ForLLM:     partial,
		IsError:    true,
		ExitStatus: -1,
		TimedOut:   true,
	}
}

// UserResult creates a ToolResult with content for both LLM and user.
func UserResult(content string) *ToolResult {
	return &ToolResult{
		ForLLM:  content,
		ForUser: content,
	}
}
