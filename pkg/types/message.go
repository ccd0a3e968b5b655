package types

// Role identifies the sender of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResultPayload carries the structured metadata attached to a
// tool-result content block.
type ToolResultPayload struct {
	ToolCallID string `json:"tool_call_id"`
	ExitStatus int    `json:"exit_status"`
	Truncated  bool   `json:"truncated,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

// ContentBlock is one unit of turn content: either plain text or
// tool-result text with structured metadata.
type ContentBlock struct {
	Text       string             `json:"text"`
	ToolResult *ToolResultPayload `json:"tool_result,omitempty"`
}

// TextBlock creates a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Text: text}
}

// ToolResultBlock creates a tool-result content block.
func ToolResultBlock(text string, payload ToolResultPayload) ContentBlock {
	p := payload
	return ContentBlock{Text: text, ToolResult: &p}
}

// Turn is one unit of conversation history. Turns are immutable once
// appended to a session; only the session's compaction operations may
// rewrite them.
type Turn struct {
	Role          Role           `json:"role"`
	Blocks        []ContentBlock `json:"blocks"`
	ToolCalls     []ToolCall     `json:"tool_calls,omitempty"`
	Cacheable     bool           `json:"cacheable"`
	TokenEstimate int            `json:"token_estimate"`
}

// NewTextTurn creates a cacheable turn with a single text block.
func NewTextTurn(role Role, text string) Turn {
	return Turn{
		Role:      role,
		Blocks:    []ContentBlock{TextBlock(text)},
		Cacheable: true,
	}
}

// Text returns the concatenated text of all content blocks.
func (t Turn) Text() string {
	if len(t.Blocks) == 1 {
		return t.Blocks[0].Text
	}
	var out string
	for _, b := range t.Blocks {
		out += b.Text
	}
	return out
}

// ChatResponse represents a parsed model response.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage tracks token counts from an API response.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	CachedTokens int64
}

// Add accumulates usage from another response.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CachedTokens += other.CachedTokens
}

// Total returns the combined input and output token count.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}
