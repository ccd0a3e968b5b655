package llm

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stride-agent/stride/pkg/types"
)

const defaultMaxOutputTokens = 8192

// AnthropicProvider wraps the Anthropic client for chat completions
// with tools and prompt caching.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new AnthropicProvider. SDK-level
// retries are disabled; the Retrier owns retry policy.
func NewAnthropicProvider(apiKey, baseURL, model string) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// GetModel returns the model name.
func (a *AnthropicProvider) GetModel() string {
	return a.model
}

// SetModel changes the model used for subsequent requests.
func (a *AnthropicProvider) SetModel(model string) {
	a.model = model
}

// SupportsBreakpoints reports that cache breakpoint plans are honored.
func (a *AnthropicProvider) SupportsBreakpoints() bool {
	return true
}

func (a *AnthropicProvider) buildRequest(req Request) anthropic.MessageNewParams {
	var systemBlocks []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	// Turn index to message index, for breakpoint placement after the
	// system turns are split out.
	msgIndex := make(map[int]int, len(req.Turns))

	for i, turn := range req.Turns {
		switch turn.Role {
		case types.RoleSystem:
			systemBlocks = append(systemBlocks, *anthropic.NewTextBlock(turn.Text()).OfText)
		case types.RoleUser:
			msgIndex[i] = len(messages)
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text())))
		case types.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text := turn.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range turn.ToolCalls {
				var input map[string]interface{}
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
					// Fallback if args isn't valid JSON, though it should be
					input = map[string]interface{}{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			msgIndex[i] = len(messages)
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case types.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, b := range turn.Blocks {
				if b.ToolResult == nil {
					continue
				}
				isError := b.ToolResult.ExitStatus != 0
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolResult.ToolCallID, b.Text, isError))
			}
			if len(blocks) == 0 {
				continue
			}
			msgIndex[i] = len(messages)
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: blocks,
			})
		}
	}

	cc := anthropic.NewCacheControlEphemeralParam()
	if req.Breakpoints.ExtendedTTL {
		cc.TTL = anthropic.CacheControlEphemeralTTL("1h")
	}
	for _, pos := range req.Breakpoints.Positions {
		if pos < 0 || pos >= len(req.Turns) {
			continue
		}
		if req.Turns[pos].Role == types.RoleSystem {
			if len(systemBlocks) > 0 {
				systemBlocks[len(systemBlocks)-1].CacheControl = cc
			}
			continue
		}
		mi, ok := msgIndex[pos]
		if !ok {
			continue
		}
		markLastBlock(&messages[mi], cc)
	}

	var tools []anthropic.ToolUnionParam
	for _, def := range req.Tools {
		fn, ok := def["function"].(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		params, _ := fn["parameters"].(map[string]interface{})

		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        name,
				Description: anthropic.String(desc),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: params["properties"],
					Required:   extractRequired(params["required"]),
				},
			},
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxOutputTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	return params
}

// markLastBlock sets cache control on the final content block of a
// message, whatever its variant.
func markLastBlock(msg *anthropic.MessageParam, cc anthropic.CacheControlEphemeralParam) {
	for i := len(msg.Content) - 1; i >= 0; i-- {
		block := &msg.Content[i]
		switch {
		case block.OfText != nil:
			block.OfText.CacheControl = cc
		case block.OfToolResult != nil:
			block.OfToolResult.CacheControl = cc
		case block.OfToolUse != nil:
			block.OfToolUse.CacheControl = cc
		default:
			continue
		}
		return
	}
}

// Complete sends a chat request.
func (a *AnthropicProvider) Complete(ctx context.Context, req Request) (*types.ChatResponse, error) {
	params := a.buildRequest(req)

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapAPIError("anthropic completion failed", err)
	}

	response := &types.ChatResponse{
		FinishReason: string(msg.StopReason),
		Usage: types.TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
			CachedTokens: msg.Usage.CacheReadInputTokens,
		},
	}

	for _, block := range msg.Content {
		if block.Type == "tool_use" {
			args, _ := json.Marshal(block.Input)
			response.ToolCalls = append(response.ToolCalls, types.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(args),
			})
		} else if block.Type == "text" {
			response.Content += block.Text
		}
	}

	return response, nil
}

// extractRequired safely extracts a []string from a required field value,
// handling both []string (from Go tool definitions) and []interface{} (from JSON).
func extractRequired(v interface{}) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []interface{}:
		var res []string
		for _, r := range req {
			if s, ok := r.(string); ok {
				res = append(res, s)
			}
		}
		return res
	default:
		return nil
	}
}
