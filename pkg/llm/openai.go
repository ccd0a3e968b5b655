package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/stride-agent/stride/pkg/types"
)

// OpenAIProvider wraps the OpenAI client for chat completions with
// tools. It has no prompt-caching controls, so breakpoint plans are
// ignored.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAIProvider.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// GetModel returns the model name.
func (c *OpenAIProvider) GetModel() string {
	return c.model
}

// SetModel changes the model used for subsequent requests.
func (c *OpenAIProvider) SetModel(model string) {
	c.model = model
}

// SupportsBreakpoints reports that cache breakpoint plans are ignored.
func (c *OpenAIProvider) SupportsBreakpoints() bool {
	return false
}

// Complete sends a chat completion request.
func (c *OpenAIProvider) Complete(ctx context.Context, req Request) (*types.ChatResponse, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, turn := range req.Turns {
		switch turn.Role {
		case types.RoleSystem:
			messages = append(messages, openai.SystemMessage(turn.Text()))
		case types.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Text()))
		case types.RoleAssistant:
			if len(turn.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(turn.ToolCalls))
				for j, tc := range turn.ToolCalls {
					toolCalls[j] = openai.ChatCompletionMessageToolCallParam{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					}
				}
				messages = append(messages, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						ToolCalls: toolCalls,
					},
				})
			} else {
				messages = append(messages, openai.AssistantMessage(turn.Text()))
			}
		case types.RoleTool:
			for _, b := range turn.Blocks {
				if b.ToolResult == nil {
					continue
				}
				messages = append(messages, openai.ToolMessage(b.Text, b.ToolResult.ToolCallID))
			}
		}
	}

	var tools []openai.ChatCompletionToolParam
	for _, def := range req.Tools {
		fn, ok := def["function"].(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		params, _ := fn["parameters"].(map[string]interface{})

		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        name,
				Description: openai.String(desc),
				Parameters:  shared.FunctionParameters(params),
			},
		})
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapAPIError("chat completion failed", err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := completion.Choices[0]
	response := &types.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: types.TokenUsage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		response.ToolCalls = append(response.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return response, nil
}
