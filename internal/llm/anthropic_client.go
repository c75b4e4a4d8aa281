package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

const (
	defaultAnthropicModel     = "claude-3-5-haiku-latest"
	defaultAnthropicMaxTokens = 2000
)

// AnthropicClient implements the Client interface using the official Anthropic SDK.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient creates an Anthropic client backed by the official SDK.
// Extra request options (base URL, HTTP client) are passed through to the SDK.
func NewAnthropicClient(apiKey, modelName string, opts ...option.RequestOption) (*AnthropicClient, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("anthropic client requires an API key")
	}

	model := strings.TrimSpace(modelName)
	if model == "" {
		model = defaultAnthropicModel
	}

	all := append([]option.RequestOption{option.WithAPIKey(key)}, opts...)
	return &AnthropicClient{
		client: anthropic.NewClient(all...),
		model:  model,
	}, nil
}

func (c *AnthropicClient) GetModelName() string {
	return c.model
}

func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	return completeSimple(ctx, c, prompt)
}

func (c *AnthropicClient) CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	params, err := buildAnthropicParams(c.model, req)
	if err != nil {
		return nil, err
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed: %w", err)
	}

	return anthropicResponse(msg), nil
}

func buildAnthropicParams(model string, req *CompletionRequest) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic completion request cannot be nil")
	}

	system, messages, err := toAnthropicMessages(req.SystemPrompt, req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic completion requires at least one user or assistant message")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}
	return params, nil
}

func anthropicResponse(msg *anthropic.Message) *CompletionResponse {
	if msg == nil {
		return &CompletionResponse{}
	}

	var text strings.Builder
	var toolCalls []map[string]interface{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(block.Text)
		case "tool_use":
			arguments := "{}"
			if len(block.Input) > 0 {
				arguments = string(block.Input)
			}
			toolCalls = append(toolCalls, newToolCall(block.ID, block.Name, arguments))
		}
	}

	stopReason := string(msg.StopReason)
	if stopReason == "" {
		stopReason = msg.StopSequence
	}

	return &CompletionResponse{
		Content:    text.String(),
		ToolCalls:  toolCalls,
		StopReason: stopReason,
		Usage: map[string]interface{}{
			"input_tokens":  msg.Usage.InputTokens,
			"output_tokens": msg.Usage.OutputTokens,
		},
	}
}

// toAnthropicMessages splits system turns into the system block list and
// maps tool results onto user turns carrying tool_result blocks.
func toAnthropicMessages(systemPrompt string, messages []*Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		system = append(system, anthropic.TextBlockParam{Text: sys})
	}

	out := make([]anthropic.MessageParam, 0, len(messages))
	for idx, msg := range messages {
		if msg == nil {
			continue
		}

		switch normalizeRole(msg.Role) {
		case RoleSystem:
			if text := strings.TrimSpace(msg.Content); text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}
		case RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for i, raw := range msg.ToolCalls {
				call, ok := ParseToolCall(raw)
				if !ok {
					return nil, nil, fmt.Errorf("invalid assistant message at index %d: tool call %d is missing a function name", idx, i)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, decodeArguments(call.Arguments), call.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})
		case RoleTool:
			if strings.TrimSpace(msg.ToolID) == "" {
				if msg.Content == "" {
					continue
				}
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
				continue
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolID, msg.Content, false)))
		default:
			if msg.Content == "" {
				continue
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return system, out, nil
}

func toAnthropicTools(tools []map[string]interface{}) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, raw := range tools {
		function, ok := raw["function"].(map[string]interface{})
		if !ok || function == nil {
			continue
		}
		name := strings.TrimSpace(toString(function["name"]))
		if name == "" {
			continue
		}

		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if params, ok := function["parameters"].(map[string]interface{}); ok {
			if props, ok := params["properties"]; ok {
				schema.Properties = props
			}
			if req := stringSlice(params["required"]); len(req) > 0 {
				schema.Required = req
			}
		}

		tool := &anthropic.ToolParam{
			Name:        name,
			InputSchema: schema,
			Type:        anthropic.ToolTypeCustom,
		}
		if desc := strings.TrimSpace(toString(function["description"])); desc != "" {
			tool.Description = anthropic.String(desc)
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: tool})
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func decodeArguments(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return decoded
	}
	return raw
}

func stringSlice(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok && str != "" {
				result = append(result, str)
			}
		}
		return result
	default:
		return nil
	}
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func normalizeRole(role string) string {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return RoleUser
	}
	return role
}
