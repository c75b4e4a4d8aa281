package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient implements the Client interface for OpenAI. Reasoning models
// go through the Responses API via the SDK; everything else uses chat
// completions.
type OpenAIClient struct {
	model     string
	chat      *OpenAICompatibleClient
	responses *openai.Client
}

// NewOpenAIClient constructs a client that talks directly to the OpenAI API.
func NewOpenAIClient(apiKey, modelName string, opts ...option.RequestOption) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai client requires an API key")
	}

	model := strings.TrimSpace(modelName)
	if model == "" {
		model = "gpt-4o-mini"
	}

	client := &OpenAIClient{model: model}
	if requiresResponsesAPI(model) {
		all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
		apiClient := openai.NewClient(all...)
		client.responses = &apiClient
		return client, nil
	}

	chat, err := NewOpenAICompatibleClient("openai", apiKey, openAIDefaultBaseURL, model)
	if err != nil {
		return nil, err
	}
	client.chat = chat
	return client, nil
}

func (c *OpenAIClient) GetModelName() string {
	return c.model
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return completeSimple(ctx, c, prompt)
}

func (c *OpenAIClient) CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if c.chat != nil {
		return c.chat.CompleteWithRequest(ctx, req)
	}

	params, err := c.responsesParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.responses.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}
	return responsesCompletion(resp), nil
}

func (c *OpenAIClient) responsesParams(req *CompletionRequest) (responses.ResponseNewParams, error) {
	if req == nil {
		return responses.ResponseNewParams{}, fmt.Errorf("openai completion request cannot be nil")
	}

	input := responsesInput(req.Messages)
	if len(input) == 0 {
		return responses.ResponseNewParams{}, fmt.Errorf("no messages provided")
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(c.model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}
	if req.SystemPrompt != "" {
		params.Instructions = openai.String(req.SystemPrompt)
	}
	if req.Temperature != 0 && !isOpenAITemperatureUnsupported(c.model) {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = responsesTools(req.Tools)
	}
	return params, nil
}

func responsesInput(messages []*Message) responses.ResponseInputParam {
	input := make(responses.ResponseInputParam, 0, len(messages))

	for _, msg := range messages {
		if msg == nil {
			continue
		}

		switch normalizeRole(msg.Role) {
		case RoleTool:
			if msg.ToolID == "" {
				continue
			}
			input = append(input, responses.ResponseInputItemParamOfFunctionCallOutput(msg.ToolID, msg.Content))
		case RoleAssistant:
			if strings.TrimSpace(msg.Content) != "" {
				input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleAssistant))
			}
			for _, call := range ParseToolCalls(msg) {
				input = append(input, responses.ResponseInputItemParamOfFunctionCall(call.Arguments, call.ID, call.Name))
			}
		case RoleSystem:
			if strings.TrimSpace(msg.Content) != "" {
				input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleSystem))
			}
		default:
			if strings.TrimSpace(msg.Content) != "" {
				input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleUser))
			}
		}
	}

	return input
}

func responsesTools(tools []map[string]interface{}) []responses.ToolUnionParam {
	result := make([]responses.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if toolType, _ := tool["type"].(string); toolType != "function" {
			continue
		}
		function, ok := tool["function"].(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := function["name"].(string)
		if name == "" {
			continue
		}

		parameters, _ := function["parameters"].(map[string]interface{})
		description, _ := function["description"].(string)

		variant := responses.ToolParamOfFunction(name, parameters, false)
		if description != "" && variant.OfFunction != nil {
			variant.OfFunction.Description = openai.String(description)
		}
		result = append(result, variant)
	}
	return result
}

func responsesCompletion(resp *responses.Response) *CompletionResponse {
	if resp == nil {
		return &CompletionResponse{}
	}

	var toolCalls []map[string]interface{}
	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		call := item.AsFunctionCall()
		id := call.CallID
		if id == "" {
			id = call.ID
		}
		toolCalls = append(toolCalls, newToolCall(id, call.Name, call.Arguments))
	}

	return &CompletionResponse{
		Content:    resp.OutputText(),
		ToolCalls:  NormalizeToolCallIDs(toolCalls),
		StopReason: string(resp.Status),
		Usage: map[string]interface{}{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		},
	}
}

func requiresResponsesAPI(modelName string) bool {
	model := strings.TrimSpace(strings.ToLower(modelName))
	switch {
	case model == "":
		return false
	case strings.HasPrefix(model, "gpt-5"), strings.Contains(model, "codex"):
		return true
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return true
	}
	return false
}

// isOpenAITemperatureUnsupported reports models that reject a temperature.
func isOpenAITemperatureUnsupported(modelName string) bool {
	model := strings.ToLower(strings.TrimSpace(modelName))
	if model == "" {
		return false
	}
	if strings.Contains(model, "reasoning") {
		return true
	}
	return requiresResponsesAPI(model)
}
