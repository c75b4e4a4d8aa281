package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

// GoogleGenAIClient implements the Client interface using the official Google GenAI SDK.
type GoogleGenAIClient struct {
	modelName string
	client    *genai.Client
}

// NewGoogleAIClient creates a Google GenAI client for the provided model.
func NewGoogleAIClient(ctx context.Context, apiKey, modelName string) (*GoogleGenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("google client requires an API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google GenAI client: %w", err)
	}

	return &GoogleGenAIClient{
		modelName: normalizeGoogleModelName(modelName),
		client:    client,
	}, nil
}

func (c *GoogleGenAIClient) GetModelName() string {
	return c.modelName
}

func (c *GoogleGenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return completeSimple(ctx, c, prompt)
}

func (c *GoogleGenAIClient) CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("google completion request cannot be nil")
	}

	system, contents, err := toGenAIContents(req.Messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("google completion requires at least one user or assistant message")
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.modelName, contents, genAIConfig(req, system))
	if err != nil {
		return nil, fmt.Errorf("google genai completion failed: %w", err)
	}
	return genAIResponse(resp), nil
}

func genAIResponse(resp *genai.GenerateContentResponse) *CompletionResponse {
	if resp == nil || len(resp.Candidates) == 0 {
		stop := ""
		if resp != nil && resp.PromptFeedback != nil {
			stop = string(resp.PromptFeedback.BlockReason)
		}
		return &CompletionResponse{StopReason: stop}
	}

	candidate := resp.Candidates[0]
	stopReason := string(candidate.FinishReason)
	if stopReason == "" {
		stopReason = candidate.FinishMessage
	}

	out := &CompletionResponse{
		Content:    genAIText(candidate.Content),
		ToolCalls:  NormalizeToolCallIDs(genAIToolCalls(candidate.Content)),
		StopReason: stopReason,
	}
	if resp.UsageMetadata != nil {
		out.Usage = map[string]interface{}{
			"input_tokens":  resp.UsageMetadata.PromptTokenCount,
			"output_tokens": resp.UsageMetadata.CandidatesTokenCount,
		}
	}
	return out
}

func genAIText(content *genai.Content) string {
	if content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func genAIToolCalls(content *genai.Content) []map[string]interface{} {
	if content == nil {
		return nil
	}

	var toolCalls []map[string]interface{}
	for _, part := range content.Parts {
		if part == nil || part.FunctionCall == nil {
			continue
		}

		argsJSON, err := json.Marshal(part.FunctionCall.Args)
		if err != nil {
			argsJSON = []byte("{}")
		}

		toolCall := newToolCall(part.FunctionCall.ID, part.FunctionCall.Name, string(argsJSON))
		if len(part.ThoughtSignature) > 0 {
			toolCall["thought_signature"] = base64.StdEncoding.EncodeToString(part.ThoughtSignature)
		}
		toolCalls = append(toolCalls, toolCall)
	}
	return toolCalls
}

// toGenAIContents maps the conversation onto Gemini contents. System turns are
// collected separately because Gemini takes them as a system instruction.
func toGenAIContents(messages []*Message) ([]string, []*genai.Content, error) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		if msg == nil {
			continue
		}

		switch normalizeRole(msg.Role) {
		case RoleSystem:
			if strings.TrimSpace(msg.Content) != "" {
				system = append(system, msg.Content)
			}
		case RoleAssistant:
			content, err := genAIAssistantContent(msg)
			if err != nil {
				return nil, nil, err
			}
			contents = append(contents, content)
		case RoleTool:
			contents = append(contents, genAIToolResponse(msg))
		default:
			if msg.Content == "" {
				continue
			}
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return system, contents, nil
}

func genAIAssistantContent(msg *Message) (*genai.Content, error) {
	parts := make([]*genai.Part, 0, len(msg.ToolCalls)+1)
	if msg.Content != "" {
		parts = append(parts, genai.NewPartFromText(msg.Content))
	}

	for _, raw := range msg.ToolCalls {
		call, ok := ParseToolCall(raw)
		if !ok {
			continue
		}
		args, err := call.DecodeArguments()
		if err != nil {
			return nil, err
		}

		part := genai.NewPartFromFunctionCall(call.Name, args)
		part.FunctionCall.ID = call.ID
		if sig, _ := raw["thought_signature"].(string); sig != "" {
			if decoded, err := base64.StdEncoding.DecodeString(sig); err == nil {
				part.ThoughtSignature = decoded
			}
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		parts = append(parts, genai.NewPartFromText(""))
	}
	return genai.NewContentFromParts(parts, genai.RoleModel), nil
}

func genAIToolResponse(msg *Message) *genai.Content {
	payload := make(map[string]any)
	if strings.TrimSpace(msg.Content) != "" {
		if err := json.Unmarshal([]byte(msg.Content), &payload); err != nil {
			payload = map[string]any{"output": msg.Content}
		}
	}

	part := genai.NewPartFromFunctionResponse(msg.ToolName, payload)
	if msg.ToolID != "" {
		part.FunctionResponse.ID = msg.ToolID
	}
	return genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser)
}

func genAIConfig(req *CompletionRequest, system []string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if req.SystemPrompt != "" {
		system = append([]string{req.SystemPrompt}, system...)
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		cfg.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if tools := genAITools(req.Tools); len(tools) > 0 {
		cfg.Tools = tools
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}
	return cfg
}

func genAITools(tools []map[string]interface{}) []*genai.Tool {
	var decls []*genai.FunctionDeclaration
	for _, tool := range tools {
		function, ok := tool["function"].(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := function["name"].(string)
		if name == "" {
			continue
		}
		description, _ := function["description"].(string)

		decl := &genai.FunctionDeclaration{Name: name, Description: description}
		if params, ok := function["parameters"].(map[string]interface{}); ok {
			decl.ParametersJsonSchema = params
		}
		decls = append(decls, decl)
	}

	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func normalizeGoogleModelName(modelName string) string {
	trimmed := strings.TrimSpace(modelName)
	if trimmed == "" {
		return "models/gemini-2.0-flash"
	}

	lowered := strings.ToLower(trimmed)
	if strings.HasPrefix(lowered, "models/") || strings.HasPrefix(lowered, "publishers/") {
		return trimmed
	}
	return "models/" + trimmed
}
