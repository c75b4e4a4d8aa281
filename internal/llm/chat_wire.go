package llm

import (
	"fmt"
	"strings"
)

// Wire types for the chat completions API shared by OpenAI and the
// OpenAI-compatible llama endpoint.

type chatRequest struct {
	Model       string                   `json:"model"`
	Messages    []chatMessage            `json:"messages"`
	Tools       []map[string]interface{} `json:"tools,omitempty"`
	Temperature *float64                 `json:"temperature,omitempty"`
	MaxTokens   int                      `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role       string                   `json:"role"`
	Content    interface{}              `json:"content"`
	Name       string                   `json:"name,omitempty"`
	ToolCalls  []map[string]interface{} `json:"tool_calls,omitempty"`
	ToolCallID string                   `json:"tool_call_id,omitempty"`
}

type chatResponse struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Choices []chatChoice           `json:"choices"`
	Usage   map[string]interface{} `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	FinishReason string       `json:"finish_reason"`
	Message      *chatMessage `json:"message"`
}

func buildChatMessages(req *CompletionRequest) ([]chatMessage, error) {
	messages := make([]chatMessage, 0, len(req.Messages)+1)

	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		messages = append(messages, chatMessage{Role: RoleSystem, Content: system})
	}

	for _, msg := range req.Messages {
		if msg == nil {
			continue
		}

		role := normalizeRole(msg.Role)
		out := chatMessage{Role: role, Content: msg.Content}

		switch role {
		case RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				out.ToolCalls = msg.ToolCalls
				if msg.Content == "" {
					out.Content = nil
				}
			}
		case RoleTool:
			out.ToolCallID = msg.ToolID
			out.Name = msg.ToolName
		}

		messages = append(messages, out)
	}

	if len(messages) == 0 {
		return nil, fmt.Errorf("chat completion requires at least one message")
	}
	return messages, nil
}

func chatCompletion(resp *chatResponse) *CompletionResponse {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return &CompletionResponse{StopReason: "stop"}
	}

	first := resp.Choices[0]
	stopReason := first.FinishReason
	if strings.TrimSpace(stopReason) == "" {
		stopReason = "stop"
	}

	return &CompletionResponse{
		Content:    chatText(first.Message.Content),
		ToolCalls:  copyChatToolCalls(first.Message.ToolCalls),
		StopReason: stopReason,
		Usage:      resp.Usage,
	}
}

// copyChatToolCalls detaches tool calls from the decoded response and
// normalizes arguments to their string form.
func copyChatToolCalls(toolCalls []map[string]interface{}) []map[string]interface{} {
	if len(toolCalls) == 0 {
		return nil
	}

	result := make([]map[string]interface{}, 0, len(toolCalls))
	for _, tc := range toolCalls {
		if tc == nil {
			continue
		}
		id := firstNonEmptyString(tc["id"], tc["call_id"])
		call, ok := ParseToolCall(tc)
		if !ok {
			// keep it so the caller can answer the malformed call
			fn, _ := tc["function"].(map[string]interface{})
			result = append(result, newToolCall(id, "", stringifyArguments(fn["arguments"])))
			continue
		}
		result = append(result, newToolCall(id, call.Name, call.Arguments))
	}
	return NormalizeToolCallIDs(result)
}

func chatText(content interface{}) string {
	switch value := content.(type) {
	case nil:
		return ""
	case string:
		return value
	case []interface{}:
		var sb strings.Builder
		for _, part := range value {
			sb.WriteString(chatText(part))
		}
		return sb.String()
	case map[string]interface{}:
		if text, ok := value["text"].(string); ok {
			return text
		}
		if inner, ok := value["content"]; ok {
			return chatText(inner)
		}
	}
	return ""
}

