package llm

import (
	"context"
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message. Tool calls use the OpenAI function-call
// shape: {"id", "type": "function", "function": {"name", "arguments"}}.
type Message struct {
	Role      string                   `json:"role"`
	Content   string                   `json:"content"`
	ToolCalls []map[string]interface{} `json:"tool_calls,omitempty"`
	ToolID    string                   `json:"tool_id,omitempty"`
	ToolName  string                   `json:"tool_name,omitempty"` // Name of the tool for tool responses
}

// Clone returns a copy of the message whose tool call slice can be appended to
// without touching the original.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = append([]map[string]interface{}(nil), m.ToolCalls...)
	}
	return &out
}

// HasToolCalls reports whether an assistant message requests tool invocations.
func (m *Message) HasToolCalls() bool {
	return m != nil && len(m.ToolCalls) > 0
}

// CloneConversation copies the slice so callers can append freely. Messages
// are treated as immutable once appended, so they are shared.
func CloneConversation(conv []*Message) []*Message {
	out := make([]*Message, 0, len(conv)+4)
	for _, m := range conv {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// CompletionRequest represents a completion request
type CompletionRequest struct {
	Messages     []*Message               `json:"messages"`
	Tools        []map[string]interface{} `json:"tools,omitempty"`
	Temperature  float64                  `json:"temperature"`
	MaxTokens    int                      `json:"max_tokens,omitempty"`
	SystemPrompt string                   `json:"system_prompt,omitempty"`
}

// CompletionResponse represents a completion response
type CompletionResponse struct {
	Content    string                   `json:"content"`
	ToolCalls  []map[string]interface{} `json:"tool_calls,omitempty"`
	StopReason string                   `json:"stop_reason"`
	Usage      map[string]interface{}   `json:"usage,omitempty"` // Provider-specific usage data
}

// Client is the interface for LLM clients
type Client interface {
	// CompleteWithRequest sends a completion request and returns the response
	CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	// Complete is a simplified version for single prompt
	Complete(ctx context.Context, prompt string) (string, error)
	// GetModelName returns the model name
	GetModelName() string
}

func completeSimple(ctx context.Context, c Client, prompt string) (string, error) {
	resp, err := c.CompleteWithRequest(ctx, &CompletionRequest{
		Messages:    []*Message{{Role: RoleUser, Content: prompt}},
		Temperature: 1.0,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
