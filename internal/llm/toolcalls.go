package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// ToolCall is the decoded form of one entry in Message.ToolCalls.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// DecodeArguments unmarshals the JSON argument string. An empty string
// decodes to an empty map.
func (tc ToolCall) DecodeArguments() (map[string]interface{}, error) {
	args := make(map[string]interface{})
	if strings.TrimSpace(tc.Arguments) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments for tool %s: %w", tc.Name, err)
	}
	return args, nil
}

// ParseToolCall reads a tool call in the OpenAI function-call shape. ok is
// false when the entry carries no function name.
func ParseToolCall(raw map[string]interface{}) (ToolCall, bool) {
	if raw == nil {
		return ToolCall{}, false
	}

	function, ok := raw["function"].(map[string]interface{})
	if !ok {
		return ToolCall{}, false
	}

	name, _ := function["name"].(string)
	if strings.TrimSpace(name) == "" {
		return ToolCall{}, false
	}

	id := firstNonEmptyString(raw["id"], raw["call_id"])
	if id == "" {
		id = fmt.Sprintf("call_%s", name)
	}

	return ToolCall{
		ID:        id,
		Name:      name,
		Arguments: stringifyArguments(function["arguments"]),
	}, true
}

// ParseToolCalls decodes every well formed entry of msg.ToolCalls.
func ParseToolCalls(msg *Message) []ToolCall {
	if msg == nil {
		return nil
	}
	calls := make([]ToolCall, 0, len(msg.ToolCalls))
	for _, raw := range msg.ToolCalls {
		if call, ok := ParseToolCall(raw); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// NewToolCall builds a tool call entry in the shape ParseToolCall reads.
func NewToolCall(id, name string, args map[string]interface{}) map[string]interface{} {
	return newToolCall(id, name, stringifyArguments(args))
}

func newToolCall(id, name, arguments string) map[string]interface{} {
	return map[string]interface{}{
		"id":   id,
		"type": "function",
		"function": map[string]interface{}{
			"name":      name,
			"arguments": arguments,
		},
	}
}

// MissingToolName replaces an empty function name in a requested tool call.
const MissingToolName = "missing_tool_name"

// NormalizeToolCallIDs ensures every tool call has a stable identifier and a
// function name. Some providers occasionally omit call IDs, which breaks
// downstream requests that require tool_call_id on tool messages. Entries
// without a name get MissingToolName so they can still be answered.
func NormalizeToolCallIDs(toolCalls []map[string]interface{}) []map[string]interface{} {
	for i, tc := range toolCalls {
		if tc == nil {
			continue
		}

		fn, _ := tc["function"].(map[string]interface{})
		if fn == nil {
			fn = map[string]interface{}{}
			tc["function"] = fn
		}
		if name, _ := fn["name"].(string); strings.TrimSpace(name) == "" {
			fn["name"] = MissingToolName
		}

		id := firstNonEmptyString(tc["id"], tc["call_id"])
		if id == "" {
			if name := sanitizeToolName(fn["name"]); name != "" && name != MissingToolName {
				id = fmt.Sprintf("call_%s_%d", name, i+1)
			}
		}
		if id == "" {
			id = fmt.Sprintf("call_%d", i+1)
		}

		tc["id"] = id
		tc["call_id"] = id
	}
	return toolCalls
}

func stringifyArguments(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(bytes)
	}
}

func firstNonEmptyString(values ...interface{}) string {
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func sanitizeToolName(raw interface{}) string {
	name, _ := raw.(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
