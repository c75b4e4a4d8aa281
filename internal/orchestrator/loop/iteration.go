package loop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codefionn/castcheck/internal/llm"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/progress"
)

// ToolIteration runs one model call and every tool call it requests. It owns
// a working copy of the conversation that grows across iterations.
type ToolIteration struct {
	model ToolModel
	tools map[string]Tool
	defs  []map[string]interface{}
	opts  Options
	conv  []*llm.Message
}

// NewToolIteration creates a ToolIteration over a copy of conv.
func NewToolIteration(model ToolModel, tools []Tool, conv []*llm.Message, opts Options) *ToolIteration {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	return &ToolIteration{
		model: model,
		tools: byName,
		defs:  ToolDefinitions(tools),
		opts:  opts,
		conv:  llm.CloneConversation(conv),
	}
}

// Conversation returns the working conversation.
func (e *ToolIteration) Conversation() []*llm.Message {
	return e.conv
}

// Execute runs a single iteration of the tool loop.
func (e *ToolIteration) Execute(ctx context.Context, state State) (*IterationOutcome, error) {
	msg, err := e.model.InvokeTools(ctx, e.conv, e.defs)
	if err != nil {
		return &IterationOutcome{Result: Error, Error: err}, err
	}
	msg.ToolCalls = llm.NormalizeToolCallIDs(msg.ToolCalls)
	e.conv = append(e.conv, msg)

	outcome := &IterationOutcome{Result: Break, Message: msg, ToolCalls: llm.ParseToolCalls(msg)}
	if len(outcome.ToolCalls) == 0 {
		return outcome, nil
	}

	log := logger.FromContext(ctx)
	log.Debug("%s: iteration %d/%d requested %d tool call(s)", e.model.Name(), state.Iteration(), state.MaxIterations(), len(outcome.ToolCalls))

	for _, call := range outcome.ToolCalls {
		content, ok := e.executeToolCall(ctx, call)
		if !ok {
			outcome.FailedCalls++
		}
		e.conv = append(e.conv, &llm.Message{
			Role:     llm.RoleTool,
			Content:  content,
			ToolID:   call.ID,
			ToolName: call.Name,
		})
	}

	outcome.Result = Continue
	return outcome, nil
}

// executeToolCall returns the tool turn content and whether the call
// succeeded. Failures are reported to the model, never to the caller.
func (e *ToolIteration) executeToolCall(ctx context.Context, call llm.ToolCall) (string, bool) {
	log := logger.FromContext(ctx)

	if call.Name == llm.MissingToolName {
		log.Warn("model requested a tool call without a name (id %s)", call.ID)
		return "Error: tool call is missing a tool name. Call one of the available tools by name.", false
	}

	tool, ok := e.tools[call.Name]
	if !ok {
		log.Warn("model requested unknown tool %q", call.Name)
		return fmt.Sprintf("Tool %s not available", call.Name), false
	}

	progress.Dispatch(ctx, e.opts.Progress, progress.Event{
		Stage:   progress.StageToolStarted,
		Node:    e.opts.Node,
		Tool:    call.Name,
		Message: call.Arguments,
	})

	result, err := e.invoke(ctx, tool, call)
	if err != nil {
		log.Warn("tool %s failed: %v", call.Name, err)
		progress.Dispatch(ctx, e.opts.Progress, progress.Event{
			Stage:   progress.StageToolCompleted,
			Node:    e.opts.Node,
			Tool:    call.Name,
			Message: err.Error(),
		})
		return fmt.Sprintf("Error executing tool: %v. Try an alternative query.", err), false
	}

	if e.opts.ResultFilter != nil {
		result = e.opts.ResultFilter(ctx, call.Name, result)
	}

	content, err := encodeResult(result)
	if err != nil {
		log.Warn("tool %s returned an unencodable result: %v", call.Name, err)
		return fmt.Sprintf("Error executing tool: %v. Try an alternative query.", err), false
	}

	progress.Dispatch(ctx, e.opts.Progress, progress.Event{
		Stage:  progress.StageToolCompleted,
		Node:   e.opts.Node,
		Tool:   call.Name,
		Result: result,
	})
	return content, true
}

func (e *ToolIteration) invoke(ctx context.Context, tool Tool, call llm.ToolCall) (interface{}, error) {
	args, err := call.DecodeArguments()
	if err != nil {
		return nil, err
	}
	return tool.Invoke(ctx, args)
}

// encodeResult JSON-encodes a tool result. Strings are passed through.
func encodeResult(result interface{}) (string, error) {
	if s, ok := result.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ToolDefinitions renders tools in the OpenAI function shape the llm
// clients accept.
func ToolDefinitions(tools []Tool) []map[string]interface{} {
	defs := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Name(),
				"description": t.Description(),
				"parameters":  t.Parameters(),
			},
		})
	}
	return defs
}

var _ Iteration = (*ToolIteration)(nil)
