package loop

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/castcheck/internal/llm"
	"github.com/codefionn/castcheck/internal/progress"
)

type scriptedModel struct {
	mu        sync.Mutex
	responses []func() (*llm.Message, error)
	calls     [][]*llm.Message
	tools     [][]map[string]interface{}
}

func (m *scriptedModel) Name() string { return "scripted/model" }

func (m *scriptedModel) InvokeTools(ctx context.Context, conv []*llm.Message, tools []map[string]interface{}) (*llm.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]*llm.Message(nil), conv...))
	m.tools = append(m.tools, tools)
	i := len(m.calls) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i]()
}

func answer(content string) func() (*llm.Message, error) {
	return func() (*llm.Message, error) {
		return &llm.Message{Role: llm.RoleAssistant, Content: content}, nil
	}
}

func requestTools(calls ...map[string]interface{}) func() (*llm.Message, error) {
	return func() (*llm.Message, error) {
		return &llm.Message{Role: llm.RoleAssistant, ToolCalls: calls}, nil
	}
}

type fakeTool struct {
	name   string
	result interface{}
	err    error
	args   []map[string]interface{}
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake " + f.name }
func (f *fakeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}}}
}

func (f *fakeTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	f.args = append(f.args, args)
	return f.result, f.err
}

func startConversation() []*llm.Message {
	return []*llm.Message{{Role: llm.RoleUser, Content: "Verify: the moon landing was in 1969."}}
}

func TestRunToolLoopAnswersWithoutTools(t *testing.T) {
	model := &scriptedModel{responses: []func() (*llm.Message, error){answer(`{"done": true}`)}}

	res, err := RunToolLoop(context.Background(), model, nil, startConversation(), 5, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, Break, res.TerminationReason)
	assert.False(t, res.HitIterationLimit)
	assert.Equal(t, `{"done": true}`, res.FinalMessage().Content)
}

func TestRunToolLoopToolErrorBecomesToolTurn(t *testing.T) {
	search := &fakeTool{name: "tavily_search", err: errors.New("rate limited")}
	model := &scriptedModel{responses: []func() (*llm.Message, error){
		requestTools(llm.NewToolCall("call_1", "tavily_search", map[string]interface{}{"query": "apollo 11"})),
		answer("final"),
	}}

	res, err := RunToolLoop(context.Background(), model, []Tool{search}, startConversation(), 5, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, 1, res.FailedCalls)
	require.Len(t, res.Conversation, 4)

	toolTurn := res.Conversation[2]
	assert.Equal(t, llm.RoleTool, toolTurn.Role)
	assert.Equal(t, "call_1", toolTurn.ToolID)
	assert.Equal(t, "tavily_search", toolTurn.ToolName)
	assert.Equal(t, "Error executing tool: rate limited. Try an alternative query.", toolTurn.Content)
	assert.Equal(t, []map[string]interface{}{{"query": "apollo 11"}}, search.args)

	assert.Len(t, model.calls[1], 3, "second call sees the tool turn")
}

func TestRunToolLoopUnknownTool(t *testing.T) {
	model := &scriptedModel{responses: []func() (*llm.Message, error){
		requestTools(llm.NewToolCall("call_x", "wikipedia", nil)),
		answer("final"),
	}}

	res, err := RunToolLoop(context.Background(), model, nil, startConversation(), 3, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedCalls)
	assert.Equal(t, "Tool wikipedia not available", res.Conversation[2].Content)
}

func TestRunToolLoopNamelessToolCall(t *testing.T) {
	search := &fakeTool{name: "tavily_search"}
	model := &scriptedModel{responses: []func() (*llm.Message, error){
		requestTools(map[string]interface{}{"id": "call_1", "function": map[string]interface{}{"name": ""}}),
		answer("final"),
	}}

	res, err := RunToolLoop(context.Background(), model, []Tool{search}, startConversation(), 3, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, Break, res.TerminationReason)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, 1, res.FailedCalls)
	assert.Empty(t, search.args)

	require.Len(t, res.Conversation, 4)
	toolTurn := res.Conversation[2]
	assert.Equal(t, llm.RoleTool, toolTurn.Role)
	assert.Equal(t, "call_1", toolTurn.ToolID)
	assert.Contains(t, toolTurn.Content, "missing a tool name")
	assert.Equal(t, "final", res.FinalMessage().Content)
}

func TestRunToolLoopFilterAndEncode(t *testing.T) {
	search := &fakeTool{name: "brave_search", result: map[string]interface{}{"results": []string{"a", "b", "c"}}}
	var filtered []string
	filter := func(ctx context.Context, toolName string, result interface{}) interface{} {
		filtered = append(filtered, toolName)
		return map[string]interface{}{"results": []string{"a"}}
	}

	model := &scriptedModel{responses: []func() (*llm.Message, error){
		requestTools(llm.NewToolCall("", "brave_search", map[string]interface{}{"query": "q"})),
		answer("done"),
	}}

	res, err := RunToolLoop(context.Background(), model, []Tool{search}, startConversation(), 3, Options{ResultFilter: filter})
	require.NoError(t, err)
	assert.Equal(t, []string{"brave_search"}, filtered)
	assert.Equal(t, 0, res.FailedCalls)

	toolTurn := res.Conversation[2]
	assert.JSONEq(t, `{"results": ["a"]}`, toolTurn.Content)
	assert.Equal(t, "call_brave_search_1", toolTurn.ToolID, "missing ids are normalized")
}

func TestRunToolLoopPreservesCallOrderAndIDs(t *testing.T) {
	a := &fakeTool{name: "tavily_search", result: "first"}
	b := &fakeTool{name: "google_search", result: "second"}
	model := &scriptedModel{responses: []func() (*llm.Message, error){
		requestTools(
			llm.NewToolCall("id-b", "google_search", map[string]interface{}{"query": "b"}),
			llm.NewToolCall("id-a", "tavily_search", map[string]interface{}{"query": "a"}),
		),
		answer("done"),
	}}

	res, err := RunToolLoop(context.Background(), model, []Tool{a, b}, startConversation(), 3, Options{})
	require.NoError(t, err)
	require.Len(t, res.Conversation, 5)
	assert.Equal(t, "id-b", res.Conversation[2].ToolID)
	assert.Equal(t, "second", res.Conversation[2].Content)
	assert.Equal(t, "id-a", res.Conversation[3].ToolID)
	assert.Equal(t, "first", res.Conversation[3].Content)
	assert.Equal(t, 2, res.ToolCalls)
}

func TestRunToolLoopIterationLimit(t *testing.T) {
	search := &fakeTool{name: "tavily_search", result: "nothing"}
	model := &scriptedModel{responses: []func() (*llm.Message, error){
		requestTools(llm.NewToolCall("c", "tavily_search", map[string]interface{}{"query": "again"})),
	}}

	conv := startConversation()
	res, err := RunToolLoop(context.Background(), model, []Tool{search}, conv, 3, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Iterations)
	assert.True(t, res.HitIterationLimit)
	assert.Equal(t, BreakMaxIterations, res.TerminationReason)
	assert.Len(t, res.Conversation, 1+3*2)
	assert.Len(t, conv, 1, "input conversation must not grow")
}

func TestRunToolLoopModelErrorAborts(t *testing.T) {
	boom := errors.New("overloaded")
	model := &scriptedModel{responses: []func() (*llm.Message, error){
		func() (*llm.Message, error) { return nil, boom },
	}}

	_, err := RunToolLoop(context.Background(), model, nil, startConversation(), 3, Options{})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, model.calls, 1)
}

func TestRunToolLoopSendsToolDefinitions(t *testing.T) {
	search := &fakeTool{name: "tavily_search"}
	model := &scriptedModel{responses: []func() (*llm.Message, error){answer("ok")}}

	_, err := RunToolLoop(context.Background(), model, []Tool{search}, startConversation(), 1, Options{})
	require.NoError(t, err)
	require.Len(t, model.tools[0], 1)
	function := model.tools[0][0]["function"].(map[string]interface{})
	assert.Equal(t, "tavily_search", function["name"])
	assert.Equal(t, "fake tavily_search", function["description"])
}

func TestRunToolLoopProgressEvents(t *testing.T) {
	search := &fakeTool{name: "tavily_search", result: "ok"}
	model := &scriptedModel{responses: []func() (*llm.Message, error){
		requestTools(llm.NewToolCall("c1", "tavily_search", map[string]interface{}{"query": "q"})),
		answer("done"),
	}}

	var events []progress.Event
	cb := func(ev progress.Event) error {
		events = append(events, ev)
		return nil
	}

	_, err := RunToolLoop(context.Background(), model, []Tool{search}, startConversation(), 3, Options{Progress: cb, Node: "fact_checker"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, progress.StageToolStarted, events[0].Stage)
	assert.Equal(t, progress.StageToolCompleted, events[1].Stage)
	assert.Equal(t, "fact_checker", events[1].Node)
	assert.Equal(t, "tavily_search", events[1].Tool)
}

func TestRunToolLoopCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &scriptedModel{responses: []func() (*llm.Message, error){answer("ok")}}

	_, err := RunToolLoop(ctx, model, nil, startConversation(), 3, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, model.calls)
}

// stopAfterToolRound ends the loop after the first round of tool calls.
type stopAfterToolRound struct{}

func (stopAfterToolRound) ShouldContinue(state State, outcome *IterationOutcome) bool {
	return false
}

func TestRunWithCustomStrategy(t *testing.T) {
	search := &fakeTool{name: "tavily_search", result: "3 results"}
	model := &scriptedModel{responses: []func() (*llm.Message, error){
		requestTools(llm.NewToolCall("call_1", "tavily_search", map[string]interface{}{"query": "apollo 11"})),
		answer("never reached"),
	}}

	iteration := NewToolIteration(model, []Tool{search}, startConversation(), Options{})
	res, err := Run(context.Background(), NewDefaultState(5), stopAfterToolRound{}, iteration)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, Continue, res.TerminationReason)
	assert.False(t, res.HitIterationLimit)
	assert.Equal(t, 1, res.ToolCalls)
	require.Len(t, res.Conversation, 3)
	assert.Equal(t, "3 results", res.Conversation[2].Content)
	assert.Len(t, model.calls, 1)
}
