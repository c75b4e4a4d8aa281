package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/llm"
	"github.com/codefionn/castcheck/internal/orchestrator/loop"
	"github.com/codefionn/castcheck/internal/progress"
)

type replyFunc func(conv []*llm.Message, tools []map[string]interface{}) (*llm.Message, error)

// scriptedBinding replays replies in order; the last one repeats.
type scriptedBinding struct {
	name    string
	mu      sync.Mutex
	replies []replyFunc
	calls   [][]*llm.Message
	tools   [][]map[string]interface{}
}

func script(name string, replies ...replyFunc) *scriptedBinding {
	return &scriptedBinding{name: name, replies: replies}
}

func (b *scriptedBinding) Name() string { return b.name }

func (b *scriptedBinding) Invoke(ctx context.Context, conv []*llm.Message) (*llm.Message, error) {
	return b.InvokeTools(ctx, conv, nil)
}

func (b *scriptedBinding) InvokeTools(ctx context.Context, conv []*llm.Message, tools []map[string]interface{}) (*llm.Message, error) {
	b.mu.Lock()
	b.calls = append(b.calls, llm.CloneConversation(conv))
	b.tools = append(b.tools, tools)
	i := len(b.calls) - 1
	if i >= len(b.replies) {
		i = len(b.replies) - 1
	}
	reply := b.replies[i]
	b.mu.Unlock()
	return reply(conv, tools)
}

func (b *scriptedBinding) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *scriptedBinding) lastCall() []*llm.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[len(b.calls)-1]
}

func text(content string) replyFunc {
	return func([]*llm.Message, []map[string]interface{}) (*llm.Message, error) {
		return &llm.Message{Role: llm.RoleAssistant, Content: content}, nil
	}
}

func jsonReply(t *testing.T, v interface{}) replyFunc {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return text("```json\n" + string(data) + "\n```")
}

func callTool(name string, args map[string]interface{}) replyFunc {
	return func([]*llm.Message, []map[string]interface{}) (*llm.Message, error) {
		return &llm.Message{
			Role:      llm.RoleAssistant,
			ToolCalls: []map[string]interface{}{llm.NewToolCall("", name, args)},
		}, nil
	}
}

func failWith(err error) replyFunc {
	return func([]*llm.Message, []map[string]interface{}) (*llm.Message, error) { return nil, err }
}

type pairBindings struct {
	primary  map[string]Binding
	fallback map[string]Binding
}

func (p *pairBindings) Resolve(_ context.Context, key string) (Binding, Binding, error) {
	primary, ok := p.primary[key]
	if !ok {
		return nil, nil, fmt.Errorf("models.%s: not configured", key)
	}
	return primary, p.fallback[key], nil
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
}

func (f *fakeSearch) Name() string        { return "tavily_search" }
func (f *fakeSearch) Description() string { return "Comprehensive search with advanced filtering" }
func (f *fakeSearch) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}}}
}
func (f *fakeSearch) Invoke(_ context.Context, args map[string]interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, _ := args["query"].(string)
	f.queries = append(f.queries, q)
	return map[string]interface{}{"results": []map[string]string{{"url": "https://nasa.gov/apollo", "title": "Apollo 11"}}}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) callback() progress.Callback {
	return func(ev progress.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
		return nil
	}
}

func (r *recorder) nodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Stage == progress.StageNode {
			out = append(out, ev.Node)
		}
	}
	return out
}

func newRuntime(bindings *pairBindings, tools ...loop.Tool) (*Runtime, *recorder) {
	rec := &recorder{}
	return &Runtime{
		Config:   config.DefaultConfig(),
		Bindings: bindings,
		Tools:    tools,
		Progress: rec.callback(),
	}, rec
}

var testTranscript = strings.Repeat("Host: Apollo 11 landed on the moon in 1969. Guest: And it changed everything. ", 8)

func validSummary() map[string]interface{} {
	return map[string]interface{}{
		"summary":               strings.Repeat("A lively look back at the first crewed moon landing. ", 5),
		"core_theme":            "space exploration",
		"key_discussions":       []string{"the landing", "its legacy"},
		"outcomes_and_opinions": []string{"it changed everything"},
		"reasoning":             "taken from the transcript",
	}
}

func validNotes() map[string]interface{} {
	return map[string]interface{}{
		"top_takeaways": []string{"one", "two", "three", "four", "five"},
		"notable_quotes": []map[string]interface{}{
			{"text": "And it changed everything.", "speaker": "Guest", "context": "on the landing"},
		},
		"topics": []string{"space", "history", "apollo"},
		"factual_statements": []map[string]interface{}{
			{"statement": "Apollo 11 landed on the moon in 1969", "speaker": "Host", "context": "opening"},
		},
		"reasoning": "taken from the transcript",
	}
}

func validFactCheck(status string) map[string]interface{} {
	return map[string]interface{}{
		"verified_claims": []map[string]interface{}{{
			"claim":               "Apollo 11 landed on the moon in 1969",
			"verification_status": status,
			"confidence":          0.95,
			"sources":             []map[string]interface{}{{"url": "https://nasa.gov/apollo", "title": "Apollo 11", "relevance": 0.9}},
			"reasoning":           "NASA confirms the date",
		}},
		"overall_reliability": 0.9,
		"research_quality":    0.8,
		"reasoning":           "one well sourced claim",
	}
}

func critique(sufficient bool, score float64) map[string]interface{} {
	return map[string]interface{}{
		"research_is_sufficient": sufficient,
		"missing_verifications":  []string{},
		"suggested_improvements": []string{"cite a second source"},
		"quality_score":          score,
		"reasoning":              "solid",
	}
}

func TestSummarizeFirstAttempt(t *testing.T) {
	summarizer := script("summarizer", jsonReply(t, validSummary()))
	rt, rec := newRuntime(&pairBindings{primary: map[string]Binding{config.ModelSummarizer: summarizer}})

	out, err := rt.Summarize(context.Background(), testTranscript)
	require.NoError(t, err)

	assert.Equal(t, 1, summarizer.count())
	assert.Equal(t, "space exploration", out.CoreTheme)
	assert.Equal(t, []string{NodeSummarizer}, rec.nodes())
	assert.Contains(t, summarizer.calls[0][0].Content, strings.TrimSpace(testTranscript))
}

func TestAnalyzeFailsOverOnTransportError(t *testing.T) {
	primary := script("primary", failWith(errors.New("503 service unavailable")))
	fallback := script("fallback", jsonReply(t, map[string]interface{}{
		"summary":    "moon landing retrospective",
		"key_points": []string{"1969"},
		"topics":     []string{"space"},
		"confidence": 0.8,
	}))
	rt, rec := newRuntime(&pairBindings{
		primary:  map[string]Binding{config.ModelAnalystB: primary},
		fallback: map[string]Binding{config.ModelAnalystB: fallback},
	})

	out, err := rt.Analyze(context.Background(), config.ModelAnalystB, testTranscript)
	require.NoError(t, err)

	assert.Equal(t, 4, primary.count())
	assert.Equal(t, 1, fallback.count())
	assert.Equal(t, 0.8, out.Confidence)
	assert.Equal(t, []string{NodeAnalystB}, rec.nodes())
}

func TestAnalyzeUnknownKey(t *testing.T) {
	rt, _ := newRuntime(&pairBindings{})
	_, err := rt.Analyze(context.Background(), config.ModelAnalystA, testTranscript)
	assert.ErrorContains(t, err, "model_a")
}

func TestExtractNotesRejectsWrongTakeawayCount(t *testing.T) {
	notes := validNotes()
	notes["top_takeaways"] = []string{"only one"}
	extractor := script("notes", jsonReply(t, notes))
	rt, _ := newRuntime(&pairBindings{primary: map[string]Binding{config.ModelNoteExtractor: extractor}})
	rt.Config.App.MaxRetries = 1

	_, err := rt.ExtractNotes(context.Background(), testTranscript)
	require.Error(t, err)
	assert.Equal(t, 2, extractor.count())
	assert.Contains(t, extractor.calls[1][2].Content, "- Field 'top_takeaways':")
}

func TestFactCheckerSearchesThenAnswers(t *testing.T) {
	search := &fakeSearch{}
	checker := script("model_d",
		callTool("tavily_search", map[string]interface{}{"query": "Apollo 11 landing year"}),
		jsonReply(t, validFactCheck("fact-checked")),
	)
	rt, rec := newRuntime(&pairBindings{primary: map[string]Binding{config.ModelFactChecker: checker}}, search)

	fc := &FactChecker{Runtime: rt, Context: "a show about the moon"}
	out, err := fc.FactCheck(context.Background(), []string{"Apollo 11 landed on the moon in 1969"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, checker.count())
	assert.Equal(t, []string{"Apollo 11 landing year"}, search.queries)
	assert.Equal(t, map[string]int{"fact-checked": 1}, out.StatusCounts())

	second := checker.calls[1]
	require.Len(t, second, 3)
	assert.Equal(t, llm.RoleTool, second[2].Role)
	assert.Equal(t, "call_tavily_search_1", second[2].ToolID)
	assert.Contains(t, second[2].Content, "nasa.gov")
	assert.Len(t, checker.tools[0], 1)

	assert.Contains(t, checker.calls[0][0].Content, "1. Apollo 11 landed on the moon in 1969")
	assert.Contains(t, checker.calls[0][0].Content, "- tavily_search: Comprehensive search")
	assert.Contains(t, rec.nodes(), NodeFactChecker)
}

func TestFactCheckerAsksAgainWhenAnswerIsNotJSON(t *testing.T) {
	checker := script("model_d",
		text("I looked it up and the claim holds."),
		jsonReply(t, validFactCheck("fact-checked")),
	)
	rt, _ := newRuntime(&pairBindings{primary: map[string]Binding{config.ModelFactChecker: checker}}, &fakeSearch{})

	fc := &FactChecker{Runtime: rt}
	_, err := fc.FactCheck(context.Background(), []string{"Apollo 11 landed on the moon in 1969"}, nil)
	require.NoError(t, err)

	require.Equal(t, 2, checker.count())
	last := checker.lastCall()
	assert.Equal(t, invalidFactCheckPrompt, last[len(last)-1].Content)
	assert.Nil(t, checker.tools[1], "the follow-up is a plain structured call")
}

func TestFactCheckerAsksForAnswerAfterIterationLimit(t *testing.T) {
	checker := script("model_d",
		callTool("tavily_search", map[string]interface{}{"query": "apollo"}),
		callTool("tavily_search", map[string]interface{}{"query": "apollo 11"}),
		jsonReply(t, validFactCheck("unverified")),
	)
	rt, _ := newRuntime(&pairBindings{primary: map[string]Binding{config.ModelFactChecker: checker}}, &fakeSearch{})
	rt.Config.App.MaxFactCheckIterations = 2

	fc := &FactChecker{Runtime: rt}
	out, err := fc.FactCheck(context.Background(), []string{"Apollo 11 landed on the moon in 1969"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, checker.count())
	last := checker.lastCall()
	assert.Equal(t, noFinalAnswerPrompt, last[len(last)-1].Content)
	assert.Equal(t, "unverified", out.VerifiedClaims[0].VerificationStatus)
}

func TestFactCheckerRejectsUnknownStatus(t *testing.T) {
	checker := script("model_d", jsonReply(t, validFactCheck("partially_verified")))
	rt, _ := newRuntime(&pairBindings{primary: map[string]Binding{config.ModelFactChecker: checker}}, &fakeSearch{})
	rt.Config.App.MaxRetries = 0

	fc := &FactChecker{Runtime: rt}
	_, err := fc.FactCheck(context.Background(), []string{"claim"}, nil)
	assert.Error(t, err)
}

func TestFactCheckerImprovedPrompt(t *testing.T) {
	checker := script("model_d", jsonReply(t, validFactCheck("fact-checked")))
	rt, _ := newRuntime(&pairBindings{primary: map[string]Binding{config.ModelFactChecker: checker}}, &fakeSearch{})

	previous := &Round{
		FactCheck: &FactCheckOutput{Reasoning: "first pass"},
		Critique:  &CriticFeedback{SuggestedImprovements: []string{"use government data"}},
	}
	fc := &FactChecker{Runtime: rt}
	_, err := fc.FactCheck(context.Background(), []string{"claim"}, previous)
	require.NoError(t, err)

	prompt := checker.calls[0][0].Content
	assert.Contains(t, prompt, "Critic feedback")
	assert.Contains(t, prompt, "use government data")
	assert.Contains(t, prompt, "first pass")
}

func TestFactCheckerEmptyClaims(t *testing.T) {
	rt, _ := newRuntime(&pairBindings{})
	fc := &FactChecker{Runtime: rt}

	out, err := fc.FactCheck(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out.VerifiedClaims)
}

func TestCriticWithoutTools(t *testing.T) {
	critic := script("model_e", jsonReply(t, critique(true, 0.9)))
	rt, _ := newRuntime(&pairBindings{primary: map[string]Binding{config.ModelCritic: critic}}, &fakeSearch{})

	c := &Critic{Runtime: rt}
	out, sufficient, err := c.Critique(context.Background(), []string{"claim"}, &FactCheckOutput{})
	require.NoError(t, err)
	assert.True(t, sufficient)
	assert.Equal(t, 0.9, out.QualityScore)
	assert.Nil(t, critic.tools[0])
}

func TestCriticWithTools(t *testing.T) {
	search := &fakeSearch{}
	critic := script("model_e",
		callTool("tavily_search", map[string]interface{}{"query": "spot check"}),
		jsonReply(t, critique(false, 0.5)),
	)
	rt, _ := newRuntime(&pairBindings{primary: map[string]Binding{config.ModelCritic: critic}}, search)
	rt.CriticTools = true

	c := &Critic{Runtime: rt}
	_, sufficient, err := c.Critique(context.Background(), []string{"claim"}, &FactCheckOutput{})
	require.NoError(t, err)
	assert.False(t, sufficient)
	assert.Equal(t, []string{"spot check"}, search.queries)
}

func TestCritiqueLoopWithSpecialists(t *testing.T) {
	checker := script("model_d", jsonReply(t, validFactCheck("fact-checked")))
	critic := script("model_e", jsonReply(t, critique(false, 0.4)), jsonReply(t, critique(true, 0.85)))
	rt, _ := newRuntime(&pairBindings{primary: map[string]Binding{
		config.ModelFactChecker: checker,
		config.ModelCritic:      critic,
	}})

	res, err := loop.RunCritiqueLoop[*FactCheckOutput, *CriticFeedback](context.Background(), []string{"claim"}, 3,
		&FactChecker{Runtime: rt}, &Critic{Runtime: rt}, nil)
	require.NoError(t, err)

	assert.Len(t, res.History, 2)
	assert.Equal(t, loop.StopSatisfied, res.StopReason)
	assert.Contains(t, checker.calls[1][0].Content, "Critic feedback")
}

func TestFailoverToolModel(t *testing.T) {
	primary := script("primary", failWith(errors.New("rate limited")))
	fallback := script("fallback", text("done"))
	m := &failoverToolModel{primary: primary, fallback: fallback}

	msg, err := m.InvokeTools(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", msg.Content)

	alone := &failoverToolModel{primary: primary}
	_, err = alone.InvokeTools(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "rate limited")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.InvokeTools(ctx, nil, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, fallback.count())
}

func specialistBindings(t *testing.T, supervisor *scriptedBinding) (*pairBindings, map[string]*scriptedBinding) {
	specialists := map[string]*scriptedBinding{
		config.ModelSummarizer:    script("summarizer", jsonReply(t, validSummary())),
		config.ModelNoteExtractor: script("notes", jsonReply(t, validNotes())),
		config.ModelFactChecker:   script("model_d", jsonReply(t, validFactCheck("fact-checked"))),
	}
	b := &pairBindings{primary: map[string]Binding{config.ModelSupervisor: supervisor}}
	for k, v := range specialists {
		b.primary[k] = v
	}
	return b, specialists
}

func TestSuperviseRunsSpecialistsInModelOrder(t *testing.T) {
	statements, err := json.Marshal(validNotes()["factual_statements"])
	require.NoError(t, err)

	supervisor := script("model_c",
		callTool(ToolSummarize, map[string]interface{}{"transcript": testTranscript}),
		callTool(ToolExtractNote, map[string]interface{}{"transcript": testTranscript}),
		callTool(ToolFactCheck, map[string]interface{}{"factual_statements_json": string(statements), "context": "moon"}),
		text("All three specialists finished."),
	)
	bindings, specialists := specialistBindings(t, supervisor)
	rt, rec := newRuntime(bindings, &fakeSearch{})

	res, err := rt.Supervise(context.Background(), testTranscript)
	require.NoError(t, err)

	assert.Equal(t, 4, supervisor.count())
	assert.Equal(t, 3, res.TotalToolCalls)
	assert.Equal(t, 3, res.AgentsInvoked)
	assert.Equal(t, "All three specialists finished.", res.FinalMessage)
	for key, b := range specialists {
		assert.Equal(t, 1, b.count(), key)
	}
	assert.Equal(t, "space exploration", res.Summary.CoreTheme)
	assert.Len(t, res.Notes.TopTakeaways, 5)
	assert.Len(t, res.FactCheck.VerifiedClaims, 1)

	want := []string{NodeSummarizer, NodeNoteExtractor, NodeFactChecker, NodeSupervisor}
	if diff := cmp.Diff(want, rec.nodes()); diff != "" {
		t.Errorf("node events mismatch (-want +got):\n%s", diff)
	}

	factCheckTurn := supervisor.calls[3][len(supervisor.calls[3])-1]
	assert.Equal(t, llm.RoleTool, factCheckTurn.Role)
	assert.Contains(t, factCheckTurn.Content, `"tool_calls_summary":{"total_searches":0}`)
	assert.Contains(t, specialists[config.ModelFactChecker].calls[0][0].Content, "(Speaker: Host, Context: opening)")
}

func TestSuperviseRunsMissingSpecialists(t *testing.T) {
	supervisor := script("model_c", text("I will skip the tools."))
	bindings, specialists := specialistBindings(t, supervisor)
	rt, _ := newRuntime(bindings)

	res, err := rt.Supervise(context.Background(), testTranscript)
	require.NoError(t, err)

	assert.Equal(t, 1, supervisor.count())
	assert.Equal(t, 0, res.TotalToolCalls)
	assert.Equal(t, 3, res.AgentsInvoked)
	for key, b := range specialists {
		assert.Equal(t, 1, b.count(), key)
	}
	require.NotNil(t, res.FactCheck)
	assert.Contains(t, specialists[config.ModelFactChecker].calls[0][0].Content, res.Summary.Summary[:40])
}

func TestSuperviseReportsMalformedStatements(t *testing.T) {
	supervisor := script("model_c",
		callTool(ToolFactCheck, map[string]interface{}{"factual_statements_json": "not json", "context": "moon"}),
		text("giving up"),
	)
	bindings, specialists := specialistBindings(t, supervisor)
	rt, _ := newRuntime(bindings)

	_, err := rt.Supervise(context.Background(), testTranscript)
	require.NoError(t, err)

	turn := supervisor.calls[1][len(supervisor.calls[1])-1]
	assert.Equal(t, llm.RoleTool, turn.Role)
	assert.Contains(t, turn.Content, "invalid JSON in factual_statements_json")
	assert.Contains(t, turn.Content, `"research_quality":0`)
	assert.Equal(t, 1, specialists[config.ModelFactChecker].count(), "forced run after the loop")
}

func TestParseStatements(t *testing.T) {
	got, err := parseStatements([]interface{}{map[string]interface{}{"statement": "x", "context": "y"}})
	require.NoError(t, err)
	assert.Equal(t, []FactualStatement{{Statement: "x", Context: "y"}}, got)

	_, err = parseStatements(`[{"context": "no statement"}]`)
	assert.ErrorContains(t, err, "statement 1 is empty")

	_, err = parseStatements(nil)
	assert.Error(t, err)
}

func TestShapesMatchStructs(t *testing.T) {
	for _, shape := range []interface{ FormatInstructions() string }{
		ParallelAnalysisShape, SupervisorOutputShape, SummaryOutputShape, NotesOutputShape, CriticFeedbackShape,
		FactCheckShape([]string{"fact-checked", "unverified", "declined"}),
	} {
		assert.Contains(t, shape.FormatInstructions(), "```json")
	}
	assert.Contains(t, FactCheckShape([]string{"yes", "no"}).FormatInstructions(), `"yes"`)
}
