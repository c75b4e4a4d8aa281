package reliability

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/castcheck/internal/llm"
	"github.com/codefionn/castcheck/internal/structured"
)

var summaryShape = structured.NewShape("SummaryOutput",
	structured.String("summary").Length(200, 400),
	structured.String("core_theme"),
	structured.List("key_discussions", structured.String("")).Size(2, 0),
	structured.List("outcomes_and_opinions", structured.String("")).Size(1, 0),
	structured.String("reasoning"),
)

// scriptedInvoker replays responses in order; the last one repeats. It
// records a copy of every conversation it receives.
type scriptedInvoker struct {
	name      string
	mu        sync.Mutex
	responses []func() (*llm.Message, error)
	calls     [][]*llm.Message
}

func (s *scriptedInvoker) Name() string { return s.name }

func (s *scriptedInvoker) Invoke(ctx context.Context, conv []*llm.Message) (*llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]*llm.Message(nil), conv...))
	i := len(s.calls) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i]()
}

func (s *scriptedInvoker) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func reply(content string) func() (*llm.Message, error) {
	return func() (*llm.Message, error) {
		return &llm.Message{Role: llm.RoleAssistant, Content: content}, nil
	}
}

func fail(err error) func() (*llm.Message, error) {
	return func() (*llm.Message, error) { return nil, err }
}

func summaryJSON(t *testing.T, summary string) string {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"summary":               summary,
		"core_theme":            "space exploration",
		"key_discussions":       []string{"launch costs", "crew safety"},
		"outcomes_and_opinions": []string{"cautious optimism"},
		"reasoning":             "derived from the transcript",
	})
	require.NoError(t, err)
	return "```json\n" + string(data) + "\n```"
}

func words(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString("orbit ")
	}
	return b.String()[:n]
}

func baseConversation() []*llm.Message {
	transcript := strings.Repeat("Host: welcome back to the show. ", 16)[:500]
	return []*llm.Message{
		{Role: llm.RoleSystem, Content: "You summarize podcasts."},
		{Role: llm.RoleUser, Content: transcript},
	}
}

func TestInvokeWithRetryFirstAttempt(t *testing.T) {
	inv := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){reply(summaryJSON(t, words(300)))}}

	conv := baseConversation()
	rec, err := InvokeWithRetry(context.Background(), inv, conv, summaryShape, 3)
	require.NoError(t, err)

	assert.Equal(t, 1, inv.count())
	assert.Len(t, rec["summary"], 300)
	assert.Len(t, conv, 2, "input conversation must not grow")
}

func TestInvokeWithRetryCorrectivePrompt(t *testing.T) {
	inv := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){
		reply(summaryJSON(t, words(1000))),
		reply(summaryJSON(t, words(300))),
	}}

	rec, err := InvokeWithRetry(context.Background(), inv, baseConversation(), summaryShape, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.count())
	assert.Len(t, rec["summary"], 300)

	second := inv.calls[1]
	require.Len(t, second, 4)
	assert.Equal(t, llm.RoleAssistant, second[2].Role)
	assert.Equal(t, llm.RoleUser, second[3].Role)
	assert.Contains(t, second[3].Content, "- Field 'summary': String is too long (1000 characters). Maximum allowed is 400 characters.")
	assert.Contains(t, second[3].Content, "IMPORTANT: Make sure your response is valid JSON")
}

func TestInvokeWithRetryRepairsAfterExhaustion(t *testing.T) {
	inv := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){reply(summaryJSON(t, words(1000)))}}

	rec, err := InvokeWithRetry(context.Background(), inv, baseConversation(), summaryShape, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, inv.count())

	summary := rec["summary"].(string)
	assert.LessOrEqual(t, len(summary), 400)
	assert.GreaterOrEqual(t, len(summary), 200)
	assert.True(t, strings.HasSuffix(summary, "..."))
	assert.True(t, strings.HasSuffix(strings.TrimSuffix(summary, "..."), "orbit"), "cut should land on a word boundary: %q", summary)
}

func TestInvokeWithRetryUnrepairable(t *testing.T) {
	short := summaryJSON(t, "too short")
	inv := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){reply(short)}}

	_, err := InvokeWithRetry(context.Background(), inv, baseConversation(), summaryShape, 1)
	var verr *structured.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 2, inv.count())
}

func TestInvokeWithRetryExtractionErrorIsNotRetried(t *testing.T) {
	inv := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){reply("Sorry, I cannot help with that.")}}

	_, err := InvokeWithRetry(context.Background(), inv, baseConversation(), summaryShape, 3)
	var extractErr *structured.ExtractionError
	require.True(t, errors.As(err, &extractErr))
	assert.Equal(t, 1, inv.count())
}

func TestInvokeWithRetryTransportErrors(t *testing.T) {
	boom := errors.New("connection reset")
	inv := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){
		fail(boom),
		reply(summaryJSON(t, words(250))),
	}}

	_, err := InvokeWithRetry(context.Background(), inv, baseConversation(), summaryShape, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.count())
	assert.Len(t, inv.calls[1], 2, "transport failures add no corrective turn")

	always := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){fail(boom)}}
	_, err = InvokeWithRetry(context.Background(), always, baseConversation(), summaryShape, 2)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, always.count())
}

func TestInvokeWithRetryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inv := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){
		func() (*llm.Message, error) {
			cancel()
			return nil, context.Canceled
		},
	}}

	_, err := InvokeWithRetry(ctx, inv, baseConversation(), summaryShape, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inv.count())
}

func TestInvokeWithFailoverPrimarySucceeds(t *testing.T) {
	primary := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){reply(summaryJSON(t, words(300)))}}
	fallback := &scriptedInvoker{name: "fallback", responses: []func() (*llm.Message, error){reply(summaryJSON(t, words(300)))}}

	_, err := InvokeWithFailover(context.Background(), Pair{Primary: primary, Fallback: fallback}, baseConversation(), summaryShape, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.count())
	assert.Equal(t, 0, fallback.count())
}

func TestInvokeWithFailoverTransportErrorsSwitchToFallback(t *testing.T) {
	const maxRetries = 3
	primary := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){fail(errors.New("503 service unavailable"))}}
	fallback := &scriptedInvoker{name: "fallback", responses: []func() (*llm.Message, error){reply(summaryJSON(t, words(320)))}}

	conv := baseConversation()
	rec, err := InvokeWithFailover(context.Background(), Pair{Primary: primary, Fallback: fallback}, conv, summaryShape, maxRetries)
	require.NoError(t, err)

	assert.Equal(t, maxRetries+1, primary.count())
	assert.Equal(t, 1, fallback.count())
	assert.Len(t, rec["summary"], 320)
	assert.Equal(t, conv, fallback.calls[0], "fallback sees only the original turns")
}

func TestInvokeWithFailoverFallbackSeesFreshConversation(t *testing.T) {
	primary := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){
		reply(summaryJSON(t, "short")),
	}}
	fallback := &scriptedInvoker{name: "fallback", responses: []func() (*llm.Message, error){reply(summaryJSON(t, words(220)))}}

	_, err := InvokeWithFailover(context.Background(), Pair{Primary: primary, Fallback: fallback}, baseConversation(), summaryShape, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, primary.count())
	require.Equal(t, 1, fallback.count())
	assert.Len(t, fallback.calls[0], 2)
}

func TestInvokeWithFailoverErrors(t *testing.T) {
	primaryErr := errors.New("primary down")
	fallbackErr := errors.New("fallback down")

	primary := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){fail(primaryErr)}}
	_, err := InvokeWithFailover(context.Background(), Pair{Primary: primary}, baseConversation(), summaryShape, 0)
	assert.Same(t, primaryErr, err)

	fallback := &scriptedInvoker{name: "fallback", responses: []func() (*llm.Message, error){fail(fallbackErr)}}
	_, err = InvokeWithFailover(context.Background(), Pair{Primary: primary, Fallback: fallback}, baseConversation(), summaryShape, 0)
	assert.Same(t, fallbackErr, err)
}

func TestInvokeWithFailoverNoFailoverOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){reply(summaryJSON(t, words(300)))}}
	fallback := &scriptedInvoker{name: "fallback", responses: []func() (*llm.Message, error){reply(summaryJSON(t, words(300)))}}

	_, err := InvokeWithFailover(ctx, Pair{Primary: primary, Fallback: fallback}, baseConversation(), summaryShape, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, primary.count())
	assert.Equal(t, 0, fallback.count())
}

func TestInvokeDecodesTypedRecord(t *testing.T) {
	type summary struct {
		Summary        string   `json:"summary"`
		KeyDiscussions []string `json:"key_discussions"`
	}
	primary := &scriptedInvoker{name: "primary", responses: []func() (*llm.Message, error){reply(summaryJSON(t, words(210)))}}

	out, err := Invoke[summary](context.Background(), Pair{Primary: primary}, baseConversation(), summaryShape, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"launch costs", "crew safety"}, out.KeyDiscussions)
}

func TestNewPairKeepsNilFallbackNil(t *testing.T) {
	p := NewPair(&llm.Binding{Provider: "anthropic", Model: "m"}, nil)
	assert.Nil(t, p.Fallback)
}
