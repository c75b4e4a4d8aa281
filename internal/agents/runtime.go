package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/consts"
	"github.com/codefionn/castcheck/internal/llm"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/orchestrator/loop"
	"github.com/codefionn/castcheck/internal/progress"
	"github.com/codefionn/castcheck/internal/reliability"
	"github.com/codefionn/castcheck/internal/structured"
)

// Binding is a model usable for structured calls and tool calls.
type Binding interface {
	reliability.Invoker
	InvokeTools(ctx context.Context, conv []*llm.Message, tools []map[string]interface{}) (*llm.Message, error)
}

// Bindings resolves a model key to its primary binding and optional
// fallback. A missing fallback is a nil interface.
type Bindings interface {
	Resolve(ctx context.Context, key string) (primary, fallback Binding, err error)
}

// FactoryBindings builds fresh llm bindings for every Resolve.
type FactoryBindings struct {
	Factory *llm.Factory
	Config  *config.Config
}

// Resolve implements Bindings.
func (b *FactoryBindings) Resolve(ctx context.Context, key string) (Binding, Binding, error) {
	primary, fallback, err := b.Factory.NewBindings(ctx, b.Config, key)
	if err != nil {
		return nil, nil, err
	}
	if fallback == nil {
		return primary, nil, nil
	}
	return primary, fallback, nil
}

// Runtime carries everything a specialist needs for one request. It is
// built per request and never shared.
type Runtime struct {
	Config   *config.Config
	Bindings Bindings
	// Tools are the search tools offered to the fact checker and critic
	Tools []loop.Tool
	// Filter post-processes search results (optional)
	Filter loop.ResultFilter
	// Progress receives node and tool events (optional)
	Progress progress.Callback
	// CriticTools enables search tools for the critic
	CriticTools bool
}

func (r *Runtime) maxRetries() int {
	if r.Config == nil || r.Config.App.MaxRetries < 0 {
		return consts.DefaultMaxRetries
	}
	return r.Config.App.MaxRetries
}

func (r *Runtime) factCheckIterations() int {
	if r.Config == nil || r.Config.App.MaxFactCheckIterations <= 0 {
		return consts.DefaultFactCheckIterations
	}
	return r.Config.App.MaxFactCheckIterations
}

func (r *Runtime) supervisorIterations() int {
	if r.Config == nil || r.Config.App.MaxSupervisorIterations <= 0 {
		return consts.DefaultSupervisorIterations
	}
	return r.Config.App.MaxSupervisorIterations
}

func (r *Runtime) statuses() []string {
	if r.Config == nil {
		return config.DefaultConfig().App.VerificationStatuses
	}
	return r.Config.App.VerificationStatuses
}

func (r *Runtime) emit(ctx context.Context, ev progress.Event) {
	progress.Dispatch(ctx, r.Progress, ev)
}

func (r *Runtime) pair(ctx context.Context, key string) (reliability.Pair, *failoverToolModel, error) {
	if r.Bindings == nil {
		return reliability.Pair{}, nil, fmt.Errorf("no model bindings configured")
	}
	primary, fallback, err := r.Bindings.Resolve(ctx, key)
	if err != nil {
		return reliability.Pair{}, nil, err
	}
	pair := reliability.Pair{Primary: primary}
	if fallback != nil {
		pair.Fallback = fallback
	}
	return pair, &failoverToolModel{primary: primary, fallback: fallback}, nil
}

// invokeStructured runs the failover wrapper for key and decodes into T.
func invokeStructured[T any](ctx context.Context, r *Runtime, key string, conv []*llm.Message, shape *structured.Shape) (T, error) {
	var zero T
	pair, _, err := r.pair(ctx, key)
	if err != nil {
		return zero, err
	}
	return reliability.Invoke[T](ctx, pair, conv, shape, r.maxRetries())
}

// failoverToolModel switches to the fallback binding for a single tool-loop
// turn when the primary fails.
type failoverToolModel struct {
	primary  Binding
	fallback Binding
}

func (m *failoverToolModel) Name() string {
	return m.primary.Name()
}

func (m *failoverToolModel) InvokeTools(ctx context.Context, conv []*llm.Message, tools []map[string]interface{}) (*llm.Message, error) {
	msg, err := m.primary.InvokeTools(ctx, conv, tools)
	if err == nil {
		return msg, nil
	}
	if m.fallback == nil || ctx.Err() != nil {
		return nil, err
	}
	logger.FromContext(ctx).Warn("%s failed: %v, falling back to %s", m.primary.Name(), err, m.fallback.Name())
	return m.fallback.InvokeTools(ctx, conv, tools)
}

// toolStage describes a specialist that researches with tools and then
// answers with a structured record.
type toolStage struct {
	node          string
	key           string
	shape         *structured.Shape
	tools         []loop.Tool
	maxIterations int
	// invalidPrompt is appended when the final answer does not validate
	invalidPrompt string
}

// toolStageResult carries the decoded record and loop statistics.
type toolStageResult[T any] struct {
	Output     T
	ToolCalls  int
	Iterations int
}

// runToolStage runs the tool loop, then extracts the final assistant turn.
// When that fails, a follow-up prompt goes through the failover wrapper with
// the whole research conversation.
func runToolStage[T any](ctx context.Context, r *Runtime, st toolStage, conv []*llm.Message) (*toolStageResult[T], error) {
	log := logger.FromContext(ctx)
	pair, model, err := r.pair(ctx, st.key)
	if err != nil {
		return nil, err
	}

	out := &toolStageResult[T]{}
	if len(st.tools) == 0 {
		out.Output, err = reliability.Invoke[T](ctx, pair, conv, st.shape, r.maxRetries())
		if err != nil {
			return nil, err
		}
		out.Iterations = 1
		return out, nil
	}

	res, err := loop.RunToolLoop(ctx, model, st.tools, conv, st.maxIterations, loop.Options{
		ResultFilter: r.Filter,
		Progress:     r.Progress,
		Node:         st.node,
	})
	if err != nil {
		return nil, err
	}
	out.ToolCalls = res.ToolCalls
	out.Iterations = res.Iterations

	followUp := noFinalAnswerPrompt
	if final := res.FinalMessage(); final != nil && strings.TrimSpace(final.Content) != "" {
		record, err := structured.Extract(ctx, final.Content, st.shape)
		if err == nil {
			if err := structured.Decode(record, &out.Output); err != nil {
				return nil, err
			}
			return out, nil
		}
		var verr *structured.ValidationError
		if errors.As(err, &verr) {
			log.Warn("%s: final answer failed validation with %d error(s), asking again", st.node, len(verr.Violations))
		} else {
			log.Warn("%s: could not parse final answer: %v", st.node, err)
		}
		followUp = st.invalidPrompt
	}

	research := append(res.Conversation, &llm.Message{Role: llm.RoleUser, Content: followUp})
	out.Output, err = reliability.Invoke[T](ctx, pair, research, st.shape, r.maxRetries())
	if err != nil {
		return nil, err
	}
	return out, nil
}

// toolDescriptions lists the tools for a prompt.
func toolDescriptions(tools []loop.Tool) string {
	if len(tools) == 0 {
		return "none"
	}
	var b strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
	}
	return b.String()
}
